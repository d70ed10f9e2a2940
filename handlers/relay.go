package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"agentgateway/models"
	"agentgateway/usecases/relay"
)

// RelayHandler exposes the broker-backed command path. Unlike the direct
// command endpoints it publishes the request onto the broker, so it works
// against agents connected to any gateway instance consuming that queue.
type RelayHandler struct {
	relay *relay.Relay
}

func NewRelayHandler(r *relay.Relay) *RelayHandler {
	return &RelayHandler{relay: r}
}

// GetNamespaces handles GET /v1/relay/agents/{agentID}/namespaces. Sits
// behind the auth middleware with the agents:command scope.
func (h *RelayHandler) GetNamespaces(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	payload, err := h.relay.Execute(r.Context(), agentID, models.CommandPayload{Message: models.MessageGetNamespaces})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	var result models.NamespacesResult
	if err := json.Unmarshal(payload, &result); err != nil {
		writeErrorResponse(w, http.StatusBadGateway, "agent returned a malformed reply")
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}
