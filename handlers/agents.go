package handlers

import (
	"log"
	"net/http"

	"agentgateway/gateway"
	"agentgateway/services/agents"
)

// AgentsHandler serves agent listings. Routes sit behind the auth middleware
// with the agents:read scope.
type AgentsHandler struct {
	agentsService *agents.AgentsService
	registry      *gateway.Registry
}

func NewAgentsHandler(agentsService *agents.AgentsService, registry *gateway.Registry) *AgentsHandler {
	return &AgentsHandler{
		agentsService: agentsService,
		registry:      registry,
	}
}

// ListConnectedAgents handles GET /v1/agents. Only agents with a live
// session on this gateway instance are returned.
func (h *AgentsHandler) ListConnectedAgents(w http.ResponseWriter, r *http.Request) {
	connected, err := h.agentsService.ListConnectedAgents(r.Context(), h.registry.ConnectedAgentIDs())
	if err != nil {
		log.Printf("❌ Failed to list connected agents: %v", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSONResponse(w, http.StatusOK, connected)
}
