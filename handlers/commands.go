package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"agentgateway/usecases/dispatch"
)

const defaultLogLines = 100

// CommandsHandler exposes the synchronous command endpoints. The dispatcher
// owns the auth check, so these routes pass the caller's key straight
// through instead of sitting behind the auth middleware.
type CommandsHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewCommandsHandler(dispatcher *dispatch.Dispatcher) *CommandsHandler {
	return &CommandsHandler{dispatcher: dispatcher}
}

// GetNamespaces handles GET /v1/agents/{agentID}/namespaces.
func (h *CommandsHandler) GetNamespaces(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	result, err := h.dispatcher.GetNamespaces(r.Context(), r.Header.Get("X-API-Key"), agentID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// GetPods handles GET /v1/agents/{agentID}/pods?namespace=...
func (h *CommandsHandler) GetPods(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		writeErrorResponse(w, http.StatusBadRequest, "namespace query parameter is required")
		return
	}

	result, err := h.dispatcher.GetPods(r.Context(), r.Header.Get("X-API-Key"), agentID, namespace)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// TailLogs handles GET /v1/agents/{agentID}/logs?namespace=...&pod=...&container=...&lines=...
func (h *CommandsHandler) TailLogs(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	query := r.URL.Query()

	namespace := query.Get("namespace")
	pod := query.Get("pod")
	if namespace == "" || pod == "" {
		writeErrorResponse(w, http.StatusBadRequest, "namespace and pod query parameters are required")
		return
	}

	lines := defaultLogLines
	if raw := query.Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
	}

	result, err := h.dispatcher.TailLogs(r.Context(), r.Header.Get("X-API-Key"), agentID, namespace, pod, query.Get("container"), lines)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}
