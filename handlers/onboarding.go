package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"agentgateway/core"
	"agentgateway/middleware"
	"agentgateway/models"
	"agentgateway/models/api"
	"agentgateway/services/onboarding"
)

type OnboardingHandler struct {
	coordinator *onboarding.Coordinator
	checker     middleware.AccessChecker
}

func NewOnboardingHandler(coordinator *onboarding.Coordinator, checker middleware.AccessChecker) *OnboardingHandler {
	return &OnboardingHandler{
		coordinator: coordinator,
		checker:     checker,
	}
}

// OnboardAgent handles POST /v1/agents/onboard. The agent authenticates with
// its own credential in X-Agent-API-Key and may present a previously assigned
// id in X-Agent-ID. 201 on first registration, 200 on an idempotent replay,
// 409 when the presented id does not belong to the credential.
func (h *OnboardingHandler) OnboardAgent(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-Agent-API-Key")
	if apiKey == "" {
		writeErrorResponse(w, http.StatusUnauthorized, "missing X-Agent-API-Key header")
		return
	}

	if _, err := h.checker.CheckAccess(r.Context(), apiKey, models.ScopeAgentsOnboard); err != nil {
		if core.IsAuthDenied(err) {
			writeErrorResponse(w, http.StatusUnauthorized, "access denied")
			return
		}
		log.Printf("❌ Auth check for onboarding failed: %v", err)
		writeErrorResponse(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
		return
	}

	var req api.OnboardAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.coordinator.Onboard(r.Context(), onboarding.OnboardRequest{
		APIKey:       apiKey,
		AgentID:      r.Header.Get("X-Agent-ID"),
		ClusterName:  req.ClusterName,
		ContextName:  req.ContextName,
		ProviderName: req.ProviderName,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateCredential):
			writeErrorResponse(w, http.StatusConflict, "credential conflict")
		case errors.Is(err, core.ErrInvalidMetadata):
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("❌ Onboarding failed: %v", err)
			writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	statusCode := http.StatusOK
	if result.Created {
		statusCode = http.StatusCreated
	}
	writeJSONResponse(w, statusCode, api.OnboardAgentResponse{
		AgentID: result.Agent.ID,
		Status:  string(result.Agent.Status),
	})
}

// BindCluster handles POST /v1/agents/{agentID}/cluster. Binding is
// write-once: a second bind to the same cluster succeeds idempotently, a bind
// to a different cluster is a 409.
func (h *OnboardingHandler) BindCluster(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]

	var req api.BindClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.coordinator.BindCluster(r.Context(), agentID, req.ClusterID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrClusterConflict):
			writeErrorResponse(w, http.StatusConflict, "agent already bound to a different cluster")
		case core.IsNotFoundError(err):
			writeErrorResponse(w, http.StatusNotFound, "agent not found")
		case errors.Is(err, core.ErrInvalidMetadata):
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("❌ Cluster bind failed: %v", err)
			writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
