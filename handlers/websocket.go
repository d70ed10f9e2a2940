package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/gateway"
	"agentgateway/middleware"
	"agentgateway/models"
	"agentgateway/services/agents"
	"agentgateway/services/onboarding"
)

type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	checker       middleware.AccessChecker
	registry      *gateway.Registry
	agentsService *agents.AgentsService
	corr          *correlator.Correlator
	sessionCfg    gateway.SessionConfig
}

func NewWebSocketHandler(
	checker middleware.AccessChecker,
	registry *gateway.Registry,
	agentsService *agents.AgentsService,
	corr *correlator.Correlator,
	sessionCfg gateway.SessionConfig,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Agents are non-browser clients, origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		checker:       checker,
		registry:      registry,
		agentsService: agentsService,
		corr:          corr,
		sessionCfg:    sessionCfg,
	}
}

// ServeWS handles GET /v1/agents/ws. Authentication and agent lookup happen
// before the upgrade so a bad credential is refused with a plain HTTP status
// instead of an upgraded-then-dropped socket.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-Agent-API-Key")
	agentID := r.Header.Get("X-Agent-ID")
	if apiKey == "" || agentID == "" {
		writeErrorResponse(w, http.StatusUnauthorized, "missing X-Agent-API-Key or X-Agent-ID header")
		return
	}

	if _, err := h.checker.CheckAccess(r.Context(), apiKey, models.ScopeAgentsConnect); err != nil {
		if core.IsAuthDenied(err) {
			writeErrorResponse(w, http.StatusUnauthorized, "access denied")
			return
		}
		log.Printf("❌ Auth check for websocket failed: %v", err)
		writeErrorResponse(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
		return
	}

	agent, err := h.agentsService.GetAgentByID(r.Context(), agentID)
	if err != nil {
		if core.IsNotFoundError(err) {
			writeErrorResponse(w, http.StatusNotFound, "agent not onboarded")
			return
		}
		log.Printf("❌ Agent lookup for websocket failed: %v", err)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if agent.APIKeyRef != onboarding.FingerprintAPIKey(apiKey) {
		writeErrorResponse(w, http.StatusUnauthorized, "credential does not match agent")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade for agent %s failed: %v", agentID, err)
		return
	}

	log.Printf("🔌 Agent %s connected", agentID)

	session := gateway.NewSession(agentID, conn, h.corr, h.sessionCfg, h.onHeartbeat, h.onSessionClose)
	h.registry.Register(session)
	session.Open()

	if err := h.agentsService.RegisterConnection(context.Background(), agentID); err != nil {
		log.Printf("⚠️ Failed to mark agent %s connected: %v", agentID, err)
	}

	// Run blocks until the connection is torn down. The handler goroutine is
	// the session's read loop.
	session.Run()
}

func (h *WebSocketHandler) onHeartbeat(agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.agentsService.RecordHeartbeat(ctx, agentID); err != nil {
		log.Printf("⚠️ Failed to record heartbeat for agent %s: %v", agentID, err)
	}
}

// onSessionClose runs once per session teardown. Only the current registry
// occupant flips the durable status: an evicted session's teardown must not
// mark its freshly connected successor as disconnected.
func (h *WebSocketHandler) onSessionClose(s *gateway.Session) {
	if !h.registry.Unregister(s) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.agentsService.MarkDisconnected(ctx, s.AgentID()); err != nil {
		log.Printf("⚠️ Failed to mark agent %s disconnected: %v", s.AgentID(), err)
	}
}
