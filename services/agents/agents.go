package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/samber/mo"

	"agentgateway/core"
	"agentgateway/models"
)

// AgentsRepository is the persistence surface this service needs. The
// concrete implementation lives in the db package.
type AgentsRepository interface {
	GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error)
	UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) (bool, error)
	UpdateAgentLastSeen(ctx context.Context, agentID string) (bool, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	MarkStaleAgentsDisconnected(ctx context.Context, staleThresholdMinutes int) (int64, error)
}

type AgentsService struct {
	agentsRepo AgentsRepository
}

func NewAgentsService(repo AgentsRepository) *AgentsService {
	return &AgentsService{agentsRepo: repo}
}

// RegisterConnection marks the agent connected after its websocket session is
// accepted into the registry.
func (s *AgentsService) RegisterConnection(ctx context.Context, agentID string) error {
	log.Printf("📋 Starting to register connection for agent: %s", agentID)
	if !core.IsValidULID(agentID) {
		return fmt.Errorf("agent ID must be a valid ULID")
	}

	updated, err := s.agentsRepo.UpdateAgentStatus(ctx, agentID, models.AgentStatusConnected)
	if err != nil {
		return fmt.Errorf("failed to mark agent connected: %w", err)
	}
	if !updated {
		return fmt.Errorf("agent not found: %w", core.ErrNotFound)
	}

	log.Printf("📋 Completed successfully - registered connection for agent: %s", agentID)
	return nil
}

// MarkDisconnected flips the agent's durable status once its session is torn
// down. The record itself is never deleted.
func (s *AgentsService) MarkDisconnected(ctx context.Context, agentID string) error {
	log.Printf("📋 Starting to mark agent disconnected: %s", agentID)
	if !core.IsValidULID(agentID) {
		return fmt.Errorf("agent ID must be a valid ULID")
	}

	if _, err := s.agentsRepo.UpdateAgentStatus(ctx, agentID, models.AgentStatusDisconnected); err != nil {
		return fmt.Errorf("failed to mark agent disconnected: %w", err)
	}

	log.Printf("📋 Completed successfully - marked agent disconnected: %s", agentID)
	return nil
}

// RecordHeartbeat bumps last_seen_at for a live agent. Called off the session
// read loop, so failures are logged by the caller rather than tearing the
// connection down.
func (s *AgentsService) RecordHeartbeat(ctx context.Context, agentID string) error {
	if !core.IsValidULID(agentID) {
		return fmt.Errorf("agent ID must be a valid ULID")
	}

	updated, err := s.agentsRepo.UpdateAgentLastSeen(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if !updated {
		return fmt.Errorf("agent not found: %w", core.ErrNotFound)
	}

	return nil
}

func (s *AgentsService) GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error) {
	log.Printf("📋 Starting to get agent by ID: %s", agentID)
	if !core.IsValidULID(agentID) {
		return nil, fmt.Errorf("agent ID must be a valid ULID")
	}

	maybeAgent, err := s.agentsRepo.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	agent, ok := maybeAgent.Get()
	if !ok {
		return nil, core.ErrNotFound
	}

	log.Printf("📋 Completed successfully - got agent by ID: %s", agentID)
	return agent, nil
}

// ListConnectedAgents joins the durable agent records with the set of live
// session ids so the listing only contains agents that are actually reachable
// right now.
func (s *AgentsService) ListConnectedAgents(ctx context.Context, connectedIDs []string) ([]*models.ConnectedAgent, error) {
	log.Printf("📋 Starting to list connected agents (%d live sessions)", len(connectedIDs))

	agents, err := s.agentsRepo.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	live := make(map[string]struct{}, len(connectedIDs))
	for _, id := range connectedIDs {
		live[id] = struct{}{}
	}

	connected := make([]*models.ConnectedAgent, 0, len(connectedIDs))
	for _, agent := range agents {
		if _, ok := live[agent.ID]; !ok {
			continue
		}
		connected = append(connected, &models.ConnectedAgent{
			AgentID:     agent.ID,
			ClusterID:   agent.ClusterID,
			ClusterName: agent.ClusterName,
			Status:      string(models.AgentStatusConnected),
			LastSeenAt:  agent.LastSeenAt,
		})
	}

	log.Printf("📋 Completed successfully - listed %d connected agents", len(connected))
	return connected, nil
}

// CleanupStaleAgents reconciles the durable table with reality: connected
// agents that stopped heartbeating past the threshold are flipped to
// disconnected. Runs periodically from the gateway's maintenance ticker.
func (s *AgentsService) CleanupStaleAgents(ctx context.Context, staleThresholdMinutes int) (int64, error) {
	count, err := s.agentsRepo.MarkStaleAgentsDisconnected(ctx, staleThresholdMinutes)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale agents: %w", err)
	}
	if count > 0 {
		log.Printf("🧹 Marked %d stale agents disconnected", count)
	}
	return count, nil
}
