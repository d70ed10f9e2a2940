// Package onboarding registers agents before their first websocket
// connection. Onboarding is idempotent on the credential: the same API key
// always resolves to the same server-generated agent id, no matter how many
// times the bootstrap job retries.
package onboarding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/samber/mo"

	"agentgateway/core"
	"agentgateway/models"
)

// AgentsRepository is the persistence surface onboarding needs.
type AgentsRepository interface {
	UpsertAgentByAPIKeyRef(ctx context.Context, agent *models.Agent) error
	GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error)
	GetAgentByAPIKeyRef(ctx context.Context, apiKeyRef string) (mo.Option[*models.Agent], error)
	BindCluster(ctx context.Context, agentID, clusterID string) (bool, error)
}

// OnboardRequest is the validated input to Onboard. AgentID is the optional
// id a re-onboarding agent presents about itself; it is only ever checked,
// never trusted as an identity on its own.
type OnboardRequest struct {
	APIKey       string
	AgentID      string
	ClusterName  string
	ContextName  string
	ProviderName string
	Tags         []string
	Metadata     map[string]string
}

// OnboardResult distinguishes a fresh registration from an idempotent replay
// so the HTTP layer can answer 201 vs 200.
type OnboardResult struct {
	Agent   *models.Agent
	Created bool
}

type Coordinator struct {
	agentsRepo AgentsRepository
}

func NewCoordinator(repo AgentsRepository) *Coordinator {
	return &Coordinator{agentsRepo: repo}
}

// FingerprintAPIKey derives the stored credential reference. Raw API keys are
// never persisted or logged.
func FingerprintAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Onboard registers the agent for its credential, or returns the existing
// registration when the credential is already known. A request that presents
// an agent id belonging to a different credential (or to nothing at all) is a
// duplicate-credential conflict, never a silent re-keying.
func (c *Coordinator) Onboard(ctx context.Context, req OnboardRequest) (*OnboardResult, error) {
	log.Printf("📋 Starting to onboard agent for cluster: %s", req.ClusterName)

	if strings.TrimSpace(req.ClusterName) == "" {
		return nil, fmt.Errorf("cluster_name is required: %w", core.ErrInvalidMetadata)
	}
	if req.APIKey == "" {
		return nil, fmt.Errorf("api key is required: %w", core.ErrInvalidMetadata)
	}

	apiKeyRef := FingerprintAPIKey(req.APIKey)

	if req.AgentID != "" {
		if err := c.checkPresentedAgentID(ctx, req.AgentID, apiKeyRef); err != nil {
			return nil, err
		}
	}

	maybeExisting, err := c.agentsRepo.GetAgentByAPIKeyRef(ctx, apiKeyRef)
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	existedBefore := maybeExisting.IsPresent()

	agent := &models.Agent{
		ID:          core.NewID("ag"),
		ClusterName: req.ClusterName,
		APIKeyRef:   apiKeyRef,
		Status:      models.AgentStatusPending,
	}
	// On conflict the upsert returns the already-stored row, so the freshly
	// generated id above is discarded on replays.
	if err := c.agentsRepo.UpsertAgentByAPIKeyRef(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to upsert agent: %w", err)
	}

	log.Printf("📋 Completed successfully - onboarded agent %s (created: %t)", agent.ID, !existedBefore)
	return &OnboardResult{Agent: agent, Created: !existedBefore}, nil
}

// checkPresentedAgentID verifies a client-presented agent id against the
// credential. Ids are generated server-side only, so an unknown id or an id
// bound to a different credential means the client is replaying someone
// else's identity.
func (c *Coordinator) checkPresentedAgentID(ctx context.Context, agentID, apiKeyRef string) error {
	if !core.IsValidULID(agentID) {
		return fmt.Errorf("presented agent id is not a valid ULID: %w", core.ErrDuplicateCredential)
	}

	maybeAgent, err := c.agentsRepo.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to look up presented agent id: %w", err)
	}
	agent, ok := maybeAgent.Get()
	if !ok {
		return fmt.Errorf("presented agent id is unknown: %w", core.ErrDuplicateCredential)
	}
	if agent.APIKeyRef != apiKeyRef {
		return fmt.Errorf("presented agent id belongs to a different credential: %w", core.ErrDuplicateCredential)
	}
	return nil
}

// BindCluster back-fills the agent's cluster_id once the cluster record
// exists. Binding is write-once: rebinding to the same cluster is a no-op
// success, rebinding to a different cluster is a conflict.
func (c *Coordinator) BindCluster(ctx context.Context, agentID, clusterID string) error {
	log.Printf("📋 Starting to bind agent %s to cluster %s", agentID, clusterID)

	if !core.IsValidULID(agentID) {
		return fmt.Errorf("agent ID must be a valid ULID")
	}
	if strings.TrimSpace(clusterID) == "" {
		return fmt.Errorf("cluster_id is required: %w", core.ErrInvalidMetadata)
	}

	bound, err := c.agentsRepo.BindCluster(ctx, agentID, clusterID)
	if err != nil {
		return fmt.Errorf("failed to bind cluster: %w", err)
	}
	if bound {
		log.Printf("📋 Completed successfully - bound agent %s to cluster %s", agentID, clusterID)
		return nil
	}

	// Zero rows: either the agent does not exist, or it is already bound to
	// a different cluster. Fetch once to tell the two apart.
	maybeAgent, err := c.agentsRepo.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to look up agent after bind: %w", err)
	}
	agent, ok := maybeAgent.Get()
	if !ok {
		return core.ErrNotFound
	}
	if agent.ClusterID != nil && *agent.ClusterID != clusterID {
		return fmt.Errorf("agent %s already bound to cluster %s: %w", agentID, *agent.ClusterID, core.ErrClusterConflict)
	}
	return fmt.Errorf("failed to bind cluster for agent %s", agentID)
}
