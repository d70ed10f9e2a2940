package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	"agentgateway/models"
)

type PostgresAgentsRepository struct {
	db     *sqlx.DB
	schema string
}

func NewPostgresAgentsRepository(db *sqlx.DB, schema string) *PostgresAgentsRepository {
	return &PostgresAgentsRepository{db: db, schema: schema}
}

// UpsertAgentByAPIKeyRef creates the agent record, or - when the credential
// fingerprint already exists - returns the existing record unchanged. This is
// what makes onboarding safe to retry: the same credential always maps to the
// same server-generated agent id, and exactly one row is ever created.
func (r *PostgresAgentsRepository) UpsertAgentByAPIKeyRef(ctx context.Context, agent *models.Agent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.agents (id, cluster_id, cluster_name, api_key_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (api_key_ref)
		DO UPDATE SET updated_at = NOW()
		RETURNING id, cluster_id, cluster_name, api_key_ref, status, last_seen_at, created_at, updated_at`, r.schema)

	err := r.db.QueryRowxContext(ctx, query, agent.ID, agent.ClusterID, agent.ClusterName, agent.APIKeyRef, agent.Status).
		StructScan(agent)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}

	return nil
}

func (r *PostgresAgentsRepository) GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error) {
	query := fmt.Sprintf(`
		SELECT id, cluster_id, cluster_name, api_key_ref, status, last_seen_at, created_at, updated_at
		FROM %s.agents
		WHERE id = $1`, r.schema)

	agent := &models.Agent{}
	err := r.db.GetContext(ctx, agent, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to get agent: %w", err)
	}

	return mo.Some(agent), nil
}

func (r *PostgresAgentsRepository) GetAgentByAPIKeyRef(ctx context.Context, apiKeyRef string) (mo.Option[*models.Agent], error) {
	query := fmt.Sprintf(`
		SELECT id, cluster_id, cluster_name, api_key_ref, status, last_seen_at, created_at, updated_at
		FROM %s.agents
		WHERE api_key_ref = $1`, r.schema)

	agent := &models.Agent{}
	err := r.db.GetContext(ctx, agent, query, apiKeyRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to get agent by api_key_ref: %w", err)
	}

	return mo.Some(agent), nil
}

// BindCluster back-fills the agent's cluster_id. The WHERE clause only
// matches when the agent is unbound or already bound to the same cluster, so
// a conflicting bind affects zero rows and the caller can surface a conflict
// instead of silently overwriting.
func (r *PostgresAgentsRepository) BindCluster(ctx context.Context, agentID, clusterID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET cluster_id = $2, updated_at = NOW()
		WHERE id = $1 AND (cluster_id IS NULL OR cluster_id = $2)`, r.schema)

	result, err := r.db.ExecContext(ctx, query, agentID, clusterID)
	if err != nil {
		return false, fmt.Errorf("failed to bind cluster: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresAgentsRepository) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET status = $2, last_seen_at = NOW(), updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := r.db.ExecContext(ctx, query, agentID, status)
	if err != nil {
		return false, fmt.Errorf("failed to update agent status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresAgentsRepository) UpdateAgentLastSeen(ctx context.Context, agentID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET last_seen_at = NOW(), updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := r.db.ExecContext(ctx, query, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to update agent last_seen_at: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresAgentsRepository) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	query := fmt.Sprintf(`
		SELECT id, cluster_id, cluster_name, api_key_ref, status, last_seen_at, created_at, updated_at
		FROM %s.agents
		ORDER BY created_at ASC`, r.schema)

	var agents []*models.Agent
	err := r.db.SelectContext(ctx, &agents, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	return agents, nil
}

// MarkStaleAgentsDisconnected flips connected agents whose last heartbeat is
// older than the threshold to disconnected. Agents are never deleted.
func (r *PostgresAgentsRepository) MarkStaleAgentsDisconnected(ctx context.Context, staleThresholdMinutes int) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET status = 'disconnected', updated_at = NOW()
		WHERE status = 'connected' AND last_seen_at < NOW() - INTERVAL '%d minutes'`, r.schema, staleThresholdMinutes)

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale agents disconnected: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
