package onboarding

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"agentgateway/models"
)

// MockAgentsRepository is a mock implementation of AgentsRepository
type MockAgentsRepository struct {
	mock.Mock
}

func (m *MockAgentsRepository) UpsertAgentByAPIKeyRef(ctx context.Context, agent *models.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockAgentsRepository) GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsRepository) GetAgentByAPIKeyRef(ctx context.Context, apiKeyRef string) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, apiKeyRef)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsRepository) BindCluster(ctx context.Context, agentID, clusterID string) (bool, error) {
	args := m.Called(ctx, agentID, clusterID)
	return args.Bool(0), args.Error(1)
}
