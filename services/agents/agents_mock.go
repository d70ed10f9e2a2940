package agents

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

func (m *MockAgentsRepository) GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsRepository) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) (bool, error) {
	args := m.Called(ctx, agentID, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgentsRepository) UpdateAgentLastSeen(ctx context.Context, agentID string) (bool, error) {
	args := m.Called(ctx, agentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgentsRepository) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *MockAgentsRepository) MarkStaleAgentsDisconnected(ctx context.Context, staleThresholdMinutes int) (int64, error) {
	args := m.Called(ctx, staleThresholdMinutes)
	return args.Get(0).(int64), args.Error(1)
}
