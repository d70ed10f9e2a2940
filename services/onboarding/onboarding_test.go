package onboarding

import (
	"context"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentgateway/core"
	"agentgateway/models"
)

func TestOnboard_NewCredentialCreatesAgent(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	ref := FingerprintAPIKey("key-1")

	repo.On("GetAgentByAPIKeyRef", mock.Anything, ref).Return(mo.None[*models.Agent](), nil)
	repo.On("UpsertAgentByAPIKeyRef", mock.Anything, mock.AnythingOfType("*models.Agent")).Return(nil)

	result, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		ClusterName: "prod-east",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.True(t, core.IsValidULID(result.Agent.ID), "agent id must be server-generated")
	assert.Equal(t, ref, result.Agent.APIKeyRef)
	assert.Equal(t, models.AgentStatusPending, result.Agent.Status)
	repo.AssertExpectations(t)
}

func TestOnboard_RetrySameCredentialReturnsSameAgent(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	ref := FingerprintAPIKey("key-1")

	stored := &models.Agent{
		ID:          core.NewID("ag"),
		ClusterName: "prod-east",
		APIKeyRef:   ref,
		Status:      models.AgentStatusPending,
	}

	repo.On("GetAgentByAPIKeyRef", mock.Anything, ref).Return(mo.Some(stored), nil)
	// The upsert hits the conflict path and hands back the stored row.
	repo.On("UpsertAgentByAPIKeyRef", mock.Anything, mock.AnythingOfType("*models.Agent")).
		Run(func(args mock.Arguments) {
			agent := args.Get(1).(*models.Agent)
			*agent = *stored
		}).
		Return(nil)

	result, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		ClusterName: "prod-east",
	})
	require.NoError(t, err)
	assert.False(t, result.Created, "replay must not count as a new registration")
	assert.Equal(t, stored.ID, result.Agent.ID, "replay must return the original agent id")
}

func TestOnboard_PresentedAgentIDMatchingCredentialSucceeds(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	ref := FingerprintAPIKey("key-1")

	stored := &models.Agent{ID: core.NewID("ag"), ClusterName: "prod-east", APIKeyRef: ref}

	repo.On("GetAgentByID", mock.Anything, stored.ID).Return(mo.Some(stored), nil)
	repo.On("GetAgentByAPIKeyRef", mock.Anything, ref).Return(mo.Some(stored), nil)
	repo.On("UpsertAgentByAPIKeyRef", mock.Anything, mock.AnythingOfType("*models.Agent")).
		Run(func(args mock.Arguments) {
			agent := args.Get(1).(*models.Agent)
			*agent = *stored
		}).
		Return(nil)

	result, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		AgentID:     stored.ID,
		ClusterName: "prod-east",
	})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, result.Agent.ID)
}

func TestOnboard_UnknownPresentedAgentIDConflicts(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	unknownID := core.NewID("ag")

	repo.On("GetAgentByID", mock.Anything, unknownID).Return(mo.None[*models.Agent](), nil)

	_, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		AgentID:     unknownID,
		ClusterName: "prod-east",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateCredential)
	repo.AssertNotCalled(t, "UpsertAgentByAPIKeyRef", mock.Anything, mock.Anything)
}

func TestOnboard_PresentedAgentIDWithDifferentCredentialConflicts(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)

	other := &models.Agent{ID: core.NewID("ag"), APIKeyRef: FingerprintAPIKey("someone-elses-key")}
	repo.On("GetAgentByID", mock.Anything, other.ID).Return(mo.Some(other), nil)

	_, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		AgentID:     other.ID,
		ClusterName: "prod-east",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateCredential)
}

func TestOnboard_MissingClusterNameRejected(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)

	_, err := coordinator.Onboard(context.Background(), OnboardRequest{
		APIKey:      "key-1",
		ClusterName: "   ",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidMetadata)
	repo.AssertNotCalled(t, "UpsertAgentByAPIKeyRef", mock.Anything, mock.Anything)
}

func TestBindCluster_Succeeds(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	agentID := core.NewID("ag")

	repo.On("BindCluster", mock.Anything, agentID, "cluster-1").Return(true, nil)

	err := coordinator.BindCluster(context.Background(), agentID, "cluster-1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestBindCluster_DifferentClusterConflicts(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	agentID := core.NewID("ag")
	boundTo := "cluster-1"

	repo.On("BindCluster", mock.Anything, agentID, "cluster-2").Return(false, nil)
	repo.On("GetAgentByID", mock.Anything, agentID).
		Return(mo.Some(&models.Agent{ID: agentID, ClusterID: &boundTo}), nil)

	err := coordinator.BindCluster(context.Background(), agentID, "cluster-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrClusterConflict)
}

func TestBindCluster_UnknownAgentIsNotFound(t *testing.T) {
	repo := new(MockAgentsRepository)
	coordinator := NewCoordinator(repo)
	agentID := core.NewID("ag")

	repo.On("BindCluster", mock.Anything, agentID, "cluster-1").Return(false, nil)
	repo.On("GetAgentByID", mock.Anything, agentID).Return(mo.None[*models.Agent](), nil)

	err := coordinator.BindCluster(context.Background(), agentID, "cluster-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
