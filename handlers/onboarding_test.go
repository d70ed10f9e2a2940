package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentgateway/core"
	"agentgateway/models"
	"agentgateway/models/api"
	"agentgateway/services/onboarding"
)

type allowAllChecker struct{}

func (allowAllChecker) CheckAccess(_ context.Context, _, scope string) (*models.Principal, error) {
	return &models.Principal{ID: "org_test", Scopes: []string{scope}}, nil
}

type denyAllChecker struct{}

func (denyAllChecker) CheckAccess(context.Context, string, string) (*models.Principal, error) {
	return nil, core.NewAuthError(core.AuthDenied)
}

func newOnboardRequest(t *testing.T, body api.OnboardAgentRequest, headers map[string]string) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/agents/onboard", bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestOnboardAgent_FirstRegistrationIs201(t *testing.T) {
	repo := new(onboarding.MockAgentsRepository)
	repo.On("GetAgentByAPIKeyRef", mock.Anything, mock.Anything).Return(mo.None[*models.Agent](), nil)
	repo.On("UpsertAgentByAPIKeyRef", mock.Anything, mock.Anything).Return(nil)

	handler := NewOnboardingHandler(onboarding.NewCoordinator(repo), allowAllChecker{})

	req := newOnboardRequest(t, api.OnboardAgentRequest{ClusterName: "prod-east"},
		map[string]string{"X-Agent-API-Key": "key-1"})
	rec := httptest.NewRecorder()
	handler.OnboardAgent(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp api.OnboardAgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, core.IsValidULID(resp.AgentID))
	assert.Equal(t, string(models.AgentStatusPending), resp.Status)
}

func TestOnboardAgent_ReplayIs200WithSameID(t *testing.T) {
	ref := onboarding.FingerprintAPIKey("key-1")
	stored := &models.Agent{ID: core.NewID("ag"), ClusterName: "prod-east", APIKeyRef: ref, Status: models.AgentStatusPending}

	repo := new(onboarding.MockAgentsRepository)
	repo.On("GetAgentByAPIKeyRef", mock.Anything, ref).Return(mo.Some(stored), nil)
	repo.On("UpsertAgentByAPIKeyRef", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			agent := args.Get(1).(*models.Agent)
			*agent = *stored
		}).
		Return(nil)

	handler := NewOnboardingHandler(onboarding.NewCoordinator(repo), allowAllChecker{})

	req := newOnboardRequest(t, api.OnboardAgentRequest{ClusterName: "prod-east"},
		map[string]string{"X-Agent-API-Key": "key-1"})
	rec := httptest.NewRecorder()
	handler.OnboardAgent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.OnboardAgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, stored.ID, resp.AgentID)
}

func TestOnboardAgent_ForeignAgentIDIs409(t *testing.T) {
	other := &models.Agent{ID: core.NewID("ag"), APIKeyRef: onboarding.FingerprintAPIKey("other-key")}

	repo := new(onboarding.MockAgentsRepository)
	repo.On("GetAgentByID", mock.Anything, other.ID).Return(mo.Some(other), nil)

	handler := NewOnboardingHandler(onboarding.NewCoordinator(repo), allowAllChecker{})

	req := newOnboardRequest(t, api.OnboardAgentRequest{ClusterName: "prod-east"},
		map[string]string{"X-Agent-API-Key": "key-1", "X-Agent-ID": other.ID})
	rec := httptest.NewRecorder()
	handler.OnboardAgent(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOnboardAgent_MissingClusterNameIs400(t *testing.T) {
	handler := NewOnboardingHandler(onboarding.NewCoordinator(new(onboarding.MockAgentsRepository)), allowAllChecker{})

	req := newOnboardRequest(t, api.OnboardAgentRequest{},
		map[string]string{"X-Agent-API-Key": "key-1"})
	rec := httptest.NewRecorder()
	handler.OnboardAgent(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboardAgent_DeniedCredentialIs401(t *testing.T) {
	handler := NewOnboardingHandler(onboarding.NewCoordinator(new(onboarding.MockAgentsRepository)), denyAllChecker{})

	req := newOnboardRequest(t, api.OnboardAgentRequest{ClusterName: "prod-east"},
		map[string]string{"X-Agent-API-Key": "revoked-key"})
	rec := httptest.NewRecorder()
	handler.OnboardAgent(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBindCluster_ConflictIs409(t *testing.T) {
	agentID := core.NewID("ag")
	boundTo := "cluster-1"

	repo := new(onboarding.MockAgentsRepository)
	repo.On("BindCluster", mock.Anything, agentID, "cluster-2").Return(false, nil)
	repo.On("GetAgentByID", mock.Anything, agentID).
		Return(mo.Some(&models.Agent{ID: agentID, ClusterID: &boundTo}), nil)

	handler := NewOnboardingHandler(onboarding.NewCoordinator(repo), allowAllChecker{})

	raw, _ := json.Marshal(api.BindClusterRequest{ClusterID: "cluster-2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/agents/"+agentID+"/cluster", bytes.NewReader(raw))
	req = mux.SetURLVars(req, map[string]string{"agentID": agentID})
	rec := httptest.NewRecorder()
	handler.BindCluster(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
