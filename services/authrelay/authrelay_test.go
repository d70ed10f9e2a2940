package authrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/clients"
	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/models"
)

// fakeIdentityService consumes auth_requests from the broker and answers on
// auth_results according to its verdict function.
func fakeIdentityService(t *testing.T, broker *clients.InProcessBroker, verdict func(req models.AuthRequest) models.AuthResult) {
	t.Helper()
	_, err := broker.Subscribe(SubjectAuthRequests, func(data []byte) {
		var req models.AuthRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}

		result := verdict(req)
		result.CallID = req.CallID
		out, err := json.Marshal(result)
		if err != nil {
			return
		}
		_ = broker.Publish(SubjectAuthResults, out)
	})
	require.NoError(t, err)
}

func newTestClient(t *testing.T, broker *clients.InProcessBroker, timeout time.Duration) *Client {
	t.Helper()
	client := NewClient(broker, correlator.NewCorrelator(), timeout)
	require.NoError(t, client.Start())
	t.Cleanup(client.Stop)
	return client
}

func TestCheckAccess_Allowed(t *testing.T) {
	broker := clients.NewInProcessBroker()
	fakeIdentityService(t, broker, func(req models.AuthRequest) models.AuthResult {
		return models.AuthResult{
			Allowed:   true,
			Principal: &models.Principal{ID: "org_123", Scopes: []string{req.Scope}},
		}
	})

	client := newTestClient(t, broker, 5*time.Second)

	principal, err := client.CheckAccess(context.Background(), "key-abc", models.ScopeAgentsCommand)
	require.NoError(t, err)
	assert.Equal(t, "org_123", principal.ID)
	assert.True(t, principal.HasScope(models.ScopeAgentsCommand))
}

func TestCheckAccess_Denied(t *testing.T) {
	broker := clients.NewInProcessBroker()
	fakeIdentityService(t, broker, func(models.AuthRequest) models.AuthResult {
		return models.AuthResult{Allowed: false}
	})

	client := newTestClient(t, broker, 5*time.Second)

	principal, err := client.CheckAccess(context.Background(), "bad-key", models.ScopeAgentsCommand)
	require.Error(t, err)
	assert.Nil(t, principal)
	assert.True(t, core.IsAuthDenied(err), "explicit rejection must be AuthError(denied)")
	assert.False(t, core.IsRetryable(err))
}

func TestCheckAccess_NoReplyIsUnavailableNotHang(t *testing.T) {
	broker := clients.NewInProcessBroker()
	// No identity service subscribed: requests vanish

	client := newTestClient(t, broker, 50*time.Millisecond)

	start := time.Now()
	principal, err := client.CheckAccess(context.Background(), "key-abc", models.ScopeAgentsCommand)
	require.Error(t, err)
	assert.Nil(t, principal, "a silent identity service must never produce a success")
	assert.True(t, core.IsAuthUnavailable(err), "timeout must surface as AuthError(unavailable)")
	assert.Less(t, time.Since(start), 5*time.Second, "check must not hang past its timeout")
}

func TestCheckAccess_ConcurrentCallsOnSharedReplyQueue(t *testing.T) {
	broker := clients.NewInProcessBroker()
	fakeIdentityService(t, broker, func(req models.AuthRequest) models.AuthResult {
		// Echo the key into the principal so each caller can verify it got
		// its own answer back, not a neighbour's.
		return models.AuthResult{
			Allowed:   true,
			Principal: &models.Principal{ID: "principal-for-" + req.APIKey},
		}
	})

	client := newTestClient(t, broker, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			apiKey := fmt.Sprintf("key-%d", i)
			principal, err := client.CheckAccess(context.Background(), apiKey, models.ScopeAgentsRead)
			assert.NoError(t, err)
			if principal != nil {
				assert.Equal(t, "principal-for-"+apiKey, principal.ID)
			}
		}(i)
	}
	wg.Wait()
}

func TestCheckAccess_MalformedResultDiscarded(t *testing.T) {
	broker := clients.NewInProcessBroker()
	_, err := broker.Subscribe(SubjectAuthRequests, func([]byte) {
		_ = broker.Publish(SubjectAuthResults, []byte("garbage"))
	})
	require.NoError(t, err)

	client := newTestClient(t, broker, 50*time.Millisecond)

	_, err = client.CheckAccess(context.Background(), "key", models.ScopeAgentsRead)
	require.Error(t, err)
	assert.True(t, core.IsAuthUnavailable(err))
}
