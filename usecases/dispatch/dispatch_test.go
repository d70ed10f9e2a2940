package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/models"
)

type fakeAuth struct {
	err   error
	calls int
}

func (f *fakeAuth) CheckAccess(_ context.Context, _, scope string) (*models.Principal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Principal{ID: "org_test", Scopes: []string{scope}}, nil
}

// fakeSession backs Send with a real correlator so Await behaves like the
// production path, and lets each test decide how the "agent" answers.
type fakeSession struct {
	corr     *correlator.Correlator
	onSend   func(callID string, cmd models.CommandPayload)
	sendErr  error
	released []string
}

func (f *fakeSession) Send(cmd models.CommandPayload, timeout time.Duration) (*correlator.PendingCall, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	call := f.corr.Issue(timeout)
	if f.onSend != nil {
		go f.onSend(call.CallID(), cmd)
	}
	return call, nil
}

func (f *fakeSession) Release(callID string) {
	f.released = append(f.released, callID)
}

type fakeResolver struct {
	session *fakeSession
	lookups int
}

func (f *fakeResolver) Lookup(string) (AgentSession, bool) {
	f.lookups++
	if f.session == nil {
		return nil, false
	}
	return f.session, true
}

func TestDispatch_NeverConnectedAgentFailsImmediately(t *testing.T) {
	dispatcher := NewDispatcher(&fakeAuth{}, &fakeResolver{}, 30*time.Second)

	start := time.Now()
	_, err := dispatcher.Dispatch(context.Background(), "key", "ag_missing", models.CommandPayload{Message: models.MessageGetPods})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAgentNotConnected)
	assert.Less(t, time.Since(start), time.Second, "a missing session must fail fast, not wait out the command timeout")
}

func TestDispatch_AuthDeniedShortCircuits(t *testing.T) {
	resolver := &fakeResolver{session: &fakeSession{corr: correlator.NewCorrelator()}}
	auth := &fakeAuth{err: core.NewAuthError(core.AuthDenied)}
	dispatcher := NewDispatcher(auth, resolver, 30*time.Second)

	_, err := dispatcher.Dispatch(context.Background(), "bad-key", "ag_1", models.CommandPayload{Message: models.MessageGetPods})
	require.Error(t, err)
	assert.True(t, core.IsAuthDenied(err))
	assert.Equal(t, 0, resolver.lookups, "denied callers must never reach the registry")
}

func TestGetNamespaces_ParsesReply(t *testing.T) {
	session := &fakeSession{corr: correlator.NewCorrelator()}
	session.onSend = func(callID string, cmd models.CommandPayload) {
		assert.Equal(t, models.MessageGetNamespaces, cmd.Message)
		reply, _ := json.Marshal(models.NamespacesResult{Namespaces: []string{"default", "kube-system"}})
		session.corr.Resolve(callID, reply)
	}
	dispatcher := NewDispatcher(&fakeAuth{}, &fakeResolver{session: session}, 5*time.Second)

	result, err := dispatcher.GetNamespaces(context.Background(), "key", "ag_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "kube-system"}, result.Namespaces)
}

func TestTailLogs_CarriesTargetCoordinates(t *testing.T) {
	session := &fakeSession{corr: correlator.NewCorrelator()}
	session.onSend = func(callID string, cmd models.CommandPayload) {
		assert.Equal(t, "payments", cmd.Namespace)
		assert.Equal(t, "api-7f9", cmd.Pod)
		assert.Equal(t, "app", cmd.Container)
		assert.Equal(t, 100, cmd.Lines)
		reply, _ := json.Marshal(models.LogsResult{Lines: []string{"started"}})
		session.corr.Resolve(callID, reply)
	}
	dispatcher := NewDispatcher(&fakeAuth{}, &fakeResolver{session: session}, 5*time.Second)

	result, err := dispatcher.TailLogs(context.Background(), "key", "ag_1", "payments", "api-7f9", "app", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"started"}, result.Lines)
}

func TestDispatch_TimeoutReleasesCall(t *testing.T) {
	session := &fakeSession{corr: correlator.NewCorrelator()}
	// Agent never answers
	dispatcher := NewDispatcher(&fakeAuth{}, &fakeResolver{session: session}, 50*time.Millisecond)

	_, err := dispatcher.Dispatch(context.Background(), "key", "ag_1", models.CommandPayload{Message: models.MessageGetPods})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRequestTimeout)
	assert.Len(t, session.released, 1, "a timed-out call must free its outstanding slot")
}
