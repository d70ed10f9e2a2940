// Package dispatch turns an authenticated HTTP request into a command frame
// on the right agent's websocket and a blocking wait for its reply.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/gateway"
	"agentgateway/models"
)

// AuthChecker validates a caller's API key for a scope.
type AuthChecker interface {
	CheckAccess(ctx context.Context, apiKey, scope string) (*models.Principal, error)
}

// AgentSession is the slice of a live session dispatch needs.
type AgentSession interface {
	Send(cmd models.CommandPayload, timeout time.Duration) (*correlator.PendingCall, error)
	Release(callID string)
}

// SessionResolver finds the live session for an agent, if any.
type SessionResolver interface {
	Lookup(agentID string) (AgentSession, bool)
}

// RegistryResolver adapts the gateway registry to the SessionResolver
// interface.
type RegistryResolver struct {
	Registry *gateway.Registry
}

func (r *RegistryResolver) Lookup(agentID string) (AgentSession, bool) {
	s, ok := r.Registry.Lookup(agentID)
	if !ok {
		return nil, false
	}
	return s, true
}

type Dispatcher struct {
	auth     AuthChecker
	resolver SessionResolver
	timeout  time.Duration
}

func NewDispatcher(auth AuthChecker, resolver SessionResolver, commandTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		auth:     auth,
		resolver: resolver,
		timeout:  commandTimeout,
	}
}

// Dispatch runs the full path: authenticate, resolve the live session, send
// the frame, await the correlated reply. An agent without a live session
// fails immediately with ErrAgentNotConnected - nothing is queued for later
// delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, apiKey, agentID string, cmd models.CommandPayload) ([]byte, error) {
	if _, err := d.auth.CheckAccess(ctx, apiKey, models.ScopeAgentsCommand); err != nil {
		return nil, err
	}

	session, ok := d.resolver.Lookup(agentID)
	if !ok {
		log.Printf("⚠️ Dispatch of %s to agent %s refused: no live session", cmd.Message, agentID)
		return nil, core.ErrAgentNotConnected
	}

	call, err := session.Send(cmd, d.timeout)
	if err != nil {
		return nil, err
	}

	payload, err := call.Await(ctx)
	if err != nil {
		// The reply slot is freed so a late reply cannot pin the session's
		// outstanding budget forever.
		session.Release(call.CallID())
		return nil, err
	}

	log.Printf("📥 Reply for %s from agent %s (call_id: %s)", cmd.Message, agentID, call.CallID())
	return payload, nil
}

// GetNamespaces asks the agent for its cluster's namespaces.
func (d *Dispatcher) GetNamespaces(ctx context.Context, apiKey, agentID string) (*models.NamespacesResult, error) {
	payload, err := d.Dispatch(ctx, apiKey, agentID, models.CommandPayload{Message: models.MessageGetNamespaces})
	if err != nil {
		return nil, err
	}

	var result models.NamespacesResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode namespaces reply: %w", err)
	}
	return &result, nil
}

// GetPods asks the agent for the pods in one namespace.
func (d *Dispatcher) GetPods(ctx context.Context, apiKey, agentID, namespace string) (*models.PodsResult, error) {
	payload, err := d.Dispatch(ctx, apiKey, agentID, models.CommandPayload{
		Message:   models.MessageGetPods,
		Namespace: namespace,
	})
	if err != nil {
		return nil, err
	}

	var result models.PodsResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode pods reply: %w", err)
	}
	return &result, nil
}

// TailLogs asks the agent for the last lines of one container's logs.
func (d *Dispatcher) TailLogs(ctx context.Context, apiKey, agentID, namespace, pod, container string, lines int) (*models.LogsResult, error) {
	payload, err := d.Dispatch(ctx, apiKey, agentID, models.CommandPayload{
		Message:   models.MessageTailLogs,
		Namespace: namespace,
		Pod:       pod,
		Container: container,
		Lines:     lines,
	})
	if err != nil {
		return nil, err
	}

	var result models.LogsResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode logs reply: %w", err)
	}
	return &result, nil
}
