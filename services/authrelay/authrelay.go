// Package authrelay checks API keys out-of-band: the check is published onto
// a broker queue consumed by the identity service, and the verdict comes back
// on a shared reply queue, matched to the waiting caller by call_id. A check
// that never gets an answer is a hard authentication failure - this component
// never fails open and never caches a positive verdict on its own.
package authrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"agentgateway/clients"
	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/models"
)

// Broker queue names shared with the identity service
const (
	SubjectAuthRequests = "auth_requests"
	SubjectAuthResults  = "auth_results"
)

type Client struct {
	broker  clients.BrokerClient
	corr    *correlator.Correlator
	timeout time.Duration
	sub     clients.BrokerSubscription
}

func NewClient(broker clients.BrokerClient, corr *correlator.Correlator, timeout time.Duration) *Client {
	return &Client{
		broker:  broker,
		corr:    corr,
		timeout: timeout,
	}
}

// Start subscribes to the shared reply queue. Must be called once before any
// CheckAccess call.
func (c *Client) Start() error {
	sub, err := c.broker.Subscribe(SubjectAuthResults, c.handleResult)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectAuthResults, err)
	}
	c.sub = sub
	return nil
}

// Stop tears down the reply queue subscription.
func (c *Client) Stop() {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			log.Printf("⚠️ Failed to unsubscribe from %s: %v", SubjectAuthResults, err)
		}
	}
}

// CheckAccess round-trips an API key + requested scope through the identity
// service. An explicit rejection returns AuthError(denied); a missing answer
// within the auth timeout returns AuthError(unavailable). Callers must treat
// both as "not authorized".
func (c *Client) CheckAccess(ctx context.Context, apiKey, scope string) (*models.Principal, error) {
	call := c.corr.Issue(c.timeout)

	request := models.AuthRequest{
		CallID: call.CallID(),
		APIKey: apiKey,
		Scope:  scope,
	}
	data, err := json.Marshal(request)
	if err != nil {
		c.corr.Abandon(call.CallID())
		return nil, fmt.Errorf("failed to marshal auth request: %w", err)
	}

	if err := c.broker.Publish(SubjectAuthRequests, data); err != nil {
		c.corr.Abandon(call.CallID())
		log.Printf("❌ Failed to publish auth check: %v", err)
		return nil, core.NewAuthError(core.AuthUnavailable)
	}

	payload, err := call.Await(ctx)
	if err != nil {
		var authErr *core.AuthError
		switch {
		case errors.As(err, &authErr):
			return nil, err
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			// Timeout or any other failure: the identity service never
			// answered, which is a hard authentication failure.
			log.Printf("⚠️ Auth check %s got no answer: %v", call.CallID(), err)
			return nil, core.NewAuthError(core.AuthUnavailable)
		}
	}

	var principal models.Principal
	if err := json.Unmarshal(payload, &principal); err != nil {
		return nil, core.NewAuthError(core.AuthUnavailable)
	}

	log.Printf("✅ Auth check %s allowed for principal %s", call.CallID(), principal.ID)
	return &principal, nil
}

// handleResult routes every message on the shared reply queue to the caller
// waiting on its call_id. Results for unknown or already-expired calls are
// discarded.
func (c *Client) handleResult(data []byte) {
	var result models.AuthResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Printf("⚠️ Discarding malformed auth result: %v", err)
		return
	}

	if !result.Allowed {
		if !c.corr.Fail(result.CallID, core.NewAuthError(core.AuthDenied)) {
			log.Printf("⚠️ Discarding late auth denial for call %s", result.CallID)
		}
		return
	}

	principal := result.Principal
	if principal == nil {
		principal = &models.Principal{}
	}
	payload, err := json.Marshal(principal)
	if err != nil {
		c.corr.Fail(result.CallID, core.NewAuthError(core.AuthUnavailable))
		return
	}

	if !c.corr.Resolve(result.CallID, payload) {
		log.Printf("⚠️ Discarding late auth result for call %s", result.CallID)
	}
}
