// Package relay bridges the command path onto the message broker so backend
// services without a direct handle on the gateway can still reach agents.
// One side consumes command requests from the broker and plays them onto the
// local registry's sessions; the other side is a client that publishes a
// request and awaits the correlated result.
package relay

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
	"agentgateway/usecases/dispatch"
)

// Broker queue names for the command path
const (
	SubjectCommandRequests = "command_requests"
	SubjectCommandResults  = "command_results"
)

// Wire error codes carried in CommandResult.Error
const (
	ErrCodeAgentNotConnected = "agent_not_connected"
	ErrCodeAgentDisconnected = "agent_disconnected"
	ErrCodeRequestTimeout    = "request_timeout"
)

type Relay struct {
	broker   clients.BrokerClient
	corr     *correlator.Correlator
	resolver dispatch.SessionResolver
	timeout  time.Duration

	reqSub clients.BrokerSubscription
	resSub clients.BrokerSubscription
}

func NewRelay(broker clients.BrokerClient, resolver dispatch.SessionResolver, commandTimeout time.Duration) *Relay {
	return &Relay{
		broker:   broker,
		corr:     correlator.NewCorrelator(),
		resolver: resolver,
		timeout:  commandTimeout,
	}
}

// Start subscribes both sides of the bridge.
func (r *Relay) Start() error {
	reqSub, err := r.broker.Subscribe(SubjectCommandRequests, r.handleRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectCommandRequests, err)
	}
	r.reqSub = reqSub

	resSub, err := r.broker.Subscribe(SubjectCommandResults, r.handleResult)
	if err != nil {
		reqSub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectCommandResults, err)
	}
	r.resSub = resSub
	return nil
}

func (r *Relay) Stop() {
	for _, sub := range []clients.BrokerSubscription{r.reqSub, r.resSub} {
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				log.Printf("⚠️ Failed to unsubscribe relay: %v", err)
			}
		}
	}
}

// Execute publishes a command request onto the broker and blocks until the
// correlated result comes back or the command timeout fires. Callers on the
// broker path are internal services; they are trusted and carry no API key.
func (r *Relay) Execute(ctx context.Context, agentID string, cmd models.CommandPayload) ([]byte, error) {
	call := r.corr.Issue(r.timeout)

	request := models.CommandRequest{
		CallID:  call.CallID(),
		AgentID: agentID,
		Payload: cmd,
	}
	data, err := json.Marshal(request)
	if err != nil {
		r.corr.Abandon(call.CallID())
		return nil, fmt.Errorf("failed to marshal command request: %w", err)
	}

	if err := r.broker.Publish(SubjectCommandRequests, data); err != nil {
		r.corr.Abandon(call.CallID())
		return nil, fmt.Errorf("failed to publish command request: %w", err)
	}

	return call.Await(ctx)
}

// handleRequest serves one broker-side command request against the local
// registry. Await blocks, so each request runs on its own goroutine and
// never stalls the subscription.
func (r *Relay) handleRequest(data []byte) {
	var request models.CommandRequest
	if err := json.Unmarshal(data, &request); err != nil {
		log.Printf("⚠️ Discarding malformed command request: %v", err)
		return
	}

	go func() {
		result := models.CommandResult{CallID: request.CallID}

		payload, err := r.execute(request.AgentID, request.Payload)
		switch {
		case err == nil:
			result.Result = string(payload)
		case errors.Is(err, core.ErrAgentNotConnected):
			result.Error = ErrCodeAgentNotConnected
		case errors.Is(err, core.ErrRequestTimeout):
			result.Error = ErrCodeRequestTimeout
		case errors.Is(err, core.ErrAgentDisconnected):
			result.Error = ErrCodeAgentDisconnected
		default:
			result.Error = err.Error()
		}

		out, err := json.Marshal(result)
		if err != nil {
			log.Printf("❌ Failed to marshal command result for call %s: %v", request.CallID, err)
			return
		}
		if err := r.broker.Publish(SubjectCommandResults, out); err != nil {
			log.Printf("❌ Failed to publish command result for call %s: %v", request.CallID, err)
		}
	}()
}

func (r *Relay) execute(agentID string, cmd models.CommandPayload) ([]byte, error) {
	session, ok := r.resolver.Lookup(agentID)
	if !ok {
		return nil, core.ErrAgentNotConnected
	}

	call, err := session.Send(cmd, r.timeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := call.Await(ctx)
	if err != nil {
		session.Release(call.CallID())
		return nil, err
	}
	return payload, nil
}

// handleResult routes broker-side results back to the waiting Execute caller.
func (r *Relay) handleResult(data []byte) {
	var result models.CommandResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Printf("⚠️ Discarding malformed command result: %v", err)
		return
	}

	if result.Error != "" {
		err := decodeWireError(result.Error)
		if !r.corr.Fail(result.CallID, err) {
			log.Printf("⚠️ Discarding late command error for call %s", result.CallID)
		}
		return
	}

	if !r.corr.Resolve(result.CallID, []byte(result.Result)) {
		log.Printf("⚠️ Discarding late command result for call %s", result.CallID)
	}
}

func decodeWireError(code string) error {
	switch code {
	case ErrCodeAgentNotConnected:
		return core.ErrAgentNotConnected
	case ErrCodeRequestTimeout:
		return core.ErrRequestTimeout
	case ErrCodeAgentDisconnected:
		return core.ErrAgentDisconnected
	default:
		return fmt.Errorf("command failed: %s", code)
	}
}
