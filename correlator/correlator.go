// Package correlator is the async RPC correlation primitive shared by the
// auth relay, the command dispatcher and the broker command relay. It issues
// opaque call ids, tracks pending calls against a deadline, and resolves each
// call at most once - whichever of reply, failure or timeout fires first wins
// and the others are no-ops.
package correlator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentgateway/core"
)

// PendingCall is a single outstanding correlated call. The completion slot is
// single-writer: exactly one of Resolve, Fail or the Await deadline settles it.
type PendingCall struct {
	callID   string
	issuedAt time.Time
	deadline time.Time
	corr     *Correlator

	done    chan struct{}
	payload []byte
	err     error
}

// CallID returns the opaque correlation token for this call.
func (p *PendingCall) CallID() string {
	return p.callID
}

// Await blocks until the call is resolved, its deadline elapses, or ctx is
// cancelled. On deadline it returns core.ErrRequestTimeout so callers can
// distinguish "no answer" from "answered with an error". On cancellation the
// pending call is proactively abandoned rather than left to time out.
func (p *PendingCall) Await(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(time.Until(p.deadline))
	defer timer.Stop()

	select {
	case <-p.done:
		return p.payload, p.err

	case <-timer.C:
		if p.corr.Fail(p.callID, core.ErrRequestTimeout) {
			return nil, core.ErrRequestTimeout
		}
		// A reply won the race against the timer - take its outcome.
		<-p.done
		return p.payload, p.err

	case <-ctx.Done():
		p.corr.Abandon(p.callID)
		return nil, ctx.Err()
	}
}

// Correlator tracks pending calls in a mutex-guarded map. It is the only
// mutable shared state besides the agent registry; all mutation goes through
// its synchronized methods.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*PendingCall
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]*PendingCall),
	}
}

// Issue registers a new pending call with the given timeout and returns it.
// Call ids are random UUIDv4 tokens - unpredictable and unique for the
// lifetime they could still be resolved, so results can never be correlated
// across tenants by guessing.
func (c *Correlator) Issue(timeout time.Duration) *PendingCall {
	now := time.Now()
	call := &PendingCall{
		callID:   uuid.NewString(),
		issuedAt: now,
		deadline: now.Add(timeout),
		corr:     c,
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.pending[call.callID] = call
	c.mu.Unlock()

	return call
}

// Resolve completes a pending call with a payload. Returns false if the call
// is unknown, already resolved or expired - a late duplicate reply after
// timeout is discarded, never raised.
func (c *Correlator) Resolve(callID string, payload []byte) bool {
	return c.settle(callID, payload, nil)
}

// Fail completes a pending call with an error. Same at-most-once gate as
// Resolve.
func (c *Correlator) Fail(callID string, err error) bool {
	return c.settle(callID, nil, err)
}

// Abandon drops a pending call without resolving it. Used when the
// originating request is cancelled so the call does not linger until timeout.
func (c *Correlator) Abandon(callID string) {
	c.mu.Lock()
	call, ok := c.pending[callID]
	if ok {
		delete(c.pending, callID)
	}
	c.mu.Unlock()

	if ok {
		call.err = context.Canceled
		close(call.done)
		log.Printf("🗑️ Abandoned pending call %s", callID)
	}
}

// PendingCount returns the number of outstanding calls - the primary capacity
// signal for backpressure decisions.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// settle removes the call from the map and completes it. First writer wins;
// all later attempts see the call gone and return false.
func (c *Correlator) settle(callID string, payload []byte, err error) bool {
	c.mu.Lock()
	call, ok := c.pending[callID]
	if ok {
		delete(c.pending, callID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	call.payload = payload
	call.err = err
	close(call.done)
	return true
}
