package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentgateway/core"
	"agentgateway/correlator"
	"agentgateway/models"
)

// SessionState models the connection lifecycle:
// Connecting -> Open -> Closing -> Closed
type SessionState int

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// SessionConfig carries the per-connection tuning knobs.
type SessionConfig struct {
	HeartbeatInterval   time.Duration
	IdleTimeout         time.Duration
	MaxOutstandingCalls int
}

// HeartbeatFunc is invoked (off the read loop) on every agent heartbeat.
type HeartbeatFunc func(agentID string)

// CloseFunc is invoked exactly once when the session is fully torn down.
type CloseFunc func(s *Session)

// Session is the per-agent duplex channel. It exclusively owns its socket -
// no other component writes to the connection directly. Multiple commands may
// be outstanding concurrently; replies are matched by call_id and are not
// assumed to arrive in order.
type Session struct {
	agentID string
	conn    *websocket.Conn
	corr    *correlator.Correlator
	cfg     SessionConfig

	writeMu sync.Mutex

	mu      sync.Mutex
	state   SessionState
	pending map[string]struct{}

	closed      chan struct{}
	closeOnce   sync.Once
	onHeartbeat HeartbeatFunc
	onClose     CloseFunc
}

func NewSession(
	agentID string,
	conn *websocket.Conn,
	corr *correlator.Correlator,
	cfg SessionConfig,
	onHeartbeat HeartbeatFunc,
	onClose CloseFunc,
) *Session {
	return &Session{
		agentID:     agentID,
		conn:        conn,
		corr:        corr,
		cfg:         cfg,
		state:       StateConnecting,
		pending:     make(map[string]struct{}),
		closed:      make(chan struct{}),
		onHeartbeat: onHeartbeat,
		onClose:     onClose,
	}
}

func (s *Session) AgentID() string {
	return s.agentID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCalls returns this session's outstanding call count - the primary
// capacity signal for backpressure.
func (s *Session) PendingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Open transitions Connecting -> Open once the handshake succeeded and the
// registry accepted the session.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateOpen
	}
}

// Send serializes the command under a freshly issued call_id and writes it to
// the socket. On write failure the session transitions to Closing and every
// still-pending call fails immediately with ErrAgentDisconnected rather than
// waiting out its timeout.
func (s *Session) Send(cmd models.CommandPayload, timeout time.Duration) (*correlator.PendingCall, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, core.ErrAgentNotConnected
	}
	if s.cfg.MaxOutstandingCalls > 0 && len(s.pending) >= s.cfg.MaxOutstandingCalls {
		s.mu.Unlock()
		log.Printf("⚠️ Agent %s exceeded outstanding call limit (%d), closing session", s.agentID, s.cfg.MaxOutstandingCalls)
		go s.Close()
		return nil, fmt.Errorf("outstanding call limit reached: %w", core.ErrAgentDisconnected)
	}

	call := s.corr.Issue(timeout)
	s.pending[call.CallID()] = struct{}{}
	s.mu.Unlock()

	frame := models.Frame{CallID: call.CallID(), Payload: cmd}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(frame)
	s.writeMu.Unlock()

	if err != nil {
		log.Printf("❌ Write to agent %s failed: %v", s.agentID, err)
		s.corr.Fail(call.CallID(), core.ErrAgentDisconnected)
		go s.Close()
		return nil, core.ErrAgentDisconnected
	}

	log.Printf("📤 Sent %s to agent %s (call_id: %s)", cmd.Message, s.agentID, call.CallID())
	return call, nil
}

// Release drops a call from this session's outstanding set once its caller
// has consumed the result.
func (s *Session) Release(callID string) {
	s.mu.Lock()
	delete(s.pending, callID)
	s.mu.Unlock()
}

// Run is the session's read loop. It blocks until the connection is torn
// down; callers run it once per session. Each inbound frame is either a reply
// to an outstanding call (routed into the correlator) or an unsolicited event
// such as a heartbeat - handled off the loop so it never blocks reads.
func (s *Session) Run() {
	defer s.Close()

	go s.pingLoop()

	s.refreshReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.refreshReadDeadline()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ Read from agent %s failed: %v", s.agentID, err)
			}
			return
		}
		s.refreshReadDeadline()

		var frame models.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("⚠️ %v from agent %s: %v", core.ErrProtocolError, s.agentID, err)
			continue
		}

		switch {
		case frame.IsReply():
			s.routeReply(&frame)
		case len(frame.Payload) > 0:
			s.handleEvent(&frame)
		default:
			log.Printf("⚠️ %v from agent %s: frame has neither reply nor payload", core.ErrProtocolError, s.agentID)
		}
	}
}

func (s *Session) routeReply(frame *models.InboundFrame) {
	s.Release(frame.CallID)

	if frame.Error != "" {
		if !s.corr.Fail(frame.CallID, fmt.Errorf("agent returned error: %s", frame.Error)) {
			log.Printf("⚠️ Discarded late error reply for call %s from agent %s", frame.CallID, s.agentID)
		}
		return
	}

	if !s.corr.Resolve(frame.CallID, []byte(frame.Result)) {
		log.Printf("⚠️ Discarded late reply for call %s from agent %s", frame.CallID, s.agentID)
	}
}

func (s *Session) handleEvent(frame *models.InboundFrame) {
	var event models.EventPayload
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		log.Printf("⚠️ %v from agent %s: %v", core.ErrProtocolError, s.agentID, err)
		return
	}

	switch event.Message {
	case models.MessageHeartbeat:
		log.Printf("💓 Heartbeat from agent %s", s.agentID)
		if s.onHeartbeat != nil {
			go s.onHeartbeat(s.agentID)
		}
	default:
		log.Printf("⚠️ Unknown event %q from agent %s", event.Message, s.agentID)
	}
}

func (s *Session) pingLoop() {
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("❌ Ping to agent %s failed: %v", s.agentID, err)
				s.Close()
				return
			}
		}
	}
}

func (s *Session) refreshReadDeadline() {
	if s.cfg.IdleTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}
}

// Close tears the session down: Closing -> fail all in-flight calls with
// ErrAgentDisconnected -> close the socket -> Closed -> notify. Safe to call
// from any goroutine, effective exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		inflight := make([]string, 0, len(s.pending))
		for callID := range s.pending {
			inflight = append(inflight, callID)
		}
		s.pending = make(map[string]struct{})
		s.mu.Unlock()

		for _, callID := range inflight {
			s.corr.Fail(callID, core.ErrAgentDisconnected)
		}
		if len(inflight) > 0 {
			log.Printf("⚠️ Failed %d in-flight calls for disconnecting agent %s", len(inflight), s.agentID)
		}

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.closed)

		log.Printf("🔌 Session closed for agent %s", s.agentID)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// Closed exposes a channel that is closed once teardown finished.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}
