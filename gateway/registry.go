package gateway

import (
	"log"
	"sync"
)

// Registry is the in-memory table of agent_id -> live session. It is a single
// owned instance constructed at gateway startup and injected where needed,
// never a package-level singleton. Invariant: at most one live session per
// agent_id - a new connection supersedes the old one, never coexists with it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register stores the session for its agent id. A previous live session for
// the same agent is evicted and closed (forced reconnect) so commands can
// never be split-brained onto a dead socket.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	old := r.sessions[s.agentID]
	r.sessions[s.agentID] = s
	r.mu.Unlock()

	if old != nil && old != s {
		log.Printf("⚠️ Agent %s reconnected, evicting previous session", s.agentID)
		// Closed outside the lock: teardown calls back into Unregister.
		old.Close()
	}

	log.Printf("✅ Agent %s registered", s.agentID)
}

// Lookup returns the live session for the agent, if any.
func (r *Registry) Lookup(agentID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[agentID]
	return s, ok
}

// Unregister removes the agent's session only if the stored session is the
// same instance - a stale unregister from an evicted connection must not tear
// down its successor.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.agentID]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.agentID)
	log.Printf("🔌 Agent %s unregistered", s.agentID)
	return true
}

// ConnectedAgentIDs returns the ids of all agents with a live session.
func (r *Registry) ConnectedAgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
