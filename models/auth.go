package models

// Auth scopes checked through the broker relay
const (
	ScopeAgentsConnect = "agents:connect"
	ScopeAgentsCommand = "agents:command"
	ScopeAgentsOnboard = "agents:onboard"
	ScopeAgentsRead    = "agents:read"
)

// AuthRequest is published on the auth_requests queue for the identity
// service. Ephemeral - never persisted, correlated solely by call_id.
type AuthRequest struct {
	CallID string `json:"call_id"`
	APIKey string `json:"api_key"`
	Scope  string `json:"scope"`
}

// AuthResult is consumed from the auth_results queue. The queue is shared by
// many concurrent callers; call_id routes each result to its waiter.
type AuthResult struct {
	CallID    string     `json:"call_id"`
	Allowed   bool       `json:"allowed"`
	Principal *Principal `json:"principal,omitempty"`
}

// Principal identifies the authenticated caller. ExpiresInSeconds, when set,
// is an explicit TTL the identity service grants - absent a TTL, results are
// never cached across calls.
type Principal struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	ExpiresInSeconds int      `json:"expires_in_seconds,omitempty"`
}

// HasScope reports whether the principal was granted the given scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
