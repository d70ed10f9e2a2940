package api

// OnboardAgentRequest is the body of the agent self-registration call.
// The api key travels in the X-Agent-API-Key header, and a retried call may
// carry the previously assigned id in X-Agent-ID.
type OnboardAgentRequest struct {
	ClusterName  string            `json:"cluster_name"`
	ContextName  string            `json:"context_name,omitempty"`
	ProviderName string            `json:"provider_name,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type OnboardAgentResponse struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

type BindClusterRequest struct {
	ClusterID string `json:"cluster_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
