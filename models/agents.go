package models

import (
	"time"
)

// AgentStatus tracks the lifecycle of a durable agent record. Agents are never
// deleted - only marked disconnected.
type AgentStatus string

const (
	AgentStatusPending      AgentStatus = "pending"
	AgentStatusConnected    AgentStatus = "connected"
	AgentStatusDisconnected AgentStatus = "disconnected"
)

// Agent is the durable record of a remote agent. The ID is generated
// server-side on first onboarding and never chosen by the client. ClusterID is
// nullable because an agent may register before its cluster record exists.
type Agent struct {
	ID          string      `json:"id"           db:"id"`
	ClusterID   *string     `json:"cluster_id"   db:"cluster_id"`
	ClusterName string      `json:"cluster_name" db:"cluster_name"`
	APIKeyRef   string      `json:"api_key_ref"  db:"api_key_ref"`
	Status      AgentStatus `json:"status"       db:"status"`
	LastSeenAt  *time.Time  `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt   time.Time   `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"   db:"updated_at"`
}

// ConnectedAgent pairs a durable agent record with its live connection info
// for API listings.
type ConnectedAgent struct {
	AgentID     string     `json:"agent_id"`
	ClusterID   *string    `json:"cluster_id,omitempty"`
	ClusterName string     `json:"cluster_name,omitempty"`
	Status      string     `json:"status"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}
