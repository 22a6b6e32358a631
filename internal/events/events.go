package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the shape of an event payload
type EventType string

// EventType constants
const (
	// Donation events
	DonationCompleted EventType = "donation.completed"

	// Campaign events
	CampaignCreated       EventType = "campaign.created"
	CampaignUpdated       EventType = "campaign.updated"
	CampaignStatusChanged EventType = "campaign.status_changed"
	CampaignGoalReached   EventType = "campaign.goal_reached"

	// User and organization events
	UserUpdated         EventType = "user.updated"
	OrganizationUpdated EventType = "organization.updated"

	// Admin and role events
	AdminUserStatusChanged EventType = "admin.user.status_changed"
	AdminRoleAssigned      EventType = "admin.user.role_assigned"
	RoleCreated            EventType = "role.created"
	RolePermissionsChanged EventType = "role.permissions_changed"
)

// Metadata carries optional attribution for an event
type Metadata struct {
	AggregateType string `json:"aggregate_type,omitempty"`
	AggregateID   string `json:"aggregate_id,omitempty"`
	Source        string `json:"source,omitempty"`
}

// DomainEvent is an immutable record of something that happened on the
// platform. The payload always satisfies the schema of its declared type;
// this is enforced at construction, not at consumption.
type DomainEvent struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
}
