package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Processing outcome values for the status ledger
const (
	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
)

// Campaign is a canonical business row owned by the platform backend.
// The pipeline reads it to enrich notifications and search documents but
// never writes it.
type Campaign struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	OwnerID        uuid.UUID      `gorm:"type:uuid;not null" json:"owner_id"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid" json:"organization_id"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `json:"description"`
	Category       string         `gorm:"index" json:"category"`
	Status         string         `gorm:"not null;index" json:"status"`
	GoalAmount     int64          `gorm:"not null" json:"goal_amount"`
}

// CampaignAnalytics is the per-campaign donation aggregate. All counter
// mutations go through a single-statement upsert in the repository; rows
// are created lazily on the first donation.
type CampaignAnalytics struct {
	CampaignID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"campaign_id"`
	TotalDonated    int64      `gorm:"not null;default:0" json:"total_donated"`
	DonationCount   int64      `gorm:"not null;default:0" json:"donation_count"`
	AverageDonation float64    `gorm:"not null;default:0" json:"average_donation"`
	UniqueDonors    int64      `gorm:"not null;default:0" json:"unique_donors"`
	LastDonationAt  *time.Time `json:"last_donation_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CampaignDonor records membership of a donor in a campaign's donor set,
// backing the unique-donor counter
type CampaignDonor struct {
	CampaignID uuid.UUID `gorm:"type:uuid;primaryKey" json:"campaign_id"`
	DonorID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"donor_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DonorHistory is the per-donor aggregate across campaigns
type DonorHistory struct {
	DonorID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"donor_id"`
	TotalDonated       int64     `gorm:"not null;default:0" json:"total_donated"`
	DonationCount      int64     `gorm:"not null;default:0" json:"donation_count"`
	CampaignsSupported int64     `gorm:"not null;default:0" json:"campaigns_supported"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DonorCampaign records membership of a campaign in a donor's supported
// set, backing the campaigns-supported counter
type DonorCampaign struct {
	DonorID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"donor_id"`
	CampaignID uuid.UUID `gorm:"type:uuid;primaryKey" json:"campaign_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Role is a role definition projected from role lifecycle events
type Role struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	Permissions []byte    `gorm:"type:jsonb" json:"permissions"`
	CreatedBy   uuid.UUID `gorm:"type:uuid" json:"created_by"`
}

// RoleAssignment is a user x role x context projection row
type RoleAssignment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_assignment" json:"user_id"`
	RoleID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_assignment" json:"role_id"`
	ContextType string    `gorm:"not null;uniqueIndex:idx_role_assignment" json:"context_type"`
	ContextID   string    `gorm:"uniqueIndex:idx_role_assignment" json:"context_id"`
	Active      bool      `gorm:"not null" json:"active"`
	AssignedBy  uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
}

// CampaignSearchProjection is the denormalized searchable campaign row
type CampaignSearchProjection struct {
	CampaignID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"campaign_id"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	OwnerID     uuid.UUID `gorm:"type:uuid" json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `gorm:"index" json:"category"`
	Status      string    `gorm:"index" json:"status"`
	SearchText  string    `json:"search_text"`
}

// ProcessingStatus is one status ledger row per (event, processor).
// Rows are upserted, never deleted; re-processing overwrites.
type ProcessingStatus struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"not null;uniqueIndex:idx_event_processor" json:"event_id"`
	EventType   string    `gorm:"not null" json:"event_type"`
	Processor   string    `gorm:"not null;uniqueIndex:idx_event_processor" json:"processor"`
	Status      string    `gorm:"not null;index" json:"status"`
	Error       *string   `json:"error"`
	AttemptedAt time.Time `gorm:"not null" json:"attempted_at"`
}

// DeadLetterEvent stores an event whose processing raised an event-level
// failure, verbatim, for manual inspection and replay
type DeadLetterEvent struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	EventID    string     `gorm:"not null;index" json:"event_id"`
	EventType  string     `gorm:"not null" json:"event_type"`
	Event      []byte     `gorm:"type:jsonb;not null" json:"event"`
	Reason     string     `gorm:"not null" json:"reason"`
	ReplayedAt *time.Time `json:"replayed_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Campaign{},
		&CampaignAnalytics{},
		&CampaignDonor{},
		&DonorHistory{},
		&DonorCampaign{},
		&Role{},
		&RoleAssignment{},
		&CampaignSearchProjection{},
		&ProcessingStatus{},
		&DeadLetterEvent{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
