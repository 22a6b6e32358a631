package events

// Payload is implemented by every typed event payload
type Payload interface {
	EventType() EventType
	SchemaVersion() int
}

// DonationCompletedPayload represents a completed donation
type DonationCompletedPayload struct {
	DonationID string `json:"donation_id" validate:"required,uuid"`
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	UserID     string `json:"user_id" validate:"required,uuid"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"required,len=3"`
	Anonymous  bool   `json:"anonymous"`
	Message    string `json:"message,omitempty"`
}

func (DonationCompletedPayload) EventType() EventType { return DonationCompleted }
func (DonationCompletedPayload) SchemaVersion() int   { return 1 }

// CampaignCreatedPayload represents a newly created campaign
type CampaignCreatedPayload struct {
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	OwnerID    string `json:"owner_id" validate:"required,uuid"`
	Title      string `json:"title" validate:"required"`
	Category   string `json:"category" validate:"required"`
	GoalAmount int64  `json:"goal_amount" validate:"required,gt=0"`
}

func (CampaignCreatedPayload) EventType() EventType { return CampaignCreated }
func (CampaignCreatedPayload) SchemaVersion() int   { return 1 }

// CampaignUpdatedPayload represents an edit to a campaign
type CampaignUpdatedPayload struct {
	CampaignID    string   `json:"campaign_id" validate:"required,uuid"`
	OwnerID       string   `json:"owner_id" validate:"required,uuid"`
	EditorID      string   `json:"editor_id" validate:"required,uuid"`
	ChangedFields []string `json:"changed_fields" validate:"required,min=1"`
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
}

func (CampaignUpdatedPayload) EventType() EventType { return CampaignUpdated }
func (CampaignUpdatedPayload) SchemaVersion() int   { return 1 }

// CampaignStatusChangedPayload represents a campaign lifecycle transition
type CampaignStatusChangedPayload struct {
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	OldStatus  string `json:"old_status" validate:"required"`
	NewStatus  string `json:"new_status" validate:"required"`
	ChangedBy  string `json:"changed_by" validate:"required,uuid"`
}

func (CampaignStatusChangedPayload) EventType() EventType { return CampaignStatusChanged }
func (CampaignStatusChangedPayload) SchemaVersion() int   { return 1 }

// CampaignGoalReachedPayload represents a campaign hitting its funding goal
type CampaignGoalReachedPayload struct {
	CampaignID  string `json:"campaign_id" validate:"required,uuid"`
	GoalAmount  int64  `json:"goal_amount" validate:"required,gt=0"`
	TotalRaised int64  `json:"total_raised" validate:"required,gt=0"`
}

func (CampaignGoalReachedPayload) EventType() EventType { return CampaignGoalReached }
func (CampaignGoalReachedPayload) SchemaVersion() int   { return 1 }

// UserUpdatedPayload represents a user profile mutation
type UserUpdatedPayload struct {
	UserID        string   `json:"user_id" validate:"required,uuid"`
	ChangedFields []string `json:"changed_fields" validate:"required,min=1"`
}

func (UserUpdatedPayload) EventType() EventType { return UserUpdated }
func (UserUpdatedPayload) SchemaVersion() int   { return 1 }

// OrganizationUpdatedPayload represents an organization mutation
type OrganizationUpdatedPayload struct {
	OrganizationID string   `json:"organization_id" validate:"required,uuid"`
	ChangedFields  []string `json:"changed_fields" validate:"required,min=1"`
}

func (OrganizationUpdatedPayload) EventType() EventType { return OrganizationUpdated }
func (OrganizationUpdatedPayload) SchemaVersion() int   { return 1 }

// AdminUserStatusChangedPayload represents an admin changing a user's status
type AdminUserStatusChangedPayload struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	OldStatus string `json:"old_status" validate:"required"`
	NewStatus string `json:"new_status" validate:"required"`
	AdminID   string `json:"admin_id" validate:"required,uuid"`
}

func (AdminUserStatusChangedPayload) EventType() EventType { return AdminUserStatusChanged }
func (AdminUserStatusChangedPayload) SchemaVersion() int   { return 1 }

// AdminRoleAssignedPayload represents a role being assigned to a user
// within a context (platform, organization or campaign)
type AdminRoleAssignedPayload struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	RoleID      string `json:"role_id" validate:"required,uuid"`
	RoleName    string `json:"role_name" validate:"required"`
	ContextType string `json:"context_type" validate:"required,oneof=platform organization campaign"`
	ContextID   string `json:"context_id,omitempty"`
	AdminID     string `json:"admin_id" validate:"required,uuid"`
	Active      bool   `json:"active"`
}

func (AdminRoleAssignedPayload) EventType() EventType { return AdminRoleAssigned }
func (AdminRoleAssignedPayload) SchemaVersion() int   { return 1 }

// RoleCreatedPayload represents a new role definition
type RoleCreatedPayload struct {
	RoleID      string   `json:"role_id" validate:"required,uuid"`
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	CreatedBy   string   `json:"created_by" validate:"required,uuid"`
}

func (RoleCreatedPayload) EventType() EventType { return RoleCreated }
func (RoleCreatedPayload) SchemaVersion() int   { return 1 }

// RolePermissionsChangedPayload represents a change to a role's permissions
type RolePermissionsChangedPayload struct {
	RoleID    string   `json:"role_id" validate:"required,uuid"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	ChangedBy string   `json:"changed_by" validate:"required,uuid"`
}

func (RolePermissionsChangedPayload) EventType() EventType { return RolePermissionsChanged }
func (RolePermissionsChangedPayload) SchemaVersion() int   { return 1 }
