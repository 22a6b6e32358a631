package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/fundwave/services/events/internal/cache"
	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/models"
)

// campaignCacheTTL bounds staleness of cached campaign reads
const campaignCacheTTL = 10 * time.Minute

// CampaignRepository provides read access to canonical campaign rows
type CampaignRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
	cache      *cache.RedisCache
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB, readOnlyDB *gorm.DB, redisCache *cache.RedisCache) *CampaignRepository {
	return &CampaignRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
		cache:      redisCache,
	}
}

// GetByID gets a campaign by ID, reading through the cache when enabled
func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	cacheKey := cache.CampaignCacheKey(id.String())

	var campaign models.Campaign
	if r.cache.Enabled() {
		if err := r.cache.Get(ctx, cacheKey, &campaign); err == nil {
			return &campaign, nil
		}
	}

	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).First(&campaign, id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get campaign by ID")
	}

	if r.cache.Enabled() {
		if err := r.cache.Set(ctx, cacheKey, &campaign, campaignCacheTTL); err != nil {
			log.Warn().Err(err).Str("campaign_id", id.String()).Msg("Failed to cache campaign")
		}
	}

	return &campaign, nil
}

// AnalyticsRepository maintains the campaign analytics aggregate.
//
// Counter updates are delegated to a single upsert statement so they stay
// correct under concurrent pipeline instances with no client-side locking.
type AnalyticsRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *gorm.DB, readOnlyDB *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

const applyCampaignDonationSQL = `
WITH donor AS (
    INSERT INTO campaign_donors (campaign_id, donor_id, created_at)
    VALUES (?, ?, NOW())
    ON CONFLICT (campaign_id, donor_id) DO NOTHING
    RETURNING 1
)
INSERT INTO campaign_analytics
    (campaign_id, total_donated, donation_count, average_donation, unique_donors, last_donation_at, updated_at)
VALUES (?, ?, 1, ?, (SELECT COUNT(*) FROM donor), ?, NOW())
ON CONFLICT (campaign_id) DO UPDATE SET
    total_donated    = campaign_analytics.total_donated + EXCLUDED.total_donated,
    donation_count   = campaign_analytics.donation_count + 1,
    average_donation = (campaign_analytics.total_donated + EXCLUDED.total_donated)::float8
                       / (campaign_analytics.donation_count + 1),
    unique_donors    = campaign_analytics.unique_donors + (SELECT COUNT(*) FROM donor),
    last_donation_at = EXCLUDED.last_donation_at,
    updated_at       = NOW()`

// ApplyDonation atomically folds one donation into the campaign aggregate
func (r *AnalyticsRepository) ApplyDonation(ctx context.Context, campaignID, donorID uuid.UUID, amount int64, donatedAt time.Time) error {
	err := r.db.WithContext(ctx).Exec(
		applyCampaignDonationSQL,
		campaignID, donorID,
		campaignID, amount, float64(amount), donatedAt,
	).Error
	if err != nil {
		return errors.Wrap(err, "failed to apply donation to campaign analytics")
	}
	return nil
}

// GetByCampaign gets the analytics aggregate for a campaign
func (r *AnalyticsRepository) GetByCampaign(ctx context.Context, campaignID uuid.UUID) (*models.CampaignAnalytics, error) {
	var analytics models.CampaignAnalytics
	err := r.readOnlyDB.WithContext(ctx).First(&analytics, "campaign_id = ?", campaignID).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get campaign analytics")
	}
	return &analytics, nil
}

// DonorHistoryRepository maintains the per-donor aggregate
type DonorHistoryRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDonorHistoryRepository creates a new donor history repository
func NewDonorHistoryRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DonorHistoryRepository {
	return &DonorHistoryRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

const applyDonorDonationSQL = `
WITH supported AS (
    INSERT INTO donor_campaigns (donor_id, campaign_id, created_at)
    VALUES (?, ?, NOW())
    ON CONFLICT (donor_id, campaign_id) DO NOTHING
    RETURNING 1
)
INSERT INTO donor_histories
    (donor_id, total_donated, donation_count, campaigns_supported, updated_at)
VALUES (?, ?, 1, (SELECT COUNT(*) FROM supported), NOW())
ON CONFLICT (donor_id) DO UPDATE SET
    total_donated       = donor_histories.total_donated + EXCLUDED.total_donated,
    donation_count      = donor_histories.donation_count + 1,
    campaigns_supported = donor_histories.campaigns_supported + (SELECT COUNT(*) FROM supported),
    updated_at          = NOW()`

// ApplyDonation atomically folds one donation into the donor aggregate
func (r *DonorHistoryRepository) ApplyDonation(ctx context.Context, donorID, campaignID uuid.UUID, amount int64) error {
	err := r.db.WithContext(ctx).Exec(
		applyDonorDonationSQL,
		donorID, campaignID,
		donorID, amount,
	).Error
	if err != nil {
		return errors.Wrap(err, "failed to apply donation to donor history")
	}
	return nil
}

// GetByDonor gets the history aggregate for a donor
func (r *DonorHistoryRepository) GetByDonor(ctx context.Context, donorID uuid.UUID) (*models.DonorHistory, error) {
	var history models.DonorHistory
	err := r.readOnlyDB.WithContext(ctx).First(&history, "donor_id = ?", donorID).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get donor history")
	}
	return &history, nil
}

// RoleRepository maintains role and role assignment projections
type RoleRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RoleRepository {
	return &RoleRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// UpsertRole creates or replaces a role definition
func (r *RoleRepository) UpsertRole(ctx context.Context, role *models.Role) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "permissions", "created_by", "updated_at"}),
	}).Create(role).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert role")
	}
	return nil
}

// UpdatePermissions replaces a role's permission set
func (r *RoleRepository) UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error {
	data, err := json.Marshal(permissions)
	if err != nil {
		return errors.Wrap(err, "failed to marshal permissions")
	}

	err = r.db.WithContext(ctx).
		Model(&models.Role{}).
		Where("id = ?", roleID).
		Update("permissions", data).Error
	if err != nil {
		return errors.Wrap(err, "failed to update role permissions")
	}
	return nil
}

// GetPermissions reads a role's current permission set
func (r *RoleRepository) GetPermissions(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	var role models.Role
	err := r.readOnlyDB.WithContext(ctx).First(&role, roleID).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get role")
	}

	var permissions []string
	if len(role.Permissions) > 0 {
		if err := json.Unmarshal(role.Permissions, &permissions); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal permissions")
		}
	}
	return permissions, nil
}

// UpsertAssignment creates or replaces a role assignment row, keyed by
// user, role and context
func (r *RoleRepository) UpsertAssignment(ctx context.Context, assignment *models.RoleAssignment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "role_id"},
			{Name: "context_type"}, {Name: "context_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"active", "assigned_by", "updated_at"}),
	}).Create(assignment).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert role assignment")
	}
	return nil
}

// SearchProjectionRepository maintains the denormalized campaign search rows
type SearchProjectionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSearchProjectionRepository creates a new search projection repository
func NewSearchProjectionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SearchProjectionRepository {
	return &SearchProjectionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert creates or replaces the search projection row for a campaign
func (r *SearchProjectionRepository) Upsert(ctx context.Context, projection *models.CampaignSearchProjection) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "title", "description", "category", "status", "search_text", "updated_at",
		}),
	}).Create(projection).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert campaign search projection")
	}
	return nil
}

// GetByCampaign gets the search projection row for a campaign
func (r *SearchProjectionRepository) GetByCampaign(ctx context.Context, campaignID uuid.UUID) (*models.CampaignSearchProjection, error) {
	var projection models.CampaignSearchProjection
	err := r.readOnlyDB.WithContext(ctx).First(&projection, "campaign_id = ?", campaignID).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get campaign search projection")
	}
	return &projection, nil
}

// StatusLedgerRepository records per-(event, processor) outcomes
type StatusLedgerRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewStatusLedgerRepository creates a new status ledger repository
func NewStatusLedgerRepository(db *gorm.DB, readOnlyDB *gorm.DB) *StatusLedgerRepository {
	return &StatusLedgerRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// RecordOutcome upserts the outcome for one processor on one event.
// Re-invoking with the same (event, processor) key overwrites the prior
// row, which keeps the ledger safe under replayed delivery.
func (r *StatusLedgerRepository) RecordOutcome(ctx context.Context, event *events.DomainEvent, processor string, procErr error) error {
	status := models.ProcessingStatus{
		EventID:     event.ID,
		EventType:   string(event.Type),
		Processor:   processor,
		Status:      models.ProcessingCompleted,
		AttemptedAt: time.Now().UTC(),
	}
	if procErr != nil {
		msg := procErr.Error()
		status.Status = models.ProcessingFailed
		status.Error = &msg
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "processor"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_type", "status", "error", "attempted_at"}),
	}).Create(&status).Error
	if err != nil {
		return errors.Wrap(err, "failed to record processing status")
	}
	return nil
}

// ListByEvent lists ledger rows for an event
func (r *StatusLedgerRepository) ListByEvent(ctx context.Context, eventID string) ([]models.ProcessingStatus, error) {
	var statuses []models.ProcessingStatus
	err := r.readOnlyDB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Find(&statuses).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processing statuses")
	}
	return statuses, nil
}

// CountFailedSince counts failed ledger rows attempted after the cutoff
func (r *StatusLedgerRepository) CountFailedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProcessingStatus{}).
		Where("status = ? AND attempted_at >= ?", models.ProcessingFailed, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count failed processing statuses")
	}
	return count, nil
}

// DeadLetterRepository stores events whose processing raised an
// event-level failure
type DeadLetterRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDeadLetterRepository creates a new dead letter repository
func NewDeadLetterRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Record stores the complete original event alongside the failure reason
func (r *DeadLetterRepository) Record(ctx context.Context, event *events.DomainEvent, reason string) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal dead letter event")
	}

	deadLetter := models.DeadLetterEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Event:     raw,
		Reason:    reason,
	}

	if err := r.db.WithContext(ctx).Create(&deadLetter).Error; err != nil {
		return errors.Wrap(err, "failed to record dead letter event")
	}
	return nil
}

// ListUnreplayed lists dead letters that have not been replayed yet
func (r *DeadLetterRepository) ListUnreplayed(ctx context.Context, limit int) ([]models.DeadLetterEvent, error) {
	var deadLetters []models.DeadLetterEvent
	err := r.readOnlyDB.WithContext(ctx).
		Where("replayed_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&deadLetters).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dead letter events")
	}
	return deadLetters, nil
}

// MarkReplayed stamps a dead letter row as replayed
func (r *DeadLetterRepository) MarkReplayed(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.DeadLetterEvent{}).
		Where("id = ?", id).
		Update("replayed_at", time.Now().UTC())

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark dead letter as replayed")
	}

	if result.RowsAffected == 0 {
		return errors.New("no dead letter event updated")
	}

	return nil
}
