package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/models"
)

// SearchProjectionStore maintains the denormalized campaign search rows
type SearchProjectionStore interface {
	Upsert(ctx context.Context, projection *models.CampaignSearchProjection) error
	GetByCampaign(ctx context.Context, campaignID uuid.UUID) (*models.CampaignSearchProjection, error)
}

// SearchIndexer mirrors search projections into the search engine
type SearchIndexer interface {
	IndexCampaign(ctx context.Context, projection *models.CampaignSearchProjection) error
}

// RoleProjectionStore maintains role and role assignment projections
type RoleProjectionStore interface {
	UpsertRole(ctx context.Context, role *models.Role) error
	UpdatePermissions(ctx context.Context, roleID uuid.UUID, permissions []string) error
	GetPermissions(ctx context.Context, roleID uuid.UUID) ([]string, error)
	UpsertAssignment(ctx context.Context, assignment *models.RoleAssignment) error
}

// ProjectionsProcessor translates lifecycle events into idempotent
// projection upserts
type ProjectionsProcessor struct {
	search  SearchProjectionStore
	indexer SearchIndexer
	roles   RoleProjectionStore
}

// NewProjectionsProcessor creates a new projections processor. The
// indexer may be nil when the search engine is unavailable; rows are then
// still upserted and can be reindexed later.
func NewProjectionsProcessor(search SearchProjectionStore, indexer SearchIndexer, roles RoleProjectionStore) *ProjectionsProcessor {
	return &ProjectionsProcessor{
		search:  search,
		indexer: indexer,
		roles:   roles,
	}
}

// Name returns the processor name used in the status ledger
func (p *ProjectionsProcessor) Name() string {
	return ProcessorProjections
}

// Handle applies one event to the projection rows
func (p *ProjectionsProcessor) Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error {
	switch pl := payload.(type) {
	case *events.CampaignCreatedPayload:
		return p.projectCampaignCreated(ctx, pl)
	case *events.CampaignUpdatedPayload:
		return p.projectCampaignUpdated(ctx, pl)
	case *events.CampaignStatusChangedPayload:
		return p.projectCampaignStatus(ctx, pl)
	case *events.AdminRoleAssignedPayload:
		return p.projectRoleAssignment(ctx, pl)
	case *events.RoleCreatedPayload:
		return p.projectRoleCreated(ctx, pl)
	case *events.RolePermissionsChangedPayload:
		return p.projectRolePermissions(ctx, pl)
	default:
		log.Debug().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("No projection for event type")
		return nil
	}
}

func (p *ProjectionsProcessor) projectCampaignCreated(ctx context.Context, pl *events.CampaignCreatedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}
	ownerID, err := uuid.Parse(pl.OwnerID)
	if err != nil {
		return errors.Wrap(err, "invalid owner id")
	}

	projection := &models.CampaignSearchProjection{
		CampaignID: campaignID,
		OwnerID:    ownerID,
		Title:      pl.Title,
		Category:   pl.Category,
		Status:     "active",
		SearchText: buildSearchText(pl.Title, "", pl.Category),
	}
	return p.writeCampaignProjection(ctx, projection)
}

func (p *ProjectionsProcessor) projectCampaignUpdated(ctx context.Context, pl *events.CampaignUpdatedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}

	// Only a missing row triggers the lazy create; any other read failure
	// must fail the processor, or the upsert would blank the existing row
	projection, err := p.search.GetByCampaign(ctx, campaignID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First relevant event for this campaign
		ownerID, perr := uuid.Parse(pl.OwnerID)
		if perr != nil {
			return errors.Wrap(perr, "invalid owner id")
		}
		projection = &models.CampaignSearchProjection{
			CampaignID: campaignID,
			OwnerID:    ownerID,
			Status:     "active",
		}
	} else if err != nil {
		return errors.Wrap(err, "failed to load search projection")
	}

	if pl.Title != "" {
		projection.Title = pl.Title
	}
	if pl.Description != "" {
		projection.Description = pl.Description
	}
	if pl.Category != "" {
		projection.Category = pl.Category
	}
	projection.SearchText = buildSearchText(projection.Title, projection.Description, projection.Category)

	return p.writeCampaignProjection(ctx, projection)
}

func (p *ProjectionsProcessor) projectCampaignStatus(ctx context.Context, pl *events.CampaignStatusChangedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}

	projection, err := p.search.GetByCampaign(ctx, campaignID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		projection = &models.CampaignSearchProjection{CampaignID: campaignID}
	} else if err != nil {
		return errors.Wrap(err, "failed to load search projection")
	}
	projection.Status = pl.NewStatus

	return p.writeCampaignProjection(ctx, projection)
}

func (p *ProjectionsProcessor) writeCampaignProjection(ctx context.Context, projection *models.CampaignSearchProjection) error {
	if err := p.search.Upsert(ctx, projection); err != nil {
		return errors.Wrap(err, "failed to upsert search projection")
	}

	if p.indexer == nil {
		log.Warn().
			Str("campaign_id", projection.CampaignID.String()).
			Msg("Search indexer unavailable, projection row written without index update")
		return nil
	}

	if err := p.indexer.IndexCampaign(ctx, projection); err != nil {
		return errors.Wrap(err, "failed to index campaign")
	}
	return nil
}

func (p *ProjectionsProcessor) projectRoleAssignment(ctx context.Context, pl *events.AdminRoleAssignedPayload) error {
	userID, err := uuid.Parse(pl.UserID)
	if err != nil {
		return errors.Wrap(err, "invalid user id")
	}
	roleID, err := uuid.Parse(pl.RoleID)
	if err != nil {
		return errors.Wrap(err, "invalid role id")
	}
	adminID, err := uuid.Parse(pl.AdminID)
	if err != nil {
		return errors.Wrap(err, "invalid admin id")
	}

	assignment := &models.RoleAssignment{
		ID:          uuid.New(),
		UserID:      userID,
		RoleID:      roleID,
		ContextType: pl.ContextType,
		ContextID:   pl.ContextID,
		Active:      pl.Active,
		AssignedBy:  adminID,
	}
	if err := p.roles.UpsertAssignment(ctx, assignment); err != nil {
		return errors.Wrap(err, "failed to upsert role assignment")
	}
	return nil
}

func (p *ProjectionsProcessor) projectRoleCreated(ctx context.Context, pl *events.RoleCreatedPayload) error {
	roleID, err := uuid.Parse(pl.RoleID)
	if err != nil {
		return errors.Wrap(err, "invalid role id")
	}
	createdBy, err := uuid.Parse(pl.CreatedBy)
	if err != nil {
		return errors.Wrap(err, "invalid creator id")
	}

	permissions, err := json.Marshal(pl.Permissions)
	if err != nil {
		return errors.Wrap(err, "failed to marshal permissions")
	}

	role := &models.Role{
		ID:          roleID,
		Name:        pl.Name,
		Permissions: permissions,
		CreatedBy:   createdBy,
	}
	if err := p.roles.UpsertRole(ctx, role); err != nil {
		return errors.Wrap(err, "failed to upsert role")
	}
	return nil
}

func (p *ProjectionsProcessor) projectRolePermissions(ctx context.Context, pl *events.RolePermissionsChangedPayload) error {
	roleID, err := uuid.Parse(pl.RoleID)
	if err != nil {
		return errors.Wrap(err, "invalid role id")
	}

	current, err := p.roles.GetPermissions(ctx, roleID)
	if err != nil {
		return errors.Wrap(err, "failed to load current permissions")
	}

	merged := applyPermissionChange(current, pl.Added, pl.Removed)
	if err := p.roles.UpdatePermissions(ctx, roleID, merged); err != nil {
		return errors.Wrap(err, "failed to update permissions")
	}
	return nil
}

// applyPermissionChange merges added permissions into the current set and
// drops removed ones, preserving order and deduplicating
func applyPermissionChange(current, added, removed []string) []string {
	removedSet := make(map[string]bool, len(removed))
	for _, perm := range removed {
		removedSet[perm] = true
	}

	seen := make(map[string]bool, len(current)+len(added))
	merged := make([]string, 0, len(current)+len(added))
	for _, perm := range current {
		if removedSet[perm] || seen[perm] {
			continue
		}
		seen[perm] = true
		merged = append(merged, perm)
	}
	for _, perm := range added {
		if removedSet[perm] || seen[perm] {
			continue
		}
		seen[perm] = true
		merged = append(merged, perm)
	}

	return merged
}

// buildSearchText builds the denormalized searchable text for a campaign
func buildSearchText(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}
