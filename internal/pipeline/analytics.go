package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/events"
)

// CampaignAnalyticsStore folds donations into the campaign aggregate
type CampaignAnalyticsStore interface {
	ApplyDonation(ctx context.Context, campaignID, donorID uuid.UUID, amount int64, donatedAt time.Time) error
}

// DonorHistoryStore folds donations into the donor aggregate
type DonorHistoryStore interface {
	ApplyDonation(ctx context.Context, donorID, campaignID uuid.UUID, amount int64) error
}

// AnalyticsProcessor maintains donation aggregates. Counter updates are
// delegated to atomic store-side upserts, so concurrent pipeline instances
// never coordinate through locks.
type AnalyticsProcessor struct {
	campaignAnalytics CampaignAnalyticsStore
	donorHistory      DonorHistoryStore
}

// NewAnalyticsProcessor creates a new analytics processor
func NewAnalyticsProcessor(campaignAnalytics CampaignAnalyticsStore, donorHistory DonorHistoryStore) *AnalyticsProcessor {
	return &AnalyticsProcessor{
		campaignAnalytics: campaignAnalytics,
		donorHistory:      donorHistory,
	}
}

// Name returns the processor name used in the status ledger
func (p *AnalyticsProcessor) Name() string {
	return ProcessorAnalytics
}

// Handle applies one event to the analytics aggregates
func (p *AnalyticsProcessor) Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error {
	switch pl := payload.(type) {
	case *events.DonationCompletedPayload:
		return p.applyDonation(ctx, event, pl)

	case *events.CampaignCreatedPayload,
		*events.CampaignUpdatedPayload,
		*events.CampaignStatusChangedPayload,
		*events.CampaignGoalReachedPayload,
		*events.UserUpdatedPayload,
		*events.OrganizationUpdatedPayload,
		*events.AdminUserStatusChangedPayload,
		*events.AdminRoleAssignedPayload,
		*events.RoleCreatedPayload,
		*events.RolePermissionsChangedPayload:
		// Lifecycle hooks: tracked for audit trails, no aggregate yet
		log.Debug().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Analytics lifecycle hook")
		return nil

	default:
		return nil
	}
}

func (p *AnalyticsProcessor) applyDonation(ctx context.Context, event *events.DomainEvent, pl *events.DonationCompletedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}
	donorID, err := uuid.Parse(pl.UserID)
	if err != nil {
		return errors.Wrap(err, "invalid user id")
	}

	if err := p.campaignAnalytics.ApplyDonation(ctx, campaignID, donorID, pl.Amount, event.Timestamp); err != nil {
		return errors.Wrap(err, "failed to update campaign analytics")
	}

	if err := p.donorHistory.ApplyDonation(ctx, donorID, campaignID, pl.Amount); err != nil {
		return errors.Wrap(err, "failed to update donor history")
	}

	log.Info().
		Str("event_id", event.ID).
		Str("campaign_id", pl.CampaignID).
		Int64("amount", pl.Amount).
		Msg("Donation applied to analytics aggregates")

	return nil
}
