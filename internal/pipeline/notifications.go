package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/models"
)

// NotificationSender enqueues outbound notifications. Delivery mechanics
// (email, push) live outside this pipeline.
type NotificationSender interface {
	SendMessage(ctx context.Context, body interface{}) error
}

// CampaignReader reads canonical campaign rows
type CampaignReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

// Notification is the outbound message this pipeline decides to fire
type Notification struct {
	Type        string                 `json:"type"`
	RecipientID string                 `json:"recipient_id,omitempty"`
	Subject     string                 `json:"subject"`
	Data        map[string]interface{} `json:"data,omitempty"`
	EventID     string                 `json:"event_id"`
}

// NotificationsProcessor decides which notifications an event should fire
// and with what payload
type NotificationsProcessor struct {
	sender    NotificationSender
	campaigns CampaignReader
}

// NewNotificationsProcessor creates a new notifications processor
func NewNotificationsProcessor(sender NotificationSender, campaigns CampaignReader) *NotificationsProcessor {
	return &NotificationsProcessor{
		sender:    sender,
		campaigns: campaigns,
	}
}

// Name returns the processor name used in the status ledger
func (p *NotificationsProcessor) Name() string {
	return ProcessorNotifications
}

// Handle maps an event to zero or one outbound notification
func (p *NotificationsProcessor) Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error {
	switch pl := payload.(type) {
	case *events.DonationCompletedPayload:
		return p.notifyDonation(ctx, event, pl)

	case *events.CampaignGoalReachedPayload:
		return p.notifyGoalReached(ctx, event, pl)

	case *events.CampaignUpdatedPayload:
		// Owners editing their own campaign don't need to hear about it
		if pl.EditorID == pl.OwnerID {
			return nil
		}
		return p.send(ctx, Notification{
			Type:        "campaign.edited",
			RecipientID: pl.OwnerID,
			Subject:     "Your campaign was edited",
			Data: map[string]interface{}{
				"campaign_id":    pl.CampaignID,
				"editor_id":      pl.EditorID,
				"changed_fields": pl.ChangedFields,
			},
			EventID: event.ID,
		})

	case *events.AdminUserStatusChangedPayload:
		return p.send(ctx, Notification{
			Type:        "account.status_changed",
			RecipientID: pl.UserID,
			Subject:     fmt.Sprintf("Your account status changed to %s", pl.NewStatus),
			Data: map[string]interface{}{
				"old_status": pl.OldStatus,
				"new_status": pl.NewStatus,
			},
			EventID: event.ID,
		})

	case *events.AdminRoleAssignedPayload:
		return p.send(ctx, Notification{
			Type:        "role.assigned",
			RecipientID: pl.UserID,
			Subject:     fmt.Sprintf("You were granted the %s role", pl.RoleName),
			Data: map[string]interface{}{
				"role_id":      pl.RoleID,
				"role_name":    pl.RoleName,
				"context_type": pl.ContextType,
				"context_id":   pl.ContextID,
				"active":       pl.Active,
			},
			EventID: event.ID,
		})

	case *events.RolePermissionsChangedPayload:
		// No single recipient; downstream routes this to platform admins
		return p.send(ctx, Notification{
			Type:    "role.permissions_changed",
			Subject: "Role permissions changed",
			Data: map[string]interface{}{
				"role_id": pl.RoleID,
				"added":   pl.Added,
				"removed": pl.Removed,
			},
			EventID: event.ID,
		})

	default:
		return nil
	}
}

func (p *NotificationsProcessor) notifyDonation(ctx context.Context, event *events.DomainEvent, pl *events.DonationCompletedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}

	campaign, err := p.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return errors.Wrap(err, "failed to load campaign for donation notification")
	}

	data := map[string]interface{}{
		"campaign_id": pl.CampaignID,
		"amount":      pl.Amount,
		"currency":    pl.Currency,
	}
	if !pl.Anonymous {
		data["donor_id"] = pl.UserID
		if pl.Message != "" {
			data["message"] = pl.Message
		}
	}

	return p.send(ctx, Notification{
		Type:        "donation.received",
		RecipientID: campaign.OwnerID.String(),
		Subject:     fmt.Sprintf("New donation to %s", campaign.Title),
		Data:        data,
		EventID:     event.ID,
	})
}

func (p *NotificationsProcessor) notifyGoalReached(ctx context.Context, event *events.DomainEvent, pl *events.CampaignGoalReachedPayload) error {
	campaignID, err := uuid.Parse(pl.CampaignID)
	if err != nil {
		return errors.Wrap(err, "invalid campaign id")
	}

	campaign, err := p.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return errors.Wrap(err, "failed to load campaign for goal notification")
	}

	return p.send(ctx, Notification{
		Type:        "campaign.goal_reached",
		RecipientID: campaign.OwnerID.String(),
		Subject:     fmt.Sprintf("%s reached its funding goal", campaign.Title),
		Data: map[string]interface{}{
			"campaign_id":  pl.CampaignID,
			"goal_amount":  pl.GoalAmount,
			"total_raised": pl.TotalRaised,
		},
		EventID: event.ID,
	})
}

func (p *NotificationsProcessor) send(ctx context.Context, notification Notification) error {
	if err := p.sender.SendMessage(ctx, notification); err != nil {
		return errors.Wrap(err, "failed to enqueue notification")
	}

	log.Info().
		Str("type", notification.Type).
		Str("recipient_id", notification.RecipientID).
		Str("event_id", notification.EventID).
		Msg("Notification enqueued")
	return nil
}
