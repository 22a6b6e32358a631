package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/models"
)

// Mock notification sender for testing
type MockNotificationSender struct {
	mock.Mock
	sent []Notification
}

func (m *MockNotificationSender) SendMessage(ctx context.Context, body interface{}) error {
	args := m.Called(ctx, body)
	if notification, ok := body.(Notification); ok {
		m.sent = append(m.sent, notification)
	}
	return args.Error(0)
}

// Mock campaign reader for testing
type MockCampaignReader struct {
	mock.Mock
}

func (m *MockCampaignReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Campaign), args.Error(1)
}

func TestDonationNotification(t *testing.T) {
	campaignID := uuid.New()
	ownerID := uuid.New()
	donorID := uuid.New()

	event, err := events.New(&events.DonationCompletedPayload{
		DonationID: uuid.New().String(),
		CampaignID: campaignID.String(),
		UserID:     donorID.String(),
		Amount:     2500,
		Currency:   "USD",
		Message:    "keep going",
	})
	require.NoError(t, err)

	campaigns := new(MockCampaignReader)
	campaigns.On("GetByID", mock.Anything, campaignID).Return(&models.Campaign{
		ID:      campaignID,
		OwnerID: ownerID,
		Title:   "Save the wetlands",
	}, nil)

	sender := new(MockNotificationSender)
	sender.On("SendMessage", mock.Anything, mock.AnythingOfType("pipeline.Notification")).Return(nil)

	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	notification := sender.sent[0]
	require.Equal(t, "donation.received", notification.Type)
	require.Equal(t, ownerID.String(), notification.RecipientID)
	require.Equal(t, event.ID, notification.EventID)
	require.Equal(t, donorID.String(), notification.Data["donor_id"])
	require.Equal(t, "keep going", notification.Data["message"])
}

// Anonymous donations never expose donor identity or message
func TestAnonymousDonationHidesDonor(t *testing.T) {
	campaignID := uuid.New()

	event, err := events.New(&events.DonationCompletedPayload{
		DonationID: uuid.New().String(),
		CampaignID: campaignID.String(),
		UserID:     uuid.New().String(),
		Amount:     2500,
		Currency:   "USD",
		Anonymous:  true,
		Message:    "from a friend",
	})
	require.NoError(t, err)

	campaigns := new(MockCampaignReader)
	campaigns.On("GetByID", mock.Anything, campaignID).Return(&models.Campaign{
		ID:      campaignID,
		OwnerID: uuid.New(),
		Title:   "Save the wetlands",
	}, nil)

	sender := new(MockNotificationSender)
	sender.On("SendMessage", mock.Anything, mock.AnythingOfType("pipeline.Notification")).Return(nil)

	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	notification := sender.sent[0]
	require.NotContains(t, notification.Data, "donor_id")
	require.NotContains(t, notification.Data, "message")
}

// An owner editing their own campaign fires nothing
func TestSelfEditSendsNothing(t *testing.T) {
	ownerID := uuid.New().String()

	event, err := events.New(&events.CampaignUpdatedPayload{
		CampaignID:    uuid.New().String(),
		OwnerID:       ownerID,
		EditorID:      ownerID,
		ChangedFields: []string{"title"},
	})
	require.NoError(t, err)

	sender := new(MockNotificationSender)
	campaigns := new(MockCampaignReader)
	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.NoError(t, err)

	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestAdminEditNotifiesOwner(t *testing.T) {
	ownerID := uuid.New().String()
	editorID := uuid.New().String()

	event, err := events.New(&events.CampaignUpdatedPayload{
		CampaignID:    uuid.New().String(),
		OwnerID:       ownerID,
		EditorID:      editorID,
		ChangedFields: []string{"description", "category"},
	})
	require.NoError(t, err)

	sender := new(MockNotificationSender)
	sender.On("SendMessage", mock.Anything, mock.AnythingOfType("pipeline.Notification")).Return(nil)
	campaigns := new(MockCampaignReader)
	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	require.Equal(t, "campaign.edited", sender.sent[0].Type)
	require.Equal(t, ownerID, sender.sent[0].RecipientID)
}

func TestGoalReachedNotifiesOwner(t *testing.T) {
	campaignID := uuid.New()
	ownerID := uuid.New()

	event, err := events.New(&events.CampaignGoalReachedPayload{
		CampaignID:  campaignID.String(),
		GoalAmount:  100000,
		TotalRaised: 103500,
	})
	require.NoError(t, err)

	campaigns := new(MockCampaignReader)
	campaigns.On("GetByID", mock.Anything, campaignID).Return(&models.Campaign{
		ID:      campaignID,
		OwnerID: ownerID,
		Title:   "Village library",
	}, nil)

	sender := new(MockNotificationSender)
	sender.On("SendMessage", mock.Anything, mock.AnythingOfType("pipeline.Notification")).Return(nil)

	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	notification := sender.sent[0]
	require.Equal(t, "campaign.goal_reached", notification.Type)
	require.Equal(t, ownerID.String(), notification.RecipientID)
	require.Equal(t, int64(103500), notification.Data["total_raised"])
}

// A campaign that cannot be loaded fails the processor, leaving the
// failure to the ledger
func TestDonationNotificationCampaignMissing(t *testing.T) {
	campaignID := uuid.New()

	event, err := events.New(&events.DonationCompletedPayload{
		DonationID: uuid.New().String(),
		CampaignID: campaignID.String(),
		UserID:     uuid.New().String(),
		Amount:     2500,
		Currency:   "USD",
	})
	require.NoError(t, err)

	campaigns := new(MockCampaignReader)
	campaigns.On("GetByID", mock.Anything, campaignID).Return(nil, context.DeadlineExceeded)

	sender := new(MockNotificationSender)
	proc := NewNotificationsProcessor(sender, campaigns)

	payload, err := event.DecodePayload()
	require.NoError(t, err)

	err = proc.Handle(context.Background(), event, payload)
	require.Error(t, err)

	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}
