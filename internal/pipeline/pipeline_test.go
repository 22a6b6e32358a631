package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/metrics"
	"example.com/fundwave/services/events/internal/tracing"
)

// Mock processor for testing
type MockProcessor struct {
	mock.Mock
	name string
}

func (m *MockProcessor) Name() string {
	return m.name
}

func (m *MockProcessor) Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error {
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

// Mock status ledger for testing
type MockStatusLedger struct {
	mock.Mock
}

func (m *MockStatusLedger) RecordOutcome(ctx context.Context, event *events.DomainEvent, processor string, procErr error) error {
	args := m.Called(ctx, event, processor, procErr)
	return args.Error(0)
}

// Mock dead letter sink for testing
type MockDeadLetterSink struct {
	mock.Mock
}

func (m *MockDeadLetterSink) Record(ctx context.Context, event *events.DomainEvent, reason string) error {
	args := m.Called(ctx, event, reason)
	return args.Error(0)
}

// Mock stream publisher for testing
type MockStreamPublisher struct {
	mock.Mock
}

func (m *MockStreamPublisher) Publish(ctx context.Context, event *events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStreamPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestService(processors []Processor, ledger *MockStatusLedger, deadLetters *MockDeadLetterSink, publisher *MockStreamPublisher) *Service {
	return NewService(processors, ledger, deadLetters, publisher, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

func validDonationEvent(t *testing.T) *events.DomainEvent {
	t.Helper()
	event, err := events.New(&events.DonationCompletedPayload{
		DonationID: uuid.New().String(),
		CampaignID: uuid.New().String(),
		UserID:     uuid.New().String(),
		Amount:     1000,
		Currency:   "USD",
	})
	require.NoError(t, err)
	return event
}

// Structurally invalid submissions are dropped before any processing
func TestFilterValid(t *testing.T) {
	svc := newTestService(nil, new(MockStatusLedger), new(MockDeadLetterSink), new(MockStreamPublisher))

	payload := json.RawMessage(`{"amount":100}`)
	submissions := []Submission{
		{ID: "", Type: "donation.completed", Payload: payload},
		{ID: "evt-1", Type: "", Payload: payload},
		{ID: "evt-2", Type: "donation.completed", Payload: nil},
		{ID: "evt-3", Type: "donation.completed", Payload: json.RawMessage(`null`)},
		{ID: "evt-4", Type: "donation.completed", Payload: payload},
	}

	valid := svc.FilterValid(submissions)

	require.Len(t, valid, 1)
	require.Equal(t, "evt-4", valid[0].ID)
}

// Missing timestamp and version are defaulted at ingress
func TestFilterValidDefaults(t *testing.T) {
	svc := newTestService(nil, new(MockStatusLedger), new(MockDeadLetterSink), new(MockStreamPublisher))

	valid := svc.FilterValid([]Submission{
		{ID: "evt-1", Type: "donation.completed", Payload: json.RawMessage(`{}`)},
	})

	require.Len(t, valid, 1)
	require.False(t, valid[0].Timestamp.IsZero())
	require.Equal(t, 1, valid[0].Version)
}

func TestFilterValidKeepsExplicitValues(t *testing.T) {
	svc := newTestService(nil, new(MockStatusLedger), new(MockDeadLetterSink), new(MockStreamPublisher))
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	valid := svc.FilterValid([]Submission{
		{ID: "evt-1", Type: "donation.completed", Payload: json.RawMessage(`{}`), Timestamp: ts, Version: 3},
	})

	require.Len(t, valid, 1)
	require.Equal(t, ts, valid[0].Timestamp)
	require.Equal(t, 3, valid[0].Version)
}

// Every processor settles and gets a ledger row
func TestProcessEventAllSucceed(t *testing.T) {
	event := validDonationEvent(t)

	procA := &MockProcessor{name: "analytics"}
	procB := &MockProcessor{name: "projections"}
	procA.On("Handle", mock.Anything, event, mock.Anything).Return(nil)
	procB.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, "analytics", nil).Return(nil)
	ledger.On("RecordOutcome", mock.Anything, event, "projections", nil).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{procA, procB}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 2)
	for _, res := range results {
		require.True(t, res.Success())
		require.Equal(t, event.ID, res.EventID)
	}

	procA.AssertExpectations(t)
	procB.AssertExpectations(t)
	ledger.AssertExpectations(t)
	publisher.AssertExpectations(t)
	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// One processor failing never disturbs its siblings, and both outcomes
// land in the ledger
func TestProcessorFailureIsolation(t *testing.T) {
	event := validDonationEvent(t)
	boom := errors.New("analytics store down")

	failing := &MockProcessor{name: "analytics"}
	healthy := &MockProcessor{name: "cache"}
	failing.On("Handle", mock.Anything, event, mock.Anything).Return(boom)
	healthy.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, "analytics", boom).Return(nil)
	ledger.On("RecordOutcome", mock.Anything, event, "cache", nil).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{failing, healthy}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 2)
	byName := map[string]ProcessorResult{}
	for _, res := range results {
		byName[res.Processor] = res
	}
	require.False(t, byName["analytics"].Success())
	require.True(t, byName["cache"].Success())

	ledger.AssertExpectations(t)
	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// A panicking processor is converted into its own failure, not the
// event's
func TestProcessorPanicIsolation(t *testing.T) {
	event := validDonationEvent(t)

	panicking := &MockProcessor{name: "notifications"}
	healthy := &MockProcessor{name: "cache"}
	panicking.On("Handle", mock.Anything, event, mock.Anything).Run(func(mock.Arguments) {
		panic("nil campaign")
	}).Return(nil)
	healthy.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, mock.Anything, mock.Anything).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{panicking, healthy}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 2)
	byName := map[string]ProcessorResult{}
	for _, res := range results {
		byName[res.Processor] = res
	}
	require.False(t, byName["notifications"].Success())
	require.Contains(t, byName["notifications"].Err.Error(), "panic")
	require.True(t, byName["cache"].Success())

	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// An event whose payload fails decoding is dead-lettered whole: no
// processor runs and no ledger row is written
func TestUndecodableEventDeadLettered(t *testing.T) {
	event := &events.DomainEvent{
		ID:        uuid.New().String(),
		Type:      events.EventType("donation.refunded"),
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().UTC(),
		Version:   1,
	}

	proc := &MockProcessor{name: "analytics"}
	ledger := new(MockStatusLedger)
	deadLetters := new(MockDeadLetterSink)
	deadLetters.On("Record", mock.Anything, event, mock.AnythingOfType("string")).Return(nil)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{proc}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Nil(t, results)
	proc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deadLetters.AssertExpectations(t)
}

// A schema-violating payload is likewise rejected before dispatch
func TestSchemaViolationDeadLettered(t *testing.T) {
	event := &events.DomainEvent{
		ID:        uuid.New().String(),
		Type:      events.DonationCompleted,
		Payload:   json.RawMessage(`{"donation_id":"not-a-uuid","amount":-1}`),
		Timestamp: time.Now().UTC(),
		Version:   1,
	}

	proc := &MockProcessor{name: "analytics"}
	ledger := new(MockStatusLedger)
	deadLetters := new(MockDeadLetterSink)
	deadLetters.On("Record", mock.Anything, event, mock.AnythingOfType("string")).Return(nil)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{proc}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Nil(t, results)
	proc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
	deadLetters.AssertExpectations(t)
}

// Stream publish failures never block local processing
func TestPublishFailureDoesNotBlockProcessing(t *testing.T) {
	event := validDonationEvent(t)

	proc := &MockProcessor{name: "analytics"}
	proc.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, "analytics", nil).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(errors.New("service bus unreachable"))

	svc := newTestService([]Processor{proc}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 1)
	require.True(t, results[0].Success())
	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// One dead-lettered event never stops the rest of the batch
func TestProcessBatchContinuesPastDeadLetter(t *testing.T) {
	bad := &events.DomainEvent{
		ID:        uuid.New().String(),
		Type:      events.EventType("unknown.type"),
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().UTC(),
		Version:   1,
	}
	good := validDonationEvent(t)

	proc := &MockProcessor{name: "analytics"}
	proc.On("Handle", mock.Anything, good, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, good, "analytics", nil).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	deadLetters.On("Record", mock.Anything, bad, mock.AnythingOfType("string")).Return(nil)

	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService([]Processor{proc}, ledger, deadLetters, publisher)

	result := svc.ProcessBatch(context.Background(), []*events.DomainEvent{bad, good})

	// Both events count as processed even though one was dead-lettered
	require.Equal(t, 2, result.Processed)
	require.Len(t, result.Results, 1)
	require.Equal(t, good.ID, result.Results[0].EventID)

	deadLetters.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

// A failing ledger write is logged and swallowed; processing outcomes
// still stand
func TestLedgerWriteFailureIsNonFatal(t *testing.T) {
	event := validDonationEvent(t)

	proc := &MockProcessor{name: "analytics"}
	proc.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, "analytics", nil).Return(errors.New("ledger unavailable"))

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{proc}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 1)
	require.True(t, results[0].Success())
	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// A ledger write panicking mid-recording must not dead-letter an event
// that may already have ledger rows
func TestLedgerPanicDoesNotDeadLetter(t *testing.T) {
	event := validDonationEvent(t)

	procA := &MockProcessor{name: "analytics"}
	procB := &MockProcessor{name: "cache"}
	procA.On("Handle", mock.Anything, event, mock.Anything).Return(nil)
	procB.On("Handle", mock.Anything, event, mock.Anything).Return(nil)

	ledger := new(MockStatusLedger)
	ledger.On("RecordOutcome", mock.Anything, event, "analytics", nil).Return(nil)
	ledger.On("RecordOutcome", mock.Anything, event, "cache", nil).Run(func(mock.Arguments) {
		panic("ledger connection lost")
	}).Return(nil)

	deadLetters := new(MockDeadLetterSink)
	publisher := new(MockStreamPublisher)
	publisher.On("Publish", mock.Anything, event).Return(nil)

	svc := newTestService([]Processor{procA, procB}, ledger, deadLetters, publisher)

	results := svc.ProcessEvent(context.Background(), event)

	require.Len(t, results, 2)
	ledger.AssertExpectations(t)
	deadLetters.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}
