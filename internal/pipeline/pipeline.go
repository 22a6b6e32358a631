package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/events"
	"example.com/fundwave/services/events/internal/messaging"
	"example.com/fundwave/services/events/internal/metrics"
	"example.com/fundwave/services/events/internal/tracing"
)

// Processor names, one per fan-out branch
const (
	ProcessorAnalytics     = "analytics"
	ProcessorNotifications = "notifications"
	ProcessorCache         = "cache"
	ProcessorProjections   = "projections"
)

// Processor handles one event independently of its siblings. The payload
// handed to Handle has already been decoded and schema-validated.
type Processor interface {
	Name() string
	Handle(ctx context.Context, event *events.DomainEvent, payload events.Payload) error
}

// StatusLedger records the outcome of one processor for one event
type StatusLedger interface {
	RecordOutcome(ctx context.Context, event *events.DomainEvent, processor string, procErr error) error
}

// DeadLetterSink stores events whose processing failed at the event level
type DeadLetterSink interface {
	Record(ctx context.Context, event *events.DomainEvent, reason string) error
}

// ProcessorResult is the settled outcome of one processor for one event
type ProcessorResult struct {
	EventID   string
	Processor string
	Err       error
}

// Success reports whether the processor settled without error
func (r ProcessorResult) Success() bool {
	return r.Err == nil
}

// BatchResult aggregates the outcomes of a batch submission
type BatchResult struct {
	Processed int
	Results   []ProcessorResult
}

// Submission is the wire shape of an event arriving over HTTP or the
// ingest queue
type Submission struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Payload       json.RawMessage  `json:"payload"`
	Timestamp     time.Time        `json:"timestamp"`
	Version       int              `json:"version"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	CausationID   string           `json:"causation_id,omitempty"`
	Metadata      *events.Metadata `json:"metadata,omitempty"`
}

// Service runs the event processing pipeline: validate, publish to the
// stream, fan out to processors, record outcomes
type Service struct {
	processors  []Processor
	ledger      StatusLedger
	deadLetters DeadLetterSink
	publisher   messaging.StreamPublisher
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewService creates a pipeline service over the given processors
func NewService(
	processors []Processor,
	ledger StatusLedger,
	deadLetters DeadLetterSink,
	publisher messaging.StreamPublisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Service {
	return &Service{
		processors:  processors,
		ledger:      ledger,
		deadLetters: deadLetters,
		publisher:   publisher,
		metrics:     metricsCollector,
		tracer:      tracer,
	}
}

// FilterValid drops structurally incomplete submissions before any
// processing begins. A dropped entry is logged and counted, never
// dead-lettered: malformed submissions are a caller bug, not a processing
// failure. Schema-level payload checking happens later, at dispatch.
func (s *Service) FilterValid(submissions []Submission) []*events.DomainEvent {
	valid := make([]*events.DomainEvent, 0, len(submissions))

	for _, sub := range submissions {
		if sub.ID == "" || sub.Type == "" || len(sub.Payload) == 0 || string(sub.Payload) == "null" {
			log.Warn().
				Str("event_id", sub.ID).
				Str("event_type", sub.Type).
				Msg("Dropping structurally invalid event submission")
			s.metrics.IncrementCounter("events_dropped")
			continue
		}

		timestamp := sub.Timestamp
		if timestamp.IsZero() {
			timestamp = time.Now().UTC()
		}
		version := sub.Version
		if version == 0 {
			version = 1
		}

		valid = append(valid, &events.DomainEvent{
			ID:            sub.ID,
			Type:          events.EventType(sub.Type),
			Payload:       sub.Payload,
			Timestamp:     timestamp,
			Version:       version,
			CorrelationID: sub.CorrelationID,
			CausationID:   sub.CausationID,
			Metadata:      sub.Metadata,
		})
	}

	return valid
}

// ProcessBatch processes events sequentially in submission order. One
// event being dead-lettered never stops the rest of the batch.
func (s *Service) ProcessBatch(ctx context.Context, batch []*events.DomainEvent) BatchResult {
	results := make([]ProcessorResult, 0, len(batch)*len(s.processors))
	for _, event := range batch {
		results = append(results, s.ProcessEvent(ctx, event)...)
	}
	return BatchResult{
		Processed: len(batch),
		Results:   results,
	}
}

// ProcessEvent runs the full per-event block: best-effort stream publish,
// payload decoding, concurrent settle-all processor dispatch and ledger
// recording. A failure escaping the block dead-letters the event; no
// ledger rows are written for a dead-lettered event.
func (s *Service) ProcessEvent(ctx context.Context, event *events.DomainEvent) []ProcessorResult {
	txn := s.tracer.StartTransaction("process-event")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "event_id", event.ID)
	s.tracer.AddAttribute(txn, "event_type", string(event.Type))

	started := time.Now()
	span := s.tracer.StartSpan("fan-out", txn)
	results, err := s.runEvent(ctx, event)
	span.End()
	s.metrics.RecordTimer("event_processing", time.Since(started))

	if err != nil {
		s.tracer.RecordError(txn, err)
		s.deadLetter(ctx, event, err)
		return nil
	}

	s.recordOutcomes(ctx, event, results)
	s.metrics.IncrementCounter("events_processed")
	return results
}

// runEvent is the per-event block. Any panic here is converted into an
// event-level error so the caller can dead-letter the event.
func (s *Service) runEvent(ctx context.Context, event *events.DomainEvent) (results []ProcessorResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = errors.Errorf("event processing panic: %v", r)
		}
	}()

	// Best-effort append to the distributed stream. Failures never block
	// local processing.
	s.publish(ctx, event)

	// Decode the typed payload once, before dispatch. An event that fails
	// here never reaches a processor and is dead-lettered whole.
	payload, err := event.DecodePayload()
	if err != nil {
		return nil, errors.Wrap(err, "payload rejected before dispatch")
	}

	results = make([]ProcessorResult, len(s.processors))
	var wg sync.WaitGroup
	for i, proc := range s.processors {
		wg.Add(1)
		go func(i int, proc Processor) {
			defer wg.Done()
			results[i] = ProcessorResult{
				EventID:   event.ID,
				Processor: proc.Name(),
				Err:       s.invoke(ctx, proc, event, payload),
			}
		}(i, proc)
	}
	wg.Wait()

	return results, nil
}

// recordOutcomes upserts one ledger row per settled result. By this point
// the event has settled; a failure here, panic included, must never send
// an event with ledger rows to the dead letter sink.
func (s *Service) recordOutcomes(ctx context.Context, event *events.DomainEvent, results []ProcessorResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event_id", event.ID).
				Interface("panic_value", r).
				Msg("Panic while recording processing outcomes")
		}
	}()

	for _, res := range results {
		if recordErr := s.ledger.RecordOutcome(ctx, event, res.Processor, res.Err); recordErr != nil {
			// Losing a ledger row costs observability, not correctness
			log.Error().
				Err(recordErr).
				Str("event_id", event.ID).
				Str("processor", res.Processor).
				Msg("Failed to record processing outcome")
		}
		if res.Err != nil {
			log.Error().
				Err(res.Err).
				Str("event_id", event.ID).
				Str("processor", res.Processor).
				Msg("Processor failed")
			s.metrics.IncrementCounter("processor_" + res.Processor + "_failed")
		} else {
			s.metrics.IncrementCounter("processor_" + res.Processor + "_completed")
		}
	}
}

// invoke runs one processor, converting a panic into that processor's
// error so siblings keep their own outcomes
func (s *Service) invoke(ctx context.Context, proc Processor, event *events.DomainEvent, payload events.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("processor panic: %v", r)
		}
	}()
	return proc.Handle(ctx, event, payload)
}

func (s *Service) publish(ctx context.Context, event *events.DomainEvent) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("event_id", event.ID).
			Msg("Failed to publish event to stream")
		s.metrics.IncrementCounter("stream_publish_failed")
		return
	}
	s.metrics.IncrementCounter("stream_published")
}

func (s *Service) deadLetter(ctx context.Context, event *events.DomainEvent, cause error) {
	log.Error().
		Err(cause).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("Dead-lettering event")
	s.metrics.IncrementCounter("events_deadlettered")

	if err := s.deadLetters.Record(ctx, event, cause.Error()); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Msg("Failed to record dead letter event")
	}
}
