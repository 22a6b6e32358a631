package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var validate = validator.New()

// SchemaValidationError is returned when a payload does not satisfy the
// schema of its event type
type SchemaValidationError struct {
	Type   EventType
	Fields []string
}

func (e *SchemaValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("payload for %s failed schema validation", e.Type)
	}
	return fmt.Sprintf("payload for %s failed schema validation: invalid fields %s",
		e.Type, strings.Join(e.Fields, ", "))
}

// payloadFactories maps each known event type to its payload constructor.
// An event type without an entry here cannot be decoded and is rejected
// before processor dispatch.
var payloadFactories = map[EventType]func() Payload{
	DonationCompleted:      func() Payload { return &DonationCompletedPayload{} },
	CampaignCreated:        func() Payload { return &CampaignCreatedPayload{} },
	CampaignUpdated:        func() Payload { return &CampaignUpdatedPayload{} },
	CampaignStatusChanged:  func() Payload { return &CampaignStatusChangedPayload{} },
	CampaignGoalReached:    func() Payload { return &CampaignGoalReachedPayload{} },
	UserUpdated:            func() Payload { return &UserUpdatedPayload{} },
	OrganizationUpdated:    func() Payload { return &OrganizationUpdatedPayload{} },
	AdminUserStatusChanged: func() Payload { return &AdminUserStatusChangedPayload{} },
	AdminRoleAssigned:      func() Payload { return &AdminRoleAssignedPayload{} },
	RoleCreated:            func() Payload { return &RoleCreatedPayload{} },
	RolePermissionsChanged: func() Payload { return &RolePermissionsChangedPayload{} },
}

// KnownType reports whether the event type belongs to the closed set
func KnownType(t EventType) bool {
	_, ok := payloadFactories[t]
	return ok
}

// Option customizes an event at construction time
type Option func(*DomainEvent)

// WithCorrelationID links the event to the request that produced it
func WithCorrelationID(id string) Option {
	return func(e *DomainEvent) { e.CorrelationID = id }
}

// WithCausationID links the event to the event that caused it
func WithCausationID(id string) Option {
	return func(e *DomainEvent) { e.CausationID = id }
}

// WithMetadata attaches attribution metadata
func WithMetadata(md Metadata) Option {
	return func(e *DomainEvent) { e.Metadata = &md }
}

// New constructs a DomainEvent from a typed payload. The payload is
// validated against its schema; id and timestamp are assigned exactly once
// here. A failed validation never yields a partially-valid event.
func New(payload Payload, opts ...Option) (*DomainEvent, error) {
	if payload == nil {
		return nil, &SchemaValidationError{Fields: []string{"payload"}}
	}

	if err := validate.Struct(payload); err != nil {
		return nil, newSchemaError(payload.EventType(), err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event payload")
	}

	event := &DomainEvent{
		ID:        uuid.New().String(),
		Type:      payload.EventType(),
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Version:   payload.SchemaVersion(),
	}

	for _, opt := range opts {
		opt(event)
	}

	return event, nil
}

// DecodePayload decodes and re-validates the event's payload as its typed
// form. Events arriving over the wire carry raw JSON payloads; this is the
// gate that keeps an unvalidated payload out of the processors.
func (e *DomainEvent) DecodePayload() (Payload, error) {
	factory, ok := payloadFactories[e.Type]
	if !ok {
		return nil, errors.Errorf("unknown event type: %s", e.Type)
	}

	payload := factory()
	if err := json.Unmarshal(e.Payload, payload); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s payload", e.Type)
	}

	if err := validate.Struct(payload); err != nil {
		return nil, newSchemaError(e.Type, err)
	}

	return payload, nil
}

func newSchemaError(t EventType, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &SchemaValidationError{Type: t}
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &SchemaValidationError{Type: t, Fields: fields}
}
