package event

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/synthframe/engine/engine/core"
)

// SystemEvent is an immutable, typed message consumed by the engine (§3.1).
// Events have no identity of their own; Seq is assigned by the Queue as an
// arrival-order tie-breaker, not a business identifier.
type SystemEvent struct {
	Type    Type
	Payload core.Input
	Seq     uint64
}

var validate = validator.New()

// payloadSchemas maps event types with a fixed-shape payload (§6.1) to a
// struct used purely to validate required fields are present; the engine
// still treats Payload as an opaque core.Input afterward.
var payloadSchemas = map[Type]func() any{
	DataArrived: func() any { return &dataArrivedPayload{} },
	UserRequestReceived: func() any {
		return &userRequestReceivedPayload{}
	},
	IssueCreated:       func() any { return &issueCreatedPayload{} },
	IssueUpdated:       func() any { return &issueUpdatedPayload{} },
	IssueStatusChanged: func() any { return &issueStatusChangedPayload{} },
	HighPriorityIssue:  func() any { return &highPriorityIssuePayload{} },
}

type dataArrivedPayload struct {
	Source      string `json:"source" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Format      string `json:"format,omitempty"`
	PondEntryID string `json:"pondEntryId" validate:"required"`
	Timestamp   string `json:"timestamp" validate:"required"`
}

type userRequestReceivedPayload struct {
	UserID    string `json:"userId" validate:"required"`
	Content   string `json:"content" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

type issueCreatedPayload struct {
	IssueID       string `json:"issueId" validate:"required"`
	Issue         any    `json:"issue" validate:"required"`
	CreatedBy     string `json:"createdBy" validate:"required"`
	SourceWorkflow string `json:"sourceWorkflow,omitempty"`
}

type issueUpdatedPayload struct {
	IssueID string `json:"issueId" validate:"required"`
	Updates struct {
		Before        any      `json:"before"`
		After         any      `json:"after"`
		ChangedFields []string `json:"changedFields" validate:"required"`
	} `json:"updates" validate:"required"`
	UpdatedBy string `json:"updatedBy" validate:"required"`
}

type issueStatusChangedPayload struct {
	IssueID string `json:"issueId" validate:"required"`
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Reason  string `json:"reason,omitempty"`
	Issue   any    `json:"issue" validate:"required"`
}

type highPriorityIssuePayload struct {
	IssueID        string `json:"issueId" validate:"required"`
	Priority       int    `json:"priority" validate:"required"`
	Reason         string `json:"reason" validate:"required"`
	RequiredAction string `json:"requiredAction,omitempty"`
}

// New constructs a SystemEvent, rejecting unknown types and, for event
// types with a known payload shape (§6.1), payloads missing required
// fields. Events with no registered schema are accepted as-is: the engine
// treats payloads opaquely (§6.1) and only a subset of types have a fixed
// shape worth enforcing here.
func New(t Type, payload core.Input) (SystemEvent, error) {
	if !IsValid(t) {
		return SystemEvent{}, fmt.Errorf("event: unknown type %q", t)
	}
	if payload == nil {
		payload = core.NewInput(nil)
	}
	if schema, ok := payloadSchemas[t]; ok {
		if err := validatePayload(schema(), payload); err != nil {
			return SystemEvent{}, fmt.Errorf("event: invalid payload for %s: %w", t, err)
		}
	}
	return SystemEvent{Type: t, Payload: payload}, nil
}

func validatePayload(dst any, payload core.Input) error {
	raw, err := json.Marshal(map[string]any(payload))
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
