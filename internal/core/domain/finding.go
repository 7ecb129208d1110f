package domain

import (
	"errors"
	"fmt"
	"time"
)

// FindingType is an open-ended category tag assigned by the audit run.
type FindingType string

const (
	FindingTypePaymentPending    FindingType = "PAYMENT_PENDING"
	FindingTypePaymentFailed     FindingType = "PAYMENT_FAILED"
	FindingTypeActivationMissing FindingType = "ACTIVATION_MISSING"
	FindingTypeNoReply           FindingType = "NO_REPLY"
	FindingTypeInactiveClient    FindingType = "INACTIVE_CLIENT"
	FindingTypeFollowUpRequired  FindingType = "FOLLOW_UP_REQUIRED"
)

const (
	MinSeverity = 1
	MaxSeverity = 5
)

// ErrInvalidFinding is wrapped by Validate failures.
var ErrInvalidFinding = errors.New("invalid finding")

// Finding is one detected recovery opportunity.
type Finding struct {
	ID                string      `json:"id"                            db:"id"`
	BatchID           string      `json:"batch_id,omitempty"            db:"batch_id"`
	Type              FindingType `json:"type"                          db:"type"`
	Severity          int         `json:"severity"                      db:"severity"`
	ValueCents        int64       `json:"value_cents"                   db:"value_cents"`
	Title             string      `json:"title"                         db:"title"`
	Description       string      `json:"description,omitempty"         db:"description"`
	RecommendedAction string      `json:"recommended_action,omitempty"  db:"recommended_action"`
	Handled           bool        `json:"handled"                       db:"handled"`
	HandledAt         *time.Time  `json:"handled_at,omitempty"          db:"handled_at"`
	AutopilotQueued   bool        `json:"autopilot_queued"              db:"autopilot_queued"`
	AutopilotQueuedAt *time.Time  `json:"autopilot_queued_at,omitempty" db:"autopilot_queued_at"`
	CreatedAt         time.Time   `json:"created_at"                    db:"created_at"`
}

// Validate checks the field ranges and lifecycle flag invariants.
func (f *Finding) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidFinding)
	}
	if f.Severity < MinSeverity || f.Severity > MaxSeverity {
		return fmt.Errorf("%w: severity %d out of range", ErrInvalidFinding, f.Severity)
	}
	if f.ValueCents < 0 {
		return fmt.Errorf("%w: negative value %d", ErrInvalidFinding, f.ValueCents)
	}
	if f.Handled != (f.HandledAt != nil) {
		return fmt.Errorf("%w: handled=%t disagrees with handled_at", ErrInvalidFinding, f.Handled)
	}
	if f.AutopilotQueued && f.Handled {
		return fmt.Errorf("%w: queued finding is already handled", ErrInvalidFinding)
	}
	if f.AutopilotQueued != (f.AutopilotQueuedAt != nil) {
		return fmt.Errorf("%w: queued=%t disagrees with queued_at", ErrInvalidFinding, f.AutopilotQueued)
	}
	return nil
}

// MarkHandled closes the finding and removes it from the autopilot queue.
func (f *Finding) MarkHandled(at time.Time) {
	f.Handled = true
	f.HandledAt = &at
	f.AutopilotQueued = false
	f.AutopilotQueuedAt = nil
}

// Reopen clears the handled flags.
func (f *Finding) Reopen() {
	f.Handled = false
	f.HandledAt = nil
}

// Enqueue flags the finding for automated handling.
func (f *Finding) Enqueue(at time.Time) {
	f.AutopilotQueued = true
	f.AutopilotQueuedAt = &at
}

// Dequeue clears the queue flags.
func (f *Finding) Dequeue() {
	f.AutopilotQueued = false
	f.AutopilotQueuedAt = nil
}

// Clone returns a deep copy so callers never share timestamp pointers.
func (f *Finding) Clone() *Finding {
	c := *f
	if f.HandledAt != nil {
		t := *f.HandledAt
		c.HandledAt = &t
	}
	if f.AutopilotQueuedAt != nil {
		t := *f.AutopilotQueuedAt
		c.AutopilotQueuedAt = &t
	}
	return &c
}
