package lifecycle

import (
	"errors"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

// Stage is the derived lifecycle position of a finding.
type Stage string

const (
	StageOpen      Stage = "open"
	StageQueued    Stage = "queued"
	StagePending   Stage = "pending"
	StageConfirmed Stage = "confirmed"
)

// ErrInvalidTransition is returned when an operation is not allowed from the
// finding's current stage.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ValidTransitions defines allowed stage changes.
// Key is the current stage, value is the list of valid next stages.
var ValidTransitions = map[Stage][]Stage{
	StageOpen:    {StageQueued, StagePending},
	StageQueued:  {StageOpen, StagePending},
	StagePending: {StageOpen, StageConfirmed},
	// Terminal. Reset reopens it as an admin override outside this table.
	StageConfirmed: {},
}

// CanTransition checks if a transition from one stage to another is valid.
func CanTransition(from, to Stage) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// StageDescription returns a human-readable description of a stage.
func StageDescription(s Stage) string {
	switch s {
	case StageOpen:
		return "Ouvert - en attente de traitement"
	case StageQueued:
		return "En file - sélectionné pour l'autopilote"
	case StagePending:
		return "Traité - annulation encore possible"
	case StageConfirmed:
		return "Confirmé - traitement définitif"
	default:
		return "Étape inconnue"
	}
}

// DefaultUndoWindow is the period after handling during which undo is allowed.
const DefaultUndoWindow = 5 * time.Minute

// Policy is the undo window rule shared by listing and enforcement.
type Policy struct {
	Window time.Duration
}

// DefaultPolicy returns the 5-minute undo policy.
func DefaultPolicy() Policy {
	return Policy{Window: DefaultUndoWindow}
}

func (p Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultUndoWindow
	}
	return p.Window
}

// IsPending reports whether a finding handled at handledAt can still be undone.
func (p Policy) IsPending(handledAt, now time.Time) bool {
	return now.Sub(handledAt) < p.window()
}

// HandledAfter is the exclusive lower bound on handledAt for pending findings:
// handledAt > HandledAfter(now) ⇔ IsPending(handledAt, now).
func (p Policy) HandledAfter(now time.Time) time.Time {
	return now.Add(-p.window())
}

// ExpiresAt is the instant a finding handled at handledAt becomes confirmed.
func (p Policy) ExpiresAt(handledAt time.Time) time.Time {
	return handledAt.Add(p.window())
}

// Classify returns the stage of f at now.
func (p Policy) Classify(f *domain.Finding, now time.Time) Stage {
	switch {
	case f.Handled && f.HandledAt != nil:
		if p.IsPending(*f.HandledAt, now) {
			return StagePending
		}
		return StageConfirmed
	case f.AutopilotQueued:
		return StageQueued
	default:
		return StageOpen
	}
}
