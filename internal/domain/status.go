package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the sentinel wrapped by all status transition
// rejections.
var ErrInvalidTransition = errors.New("invalid status transition")

// ReleaseStatus is the release lifecycle state.
type ReleaseStatus string

const (
	ReleaseDraft      ReleaseStatus = "DRAFT"
	ReleasePlanned    ReleaseStatus = "PLANNED"
	ReleaseInProgress ReleaseStatus = "IN_PROGRESS"
	ReleaseCompleted  ReleaseStatus = "COMPLETED"
	ReleaseReleased   ReleaseStatus = "RELEASED"
)

// releaseTransitions maps each status to its legal successors. Self
// transitions are always legal and omitted. RELEASED is terminal.
var releaseTransitions = map[ReleaseStatus][]ReleaseStatus{
	ReleaseDraft:      {ReleasePlanned},
	ReleasePlanned:    {ReleaseInProgress, ReleaseDraft},
	ReleaseInProgress: {ReleaseCompleted, ReleasePlanned},
	ReleaseCompleted:  {ReleaseReleased},
	ReleaseReleased:   {},
}

// Valid reports whether s is a known release status.
func (s ReleaseStatus) Valid() bool {
	_, ok := releaseTransitions[s]
	return ok
}

// CanTransitionTo reports whether target is a legal next status.
func (s ReleaseStatus) CanTransitionTo(target ReleaseStatus) bool {
	if s == target {
		return true
	}
	for _, next := range releaseTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a typed rejection when target is not legal.
func (s ReleaseStatus) ValidateTransition(target ReleaseStatus) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown release status %q", ErrInvalidTransition, target)
	}
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("%w: release cannot move from %s to %s", ErrInvalidTransition, s, target)
	}
	return nil
}

// PlanningStatus is the feature planning lifecycle state.
type PlanningStatus string

const (
	PlanningNotStarted PlanningStatus = "NOT_STARTED"
	PlanningInProgress PlanningStatus = "IN_PROGRESS"
	PlanningBlocked    PlanningStatus = "BLOCKED"
	PlanningDone       PlanningStatus = "DONE"
)

// planningTransitions maps each status to its legal successors. DONE may be
// reopened back to IN_PROGRESS.
var planningTransitions = map[PlanningStatus][]PlanningStatus{
	PlanningNotStarted: {PlanningInProgress},
	PlanningInProgress: {PlanningBlocked, PlanningDone, PlanningNotStarted},
	PlanningBlocked:    {PlanningInProgress, PlanningNotStarted},
	PlanningDone:       {PlanningInProgress},
}

// Valid reports whether s is a known planning status.
func (s PlanningStatus) Valid() bool {
	_, ok := planningTransitions[s]
	return ok
}

// CanTransitionTo reports whether target is a legal next status.
func (s PlanningStatus) CanTransitionTo(target PlanningStatus) bool {
	if s == target {
		return true
	}
	for _, next := range planningTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a typed rejection when target is not legal.
func (s PlanningStatus) ValidateTransition(target PlanningStatus) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown planning status %q", ErrInvalidTransition, target)
	}
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("%w: planning status cannot move from %s to %s", ErrInvalidTransition, s, target)
	}
	return nil
}
