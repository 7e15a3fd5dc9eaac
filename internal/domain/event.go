package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEventType reports a payload whose event type has no decoder.
var ErrUnknownEventType = errors.New("unknown event type")

// EventType defines the type of domain event.
type EventType string

const (
	// Feature lifecycle events
	EventFeatureCreated EventType = "FEATURE_CREATED"
	EventFeatureUpdated EventType = "FEATURE_UPDATED"
	EventFeatureDeleted EventType = "FEATURE_DELETED"

	// Dependency events
	EventDependencyAdded EventType = "FEATURE_DEPENDENCY_ADDED"

	// Status transition events
	EventReleaseStatusChanged  EventType = "RELEASE_STATUS_CHANGED"
	EventPlanningStatusChanged EventType = "FEATURE_PLANNING_STATUS_CHANGED"
)

// AggregateType identifies which kind of aggregate an event belongs to.
type AggregateType string

const (
	AggregateFeature AggregateType = "feature"
	AggregateRelease AggregateType = "release"
)

// Event represents an immutable, versioned domain event. Version is
// monotonically increasing per AggregateCode, starting at 1; EventID is
// globally unique.
type Event struct {
	EventID       string        `json:"event_id"`
	EventType     EventType     `json:"event_type"`
	AggregateCode string        `json:"aggregate_code"`
	AggregateType AggregateType `json:"aggregate_type"`
	Payload       []byte        `json:"payload"`
	Metadata      Metadata      `json:"metadata"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Metadata is the serialized envelope stored alongside the payload.
type Metadata struct {
	EventType     EventType     `json:"event_type"`
	AggregateCode string        `json:"aggregate_code"`
	AggregateType AggregateType `json:"aggregate_type"`
	Version       int64         `json:"version"`
}

// ToJSON converts the metadata envelope to JSON bytes.
func (m Metadata) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON populates the metadata envelope from JSON bytes.
func (m *Metadata) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// FeatureChangePayload is the payload for feature created/updated/deleted
// events. Actor is the user who performed the change; CreatedBy and Assignee
// drive notification fan-out.
type FeatureChangePayload struct {
	FeatureCode string `json:"feature_code"`
	Name        string `json:"name,omitempty"`
	ReleaseCode string `json:"release_code,omitempty"`
	CreatedBy   string `json:"created_by"`
	Assignee    string `json:"assignee,omitempty"`
	Actor       string `json:"actor"`
}

// ToJSON converts payload to JSON bytes.
func (p FeatureChangePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// DependencyAddedPayload is the payload for dependency edge events.
type DependencyAddedPayload struct {
	FeatureCode   string `json:"feature_code"`
	DependsOnCode string `json:"depends_on_code"`
	DepType       string `json:"dep_type"`
	Notes         string `json:"notes,omitempty"`
	Actor         string `json:"actor"`
}

// ToJSON converts payload to JSON bytes.
func (p DependencyAddedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ReleaseStatusChangedPayload is the payload for release status transitions.
type ReleaseStatusChangedPayload struct {
	ReleaseCode string        `json:"release_code"`
	From        ReleaseStatus `json:"from"`
	To          ReleaseStatus `json:"to"`
	Actor       string        `json:"actor"`
}

// ToJSON converts payload to JSON bytes.
func (p ReleaseStatusChangedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// PlanningStatusChangedPayload is the payload for feature planning status
// transitions.
type PlanningStatusChangedPayload struct {
	FeatureCode string         `json:"feature_code"`
	From        PlanningStatus `json:"from"`
	To          PlanningStatus `json:"to"`
	Actor       string         `json:"actor"`
}

// ToJSON converts payload to JSON bytes.
func (p PlanningStatusChangedPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload deserializes a payload according to the event type. Unknown
// event types are a hard failure for the record carrying them.
func DecodePayload(eventType EventType, data []byte) (interface{}, error) {
	switch eventType {
	case EventFeatureCreated, EventFeatureUpdated, EventFeatureDeleted:
		var p FeatureChangePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventDependencyAdded:
		var p DependencyAddedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventReleaseStatusChanged:
		var p ReleaseStatusChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventPlanningStatusChanged:
		var p PlanningStatusChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
}
