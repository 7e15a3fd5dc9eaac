package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
)

// Participant is a feature's notification-relevant pair of users.
type Participant struct {
	CreatedBy string
	Assignee  string
}

// RecipientSource resolves the users affected by an event. Backed by the
// current-state tables; the event payload alone does not carry enough to
// build cascade recipient lists.
type RecipientSource interface {
	// FeatureParticipants returns the creator and assignee of a feature.
	FeatureParticipants(ctx context.Context, featureCode string) (Participant, error)

	// ReleaseOwner returns the owner of a release.
	ReleaseOwner(ctx context.Context, releaseCode string) (string, error)

	// ReleaseFeatureParticipants returns the participants of every feature
	// linked to a release.
	ReleaseFeatureParticipants(ctx context.Context, releaseCode string) ([]Participant, error)
}

// Fanout builds and records one notification per event. Recipient lists are
// deduplicated and never include the actor who caused the event.
type Fanout struct {
	store  *Store
	source RecipientSource
}

// NewFanout creates the fan-out handler.
func NewFanout(store *Store, source RecipientSource) *Fanout {
	return &Fanout{store: store, source: source}
}

// Register subscribes the fan-out to every event type it handles.
func (f *Fanout) Register(dispatcher *domain.EventDispatcher) {
	for _, eventType := range []domain.EventType{
		domain.EventFeatureCreated,
		domain.EventFeatureUpdated,
		domain.EventFeatureDeleted,
		domain.EventDependencyAdded,
		domain.EventReleaseStatusChanged,
		domain.EventPlanningStatusChanged,
	} {
		dispatcher.Register(eventType, f.OnEvent)
	}
}

// OnEvent fans one event out to its recipients. Safe to call more than once
// per event: a repeat delivery finds the event id already recorded and
// returns nil.
func (f *Fanout) OnEvent(ctx context.Context, event *domain.Event) error {
	exists, err := f.store.ExistsByEventID(ctx, event.EventID)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("event already fanned out, skipping",
			zap.String("event_id", event.EventID))
		return nil
	}

	recipients, subject, message, err := f.resolve(ctx, event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.Debug("no recipients for event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)))
		return nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	err = f.store.Create(ctx, &Notification{
		ID:          id.String(),
		EventID:     event.EventID,
		EventType:   event.EventType,
		SubjectCode: subject,
		Message:     message,
		Recipients:  recipients,
	})
	if errors.Is(err, ErrAlreadyNotified) {
		// Lost a race with a concurrent delivery of the same event.
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("notification fanned out",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("subject", subject),
		zap.Int("recipients", len(recipients)))
	return nil
}

func (f *Fanout) resolve(ctx context.Context, event *domain.Event) (recipients []string, subject, message string, err error) {
	decoded, err := domain.DecodePayload(event.EventType, event.Payload)
	if err != nil {
		return nil, "", "", err
	}

	set := newRecipientSet()
	switch payload := decoded.(type) {
	case domain.FeatureChangePayload:
		set.add(payload.CreatedBy, payload.Assignee)
		set.exclude(payload.Actor)
		subject = payload.FeatureCode
		message = featureChangeMessage(event.EventType, payload)

	case domain.DependencyAddedPayload:
		for _, code := range []string{payload.FeatureCode, payload.DependsOnCode} {
			participant, err := f.source.FeatureParticipants(ctx, code)
			if err != nil {
				return nil, "", "", err
			}
			set.add(participant.CreatedBy, participant.Assignee)
		}
		set.exclude(payload.Actor)
		subject = payload.FeatureCode
		message = fmt.Sprintf("Feature %s now depends on %s (%s)",
			payload.FeatureCode, payload.DependsOnCode, payload.DepType)

	case domain.ReleaseStatusChangedPayload:
		owner, err := f.source.ReleaseOwner(ctx, payload.ReleaseCode)
		if err != nil {
			return nil, "", "", err
		}
		set.add(owner)
		if payload.To == domain.ReleaseReleased {
			// Terminal transition cascades to everyone touching the release.
			participants, err := f.source.ReleaseFeatureParticipants(ctx, payload.ReleaseCode)
			if err != nil {
				return nil, "", "", err
			}
			for _, participant := range participants {
				set.add(participant.CreatedBy, participant.Assignee)
			}
		}
		set.exclude(payload.Actor)
		subject = payload.ReleaseCode
		message = fmt.Sprintf("Release %s moved from %s to %s",
			payload.ReleaseCode, payload.From, payload.To)

	case domain.PlanningStatusChangedPayload:
		participant, err := f.source.FeatureParticipants(ctx, payload.FeatureCode)
		if err != nil {
			return nil, "", "", err
		}
		set.add(participant.CreatedBy, participant.Assignee)
		set.exclude(payload.Actor)
		subject = payload.FeatureCode
		message = fmt.Sprintf("Feature %s planning status moved from %s to %s",
			payload.FeatureCode, payload.From, payload.To)

	default:
		return nil, "", "", fmt.Errorf("no fan-out rule for event type %s", event.EventType)
	}

	return set.list(), subject, message, nil
}

func featureChangeMessage(eventType domain.EventType, payload domain.FeatureChangePayload) string {
	switch eventType {
	case domain.EventFeatureCreated:
		return fmt.Sprintf("Feature %s (%s) was created by %s", payload.FeatureCode, payload.Name, payload.Actor)
	case domain.EventFeatureDeleted:
		return fmt.Sprintf("Feature %s was deleted by %s", payload.FeatureCode, payload.Actor)
	default:
		return fmt.Sprintf("Feature %s was updated by %s", payload.FeatureCode, payload.Actor)
	}
}

// recipientSet accumulates recipients, dropping blanks and duplicates while
// preserving insertion order.
type recipientSet struct {
	seen  map[string]struct{}
	order []string
}

func newRecipientSet() *recipientSet {
	return &recipientSet{seen: make(map[string]struct{})}
}

func (s *recipientSet) add(users ...string) {
	for _, user := range users {
		if user == "" {
			continue
		}
		if _, ok := s.seen[user]; ok {
			continue
		}
		s.seen[user] = struct{}{}
		s.order = append(s.order, user)
	}
}

func (s *recipientSet) exclude(user string) {
	if user == "" {
		return
	}
	if _, ok := s.seen[user]; !ok {
		return
	}
	delete(s.seen, user)
	filtered := s.order[:0]
	for _, existing := range s.order {
		if existing != user {
			filtered = append(filtered, existing)
		}
	}
	s.order = filtered
}

func (s *recipientSet) list() []string {
	return s.order
}
