package repository

import (
	"context"

	"github.com/toloka-partners/featuretrack/internal/notification"
)

// RecipientSource adapts the current-state stores to notification fan-out.
type RecipientSource struct {
	features *FeatureStore
	releases *ReleaseStore
}

// NewRecipientSource creates a recipient source over the given stores.
func NewRecipientSource(features *FeatureStore, releases *ReleaseStore) *RecipientSource {
	return &RecipientSource{features: features, releases: releases}
}

// FeatureParticipants returns the creator and assignee of a feature.
// Soft-deleted features still resolve: a deletion event notifies the people
// who were on the feature.
func (s *RecipientSource) FeatureParticipants(ctx context.Context, featureCode string) (notification.Participant, error) {
	feature, err := s.features.Get(ctx, featureCode)
	if err != nil {
		return notification.Participant{}, err
	}
	return notification.Participant{CreatedBy: feature.CreatedBy, Assignee: feature.Assignee}, nil
}

// ReleaseOwner returns the owner of a release.
func (s *RecipientSource) ReleaseOwner(ctx context.Context, releaseCode string) (string, error) {
	release, err := s.releases.Get(ctx, releaseCode)
	if err != nil {
		return "", err
	}
	return release.Owner, nil
}

// ReleaseFeatureParticipants returns the participants of every non-deleted
// feature linked to the release.
func (s *RecipientSource) ReleaseFeatureParticipants(ctx context.Context, releaseCode string) ([]notification.Participant, error) {
	features, err := s.features.ByRelease(ctx, releaseCode)
	if err != nil {
		return nil, err
	}
	participants := make([]notification.Participant, 0, len(features))
	for _, feature := range features {
		participants = append(participants, notification.Participant{
			CreatedBy: feature.CreatedBy,
			Assignee:  feature.Assignee,
		})
	}
	return participants, nil
}

var _ notification.RecipientSource = (*RecipientSource)(nil)
