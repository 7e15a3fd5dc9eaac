// Package handlers implements the HTTP command and query surface.
package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/notification"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

// Server holds the handler dependencies.
type Server struct {
	pool                 *pgxpool.Pool
	recordFeatureChange  *usecase.RecordFeatureChange
	addDependency        *usecase.AddDependency
	changeReleaseStatus  *usecase.ChangeReleaseStatus
	changePlanningStatus *usecase.ChangePlanningStatus
	replayEvents         *usecase.ReplayEvents
	events               EventReader
	notifications        *notification.Store
}

// ServerDeps holds all dependencies for creating a Server. Manual DI.
type ServerDeps struct {
	Pool                 *pgxpool.Pool
	RecordFeatureChange  *usecase.RecordFeatureChange
	AddDependency        *usecase.AddDependency
	ChangeReleaseStatus  *usecase.ChangeReleaseStatus
	ChangePlanningStatus *usecase.ChangePlanningStatus
	ReplayEvents         *usecase.ReplayEvents
	Events               EventReader
	Notifications        *notification.Store
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		pool:                 deps.Pool,
		recordFeatureChange:  deps.RecordFeatureChange,
		addDependency:        deps.AddDependency,
		changeReleaseStatus:  deps.ChangeReleaseStatus,
		changePlanningStatus: deps.ChangePlanningStatus,
		replayEvents:         deps.ReplayEvents,
		events:               deps.Events,
		notifications:        deps.Notifications,
	}
}
