package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toloka-partners/featuretrack/internal/api/middleware"
	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

type featureChangeRequest struct {
	ChangeType  string `json:"change_type" binding:"required"`
	FeatureCode string `json:"feature_code" binding:"required"`
	Name        string `json:"name"`
	ReleaseCode string `json:"release_code"`
	Assignee    string `json:"assignee"`
}

// PostFeatureChange handles POST /api/v1/features/changes.
func (s *Server) PostFeatureChange(c *gin.Context) {
	var req featureChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid feature change request", http.StatusBadRequest))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := s.recordFeatureChange.Execute(c.Request.Context(), usecase.RecordFeatureChangeInput{
		ChangeType:     usecase.FeatureChangeType(req.ChangeType),
		FeatureCode:    req.FeatureCode,
		Name:           req.Name,
		ReleaseCode:    req.ReleaseCode,
		Assignee:       req.Assignee,
		Actor:          actor,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	writeCommandResult(c, result)
}

type addDependencyRequest struct {
	DependsOnCode string `json:"depends_on_code" binding:"required"`
	DepType       string `json:"dep_type" binding:"required"`
	Notes         string `json:"notes"`
}

// PostDependency handles POST /api/v1/features/:code/dependencies.
func (s *Server) PostDependency(c *gin.Context) {
	var req addDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid dependency request", http.StatusBadRequest))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := s.addDependency.Execute(c.Request.Context(), usecase.AddDependencyInput{
		FeatureCode:    c.Param("code"),
		DependsOnCode:  req.DependsOnCode,
		DepType:        domain.DependencyType(req.DepType),
		Notes:          req.Notes,
		Actor:          actor,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	writeCommandResult(c, result)
}

type statusChangeRequest struct {
	To string `json:"to" binding:"required"`
}

// PostReleaseStatus handles POST /api/v1/releases/:code/status.
func (s *Server) PostReleaseStatus(c *gin.Context) {
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid status change request", http.StatusBadRequest))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := s.changeReleaseStatus.Execute(c.Request.Context(), usecase.ChangeReleaseStatusInput{
		ReleaseCode:    c.Param("code"),
		To:             domain.ReleaseStatus(req.To),
		Actor:          actor,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	writeCommandResult(c, result)
}

// PostPlanningStatus handles POST /api/v1/features/:code/planning-status.
func (s *Server) PostPlanningStatus(c *gin.Context) {
	var req statusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid status change request", http.StatusBadRequest))
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	result, err := s.changePlanningStatus.Execute(c.Request.Context(), usecase.ChangePlanningStatusInput{
		FeatureCode:    c.Param("code"),
		To:             domain.PlanningStatus(req.To),
		Actor:          actor,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	writeCommandResult(c, result)
}

func requireActor(c *gin.Context) (string, bool) {
	actor := middleware.GetActor(c.Request.Context())
	if actor == "" {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			"missing "+middleware.ActorHeader+" header"))
		return "", false
	}
	return actor, true
}

// writeCommandResult maps a command outcome to its HTTP shape: 201 for a
// fresh execution, 200 for an idempotent replay.
func writeCommandResult(c *gin.Context, result *usecase.CommandResult) {
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}
