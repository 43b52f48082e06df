package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/service"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

type evaluationRequest struct {
	EventID     string   `json:"event_id" validate:"required"`
	EvaluatorID string   `json:"evaluator_id"`
	Score       *float64 `json:"score" validate:"required"`
	Comment     *string  `json:"comment"`
	Date        *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type evaluationPatchRequest struct {
	Score   *float64 `json:"score"`
	Comment *string  `json:"comment"`
	Date    *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ownedBy rejects participants touching records of another user.
func ownedBy(c echo.Context, ownerID string) *service.Error {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != auth.RoleParticipant || claims.Subject == "" {
		return nil
	}
	if claims.Subject != ownerID {
		return service.NewError(service.ErrorCodeForbidden, "record belongs to another user")
	}
	return nil
}

func (h *Handler) CreateEvaluation(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req evaluationRequest
	err := processRequest(e, &req,
		func(e echo.Context, r *evaluationRequest) *service.Error { return h.decodeRequest(e, r) },
		func(e echo.Context, r *evaluationRequest) *service.Error {
			evaluator, err := actingUser(e, r.EvaluatorID)
			if err != nil {
				return err
			}
			if evaluator == "" {
				return service.NewError(service.ErrorCodeInvalidBody, "evaluator_id is required")
			}
			r.EvaluatorID = evaluator
			return nil
		},
	)
	if err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	evaluation := &model.Evaluation{
		EventID:     req.EventID,
		EvaluatorID: req.EvaluatorID,
		Score:       *req.Score,
		Comment:     req.Comment,
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		return h.transportError(e, err)
	}
	if date != nil {
		evaluation.Date = *date
	}

	created, err := h.evaluation.CreateEvaluation(e.Request().Context(), evaluation)
	if err != nil {
		l.Error("failed to create evaluation",
			zap.String("event_id", req.EventID),
			zap.String("evaluator_id", req.EvaluatorID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, created)
}

func (h *Handler) GetEvaluation(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	evaluationID := e.Param("id")

	evaluation, err := h.evaluation.GetEvaluation(e.Request().Context(), evaluationID)
	if err != nil {
		l.Error("failed to get evaluation", zap.String("evaluation_id", evaluationID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, evaluation)
}

func (h *Handler) UpdateEvaluation(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	evaluationID := e.Param("id")

	var req evaluationPatchRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	date, err := parseOptionalDate(req.Date)
	if err != nil {
		return h.transportError(e, err)
	}

	if err = h.checkEvaluationOwner(e, evaluationID); err != nil {
		return h.transportError(e, err)
	}

	evaluation, err := h.evaluation.UpdateEvaluation(e.Request().Context(), evaluationID, &model.EvaluationPatch{
		Score:   req.Score,
		Comment: req.Comment,
		Date:    date,
	})
	if err != nil {
		l.Error("failed to update evaluation", zap.String("evaluation_id", evaluationID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, evaluation)
}

func (h *Handler) DeleteEvaluation(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	evaluationID := e.Param("id")

	if err := h.checkEvaluationOwner(e, evaluationID); err != nil {
		return h.transportError(e, err)
	}

	if err := h.evaluation.DeleteEvaluation(e.Request().Context(), evaluationID); err != nil {
		l.Error("failed to delete evaluation", zap.String("evaluation_id", evaluationID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) checkEvaluationOwner(e echo.Context, evaluationID string) *service.Error {
	claims := claimsFromContext(e)
	if claims == nil || claims.Role != auth.RoleParticipant {
		return nil
	}

	current, err := h.evaluation.GetEvaluation(e.Request().Context(), evaluationID)
	if err != nil {
		return err
	}
	return ownedBy(e, current.EvaluatorID)
}
