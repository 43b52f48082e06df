package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/service"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

type eventRequest struct {
	Name           string          `json:"name" validate:"required"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      model.TimeOfDay `json:"start_time"`
	EndTime        model.TimeOfDay `json:"end_time"`
	Type           model.EventType `json:"type" validate:"required"`
	TeamIDs        []string        `json:"team_ids"`
	ParticipantIDs []string        `json:"participant_ids"`
}

type eventPatchRequest struct {
	Name      *string          `json:"name" validate:"omitempty,min=1"`
	Date      *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *model.TimeOfDay `json:"start_time"`
	EndTime   *model.TimeOfDay `json:"end_time"`
	Type      *model.EventType `json:"type"`
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func parseDate(s string) (time.Time, *service.Error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, service.NewError(service.ErrorCodeInvalidBody, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func parseOptionalDate(s *string) (*time.Time, *service.Error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) CreateEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req eventRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	date, derr := parseDate(req.Date)
	if derr != nil {
		return h.transportError(e, derr)
	}

	event, err := h.event.CreateEvent(e.Request().Context(), &model.Event{
		Name:           req.Name,
		Date:           date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Type:           req.Type,
		TeamIDs:        req.TeamIDs,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		l.Error("failed to create event", zap.String("event_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, event)
}

func (h *Handler) GetEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("id")

	event, err := h.event.GetEvent(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to get event", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *Handler) UpdateEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("id")

	var req eventPatchRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	date, derr := parseOptionalDate(req.Date)
	if derr != nil {
		return h.transportError(e, derr)
	}

	event, err := h.event.UpdateEvent(e.Request().Context(), eventID, &model.EventPatch{
		Name:      req.Name,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Type:      req.Type,
	})
	if err != nil {
		l.Error("failed to update event", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *Handler) CancelEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("id")

	event, err := h.event.CancelEvent(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to cancel event", zap.String("event_id", eventID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, event)
}

func (h *Handler) AddEventParticipant(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.Param("id")

	var req participantRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.event.AddParticipant(e.Request().Context(), eventID, req.UserID); err != nil {
		l.Error("failed to add participant",
			zap.String("event_id", eventID),
			zap.String("user_id", req.UserID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}
