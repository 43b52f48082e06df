package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

type memberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type teamEventRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	team := &model.Team{}

	if err := h.decodeRequest(e, team); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	created, err := h.team.CreateTeam(e.Request().Context(), team)
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", team.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, created)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) AddTeamMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req memberRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.AddMember(e.Request().Context(), teamID, req.UserID)
	if err != nil {
		l.Error("failed to add member",
			zap.String("team_id", teamID),
			zap.String("user_id", req.UserID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) RemoveTeamMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, userID := e.Param("id"), e.Param("user_id")

	team, err := h.team.RemoveMember(e.Request().Context(), teamID, userID)
	if err != nil {
		l.Error("failed to remove member",
			zap.String("team_id", teamID),
			zap.String("user_id", userID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) AddTeamEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req teamEventRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.AddEvent(e.Request().Context(), teamID, req.EventID)
	if err != nil {
		l.Error("failed to link event",
			zap.String("team_id", teamID),
			zap.String("event_id", req.EventID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) SetTeamResponsible(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req memberRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.SetResponsible(e.Request().Context(), teamID, req.UserID)
	if err != nil {
		l.Error("failed to set responsible",
			zap.String("team_id", teamID),
			zap.String("user_id", req.UserID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}
