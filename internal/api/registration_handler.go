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

type registrationRequest struct {
	UserID             string                   `json:"user_id"`
	EventID            string                   `json:"event_id" validate:"required"`
	Status             model.RegistrationStatus `json:"status"`
	CancellationReason *string                  `json:"cancellation_reason"`
	Date               *string                  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type registrationStatusRequest struct {
	Status             model.RegistrationStatus `json:"status" validate:"required"`
	CancellationReason *string                  `json:"cancellation_reason"`
}

func (h *Handler) CreateRegistration(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req registrationRequest
	err := processRequest(e, &req,
		func(e echo.Context, r *registrationRequest) *service.Error { return h.decodeRequest(e, r) },
		func(e echo.Context, r *registrationRequest) *service.Error {
			user, err := actingUser(e, r.UserID)
			if err != nil {
				return err
			}
			if user == "" {
				return service.NewError(service.ErrorCodeInvalidBody, "user_id is required")
			}
			r.UserID = user
			return nil
		},
	)
	if err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	reg := &model.Registration{
		UserID:             req.UserID,
		EventID:            req.EventID,
		Status:             req.Status,
		CancellationReason: req.CancellationReason,
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		return h.transportError(e, err)
	}
	if date != nil {
		reg.Date = *date
	}

	created, err := h.registration.CreateRegistration(e.Request().Context(), reg)
	if err != nil {
		l.Error("failed to create registration",
			zap.String("user_id", req.UserID),
			zap.String("event_id", req.EventID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, created)
}

func (h *Handler) GetRegistration(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	registrationID := e.Param("id")

	reg, err := h.registration.GetRegistration(e.Request().Context(), registrationID)
	if err != nil {
		l.Error("failed to get registration", zap.String("registration_id", registrationID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, reg)
}

func (h *Handler) UpdateRegistrationStatus(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	registrationID := e.Param("id")

	var req registrationStatusRequest
	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if claims := claimsFromContext(e); claims != nil && claims.Role == auth.RoleParticipant {
		current, err := h.registration.GetRegistration(e.Request().Context(), registrationID)
		if err != nil {
			return h.transportError(e, err)
		}
		if err = ownedBy(e, current.UserID); err != nil {
			return h.transportError(e, err)
		}
	}

	reg, err := h.registration.UpdateStatus(e.Request().Context(), registrationID, req.Status, req.CancellationReason)
	if err != nil {
		l.Error("failed to update registration status",
			zap.String("registration_id", registrationID),
			zap.String("status", string(req.Status)),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, reg)
}

func (h *Handler) DeleteRegistration(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	registrationID := e.Param("id")

	if err := h.registration.DeleteRegistration(e.Request().Context(), registrationID); err != nil {
		l.Error("failed to delete registration", zap.String("registration_id", registrationID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}
