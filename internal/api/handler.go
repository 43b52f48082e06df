package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/service"
	"github.com/yakoovad/ensemble-events/pkg/metrics"
	"go.uber.org/zap"
)

type Handler struct {
	event        *service.EventService
	team         *service.TeamService
	evaluation   *service.EvaluationService
	registration *service.RegistrationService

	healthChecker  HealthChecker
	requestTimeout time.Duration

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithEventService(event *service.EventService) *Handler {
	h.event = event
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithEvaluationService(evaluation *service.EvaluationService) *Handler {
	h.evaluation = evaluation
	return h
}

func (h *Handler) WithRegistrationService(registration *service.RegistrationService) *Handler {
	h.registration = registration
	return h
}

// WithRequestTimeout bounds the storage work a single request may do.
func (h *Handler) WithRequestTimeout(d time.Duration) *Handler {
	h.requestTimeout = d
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(MetricsMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))

	routes := e.Group("", TimeoutMiddleware(h.requestTimeout))

	anyone := routes.Group("", AuthMiddleware(auth.RoleParticipant, auth.RoleOrganizer))

	anyone.GET("/teams/:id", h.GetTeam)
	anyone.GET("/events/:id", h.GetEvent)
	anyone.GET("/evaluations/:id", h.GetEvaluation)
	anyone.GET("/registrations/:id", h.GetRegistration)

	anyone.POST("/evaluations", h.CreateEvaluation)
	anyone.PATCH("/evaluations/:id", h.UpdateEvaluation)
	anyone.DELETE("/evaluations/:id", h.DeleteEvaluation)

	anyone.POST("/registrations", h.CreateRegistration)
	anyone.PATCH("/registrations/:id/status", h.UpdateRegistrationStatus)

	organizer := routes.Group("", AuthMiddleware(auth.RoleOrganizer))

	organizer.POST("/teams", h.CreateTeam)
	organizer.POST("/teams/:id/members", h.AddTeamMember)
	organizer.DELETE("/teams/:id/members/:user_id", h.RemoveTeamMember)
	organizer.POST("/teams/:id/events", h.AddTeamEvent)
	organizer.PUT("/teams/:id/responsible", h.SetTeamResponsible)

	organizer.POST("/events", h.CreateEvent)
	organizer.PATCH("/events/:id", h.UpdateEvent)
	organizer.POST("/events/:id/cancel", h.CancelEvent)
	organizer.POST("/events/:id/participants", h.AddEventParticipant)

	organizer.DELETE("/registrations/:id", h.DeleteRegistration)
}

// decodeRequest reads a JSON body into req, rejecting unknown fields, and validates it.
func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	dec := json.NewDecoder(e.Request().Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "invalid request body").Error())
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	return transportError(e, err)
}

func transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeConflict, service.ErrorCodeCapacityExceeded:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeValidation, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeTransientStorage:
		return e.JSON(http.StatusServiceUnavailable, response)
	case service.ErrorCodeUnauthorized:
		return e.JSON(http.StatusUnauthorized, response)
	case service.ErrorCodeForbidden:
		return e.JSON(http.StatusForbidden, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
