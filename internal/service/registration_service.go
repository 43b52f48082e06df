package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

// RegistrationService runs the registration workflow. Every write is a single
// statement, so no explicit transaction is opened.
type RegistrationService struct {
	now func() time.Time

	registrations repository.RegistrationRepository
}

func NewRegistrationService() *RegistrationService {
	return &RegistrationService{now: time.Now}
}

func (s *RegistrationService) CreateRegistration(ctx context.Context, reg *model.Registration) (res *model.Registration, serr *Error) {
	defer func() { record("create_registration", serr) }()

	l := logger.FromContext(ctx).With(zap.String("user_id", reg.UserID), zap.String("event_id", reg.EventID))
	l.Info("creating registration", zap.String("status", string(reg.Status)))

	created := *reg
	if created.Status == "" {
		created.Status = model.RegistrationStatusPending
	}

	switch {
	case created.UserID == "":
		return nil, NewError(ErrorCodeValidation, "user_id is required")
	case created.EventID == "":
		return nil, NewError(ErrorCodeValidation, "event_id is required")
	case !created.Status.IsValid():
		l.Warn("unknown registration status", zap.String("status", string(created.Status)))
		return nil, NewError(ErrorCodeValidation, "unknown registration status")
	}

	if created.Status != model.RegistrationStatusCancelled {
		created.CancellationReason = nil
	}
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Date.IsZero() {
		created.Date = s.now()
	}

	err := s.registrations.Create(ctx, &repository.Registration{
		ID:                 created.ID,
		UserID:             created.UserID,
		EventID:            created.EventID,
		Status:             created.Status,
		CancellationReason: created.CancellationReason,
		Date:               created.Date,
	})
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		l.Warn("user already registered for event")
		return nil, NewError(ErrorCodeConflict, "registration already exists for this user and event")
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("event not found")
		return nil, NewError(ErrorCodeNotFound, "event not found")
	case err != nil:
		l.Error("failed to create registration", zap.Error(err))
		return nil, storageError(err, "failed to create registration")
	}

	l.Debug("registration created", zap.String("registration_id", created.ID))

	return &created, nil
}

func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*model.Registration, *Error) {
	l := logger.FromContext(ctx)

	repoReg, err := s.registrations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("registration not found", zap.String("registration_id", id))
		return nil, NewError(ErrorCodeNotFound, "registration not found")
	}
	if err != nil {
		l.Error("failed to get registration", zap.String("registration_id", id), zap.Error(err))
		return nil, storageError(err, "failed to get registration")
	}

	return toModelRegistration(repoReg), nil
}

// UpdateStatus moves the registration to status. The reason is stored only
// for Cancelada and cleared otherwise. The allowed source statuses are part of
// the UPDATE, so a concurrent change cannot slip between check and write.
func (s *RegistrationService) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus, reason *string) (res *model.Registration, serr *Error) {
	defer func() { record("update_registration_status", serr) }()

	l := logger.FromContext(ctx).With(zap.String("registration_id", id), zap.String("status", string(status)))
	l.Info("updating registration status")

	if !status.IsValid() {
		l.Warn("unknown registration status")
		return nil, NewError(ErrorCodeValidation, "unknown registration status")
	}
	if status != model.RegistrationStatusCancelled {
		reason = nil
	}

	updated, err := s.registrations.UpdateStatus(ctx, &repository.RegistrationPatch{
		ID:                 id,
		Status:             status,
		CancellationReason: reason,
		From:               model.RegistrationStatusesLeadingTo(status),
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("registration not found")
		return nil, NewError(ErrorCodeNotFound, "registration not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		l.Warn("registration status transition not allowed")
		return nil, NewError(ErrorCodeValidation, "registration cannot move to "+string(status))
	case err != nil:
		l.Error("failed to update registration status", zap.Error(err))
		return nil, storageError(err, "failed to update registration status")
	}

	return toModelRegistration(updated), nil
}

func (s *RegistrationService) DeleteRegistration(ctx context.Context, id string) (serr *Error) {
	defer func() { record("delete_registration", serr) }()

	l := logger.FromContext(ctx).With(zap.String("registration_id", id))
	l.Info("deleting registration")

	err := s.registrations.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("registration not found")
		return NewError(ErrorCodeNotFound, "registration not found")
	}
	if err != nil {
		l.Error("failed to delete registration", zap.Error(err))
		return storageError(err, "failed to delete registration")
	}

	return nil
}

func toModelRegistration(r *repository.Registration) *model.Registration {
	return &model.Registration{
		ID:                 r.ID,
		UserID:             r.UserID,
		EventID:            r.EventID,
		Status:             r.Status,
		CancellationReason: r.CancellationReason,
		Date:               r.Date,
	}
}

func (s *RegistrationService) WithRegistrationRepo(r repository.RegistrationRepository) *RegistrationService {
	s.registrations = r
	return s
}

func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}
