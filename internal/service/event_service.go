package service

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

type EventService struct {
	tx db.Transactor

	events repository.EventRepository
	teams  repository.TeamRepository
}

func NewEventService(tx db.Transactor) *EventService {
	return &EventService{tx: tx}
}

func validateSchedule(ev *model.Event) *Error {
	switch {
	case ev.Date.IsZero():
		return NewError(ErrorCodeValidation, "date is required")
	case !ev.StartTime.Valid() || !ev.EndTime.Valid():
		return NewError(ErrorCodeValidation, "start_time and end_time must be within one day")
	case ev.EndTime <= ev.StartTime:
		return NewError(ErrorCodeValidation, "end_time must be after start_time")
	}
	return nil
}

func (s *EventService) CreateEvent(ctx context.Context, event *model.Event) (res *model.Event, serr *Error) {
	defer func() { record("create_event", serr) }()

	l := logger.FromContext(ctx)
	l.Info("creating event", zap.String("event_name", event.Name), zap.String("type", string(event.Type)))

	if event.Name == "" {
		return nil, NewError(ErrorCodeValidation, "event name is required")
	}
	if !event.Type.IsValid() {
		return nil, NewError(ErrorCodeValidation, "unknown event type")
	}
	if verr := validateSchedule(event); verr != nil {
		return nil, verr
	}

	created := &repository.Event{
		ID:        event.ID,
		Name:      event.Name,
		Date:      event.Date,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
		Type:      event.Type,
		Status:    model.EventStatusScheduled,
	}
	if created.ID == "" {
		created.ID = uuid.NewString()
	}

	teamIDs := compact(event.TeamIDs)
	participantIDs := compact(event.ParticipantIDs)

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := s.events.Create(txCtx, created)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("event already exists", zap.String("event_id", created.ID))
			return NewError(ErrorCodeConflict, "event already exists")
		}
		if err != nil {
			l.Error("failed to create event", zap.Error(err))
			return storageError(err, "failed to create event")
		}

		for _, teamID := range teamIDs {
			_, err = s.teams.AddEvent(txCtx, teamID, created.ID)
			if errors.Is(err, repository.ErrNotFound) {
				l.Warn("team not found", zap.String("team_id", teamID))
				return NewError(ErrorCodeNotFound, "team not found")
			}
			if err != nil {
				l.Error("failed to associate team", zap.String("team_id", teamID), zap.Error(err))
				return storageError(err, "failed to associate team")
			}
		}

		for _, userID := range participantIDs {
			if _, err = s.events.AddParticipant(txCtx, created.ID, userID); err != nil {
				l.Error("failed to add participant", zap.String("user_id", userID), zap.Error(err))
				return storageError(err, "failed to add participant")
			}
		}

		return nil
	})
	if serr = asError(err, "failed to create event"); serr != nil {
		return nil, serr
	}

	l.Debug("event created", zap.String("event_id", created.ID))

	return toModelEvent(created, teamIDs, participantIDs), nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, *Error) {
	l := logger.FromContext(ctx).With(zap.String("event_id", id))
	l.Debug("getting event")

	repoEvent, err := s.events.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("event not found")
		return nil, NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		l.Error("failed to get event", zap.Error(err))
		return nil, storageError(err, "failed to get event")
	}

	res, err := s.load(ctx, repoEvent)
	if err != nil {
		l.Error("failed to load event relations", zap.Error(err))
		return nil, storageError(err, "failed to get event")
	}
	return res, nil
}

// UpdateEvent changes descriptive fields and the schedule. Only scheduled
// events can be edited; the scheduler owns everything after that.
func (s *EventService) UpdateEvent(ctx context.Context, id string, patch *model.EventPatch) (res *model.Event, serr *Error) {
	defer func() { record("update_event", serr) }()

	l := logger.FromContext(ctx).With(zap.String("event_id", id))
	l.Info("updating event")

	if patch.Name != nil && *patch.Name == "" {
		return nil, NewError(ErrorCodeValidation, "event name must not be empty")
	}
	if patch.Type != nil && !patch.Type.IsValid() {
		return nil, NewError(ErrorCodeValidation, "unknown event type")
	}

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.events.GetForUpdate(txCtx, id)
		if errors.Is(err, repository.ErrNotFound) {
			l.Warn("event not found")
			return NewError(ErrorCodeNotFound, "event not found")
		}
		if err != nil {
			l.Error("failed to lock event", zap.Error(err))
			return storageError(err, "failed to get event")
		}

		if current.Status.IsTerminal() {
			l.Warn("event already finished", zap.String("status", string(current.Status)))
			return NewError(ErrorCodeValidation, "event has already finished")
		}
		if current.Status != model.EventStatusScheduled {
			l.Warn("event is no longer editable", zap.String("status", string(current.Status)))
			return NewError(ErrorCodeValidation, "only scheduled events can be edited")
		}

		merged := &model.Event{Date: current.Date, StartTime: current.StartTime, EndTime: current.EndTime}
		if patch.Date != nil {
			merged.Date = *patch.Date
		}
		if patch.StartTime != nil {
			merged.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			merged.EndTime = *patch.EndTime
		}
		if verr := validateSchedule(merged); verr != nil {
			return verr
		}

		updated, err := s.events.Patch(txCtx, &repository.EventPatch{
			ID:        id,
			Name:      patch.Name,
			Date:      patch.Date,
			StartTime: patch.StartTime,
			EndTime:   patch.EndTime,
			Type:      patch.Type,
		})
		if err != nil {
			l.Error("failed to update event", zap.Error(err))
			return storageError(err, "failed to update event")
		}

		loaded, err := s.load(txCtx, updated)
		if err != nil {
			l.Error("failed to load event relations", zap.Error(err))
			return storageError(err, "failed to get event")
		}
		res = loaded
		return nil
	})
	if serr = asError(err, "failed to update event"); serr != nil {
		return nil, serr
	}

	return res, nil
}

func (s *EventService) CancelEvent(ctx context.Context, id string) (res *model.Event, serr *Error) {
	defer func() { record("cancel_event", serr) }()

	l := logger.FromContext(ctx).With(zap.String("event_id", id))
	l.Info("cancelling event")

	cancelled, err := s.events.Transition(ctx, id, model.EventStatusCancelled, model.EventStatusesLeadingTo(model.EventStatusCancelled))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("event not found")
		return nil, NewError(ErrorCodeNotFound, "event not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		l.Warn("event already finished")
		return nil, NewError(ErrorCodeValidation, "event can no longer be cancelled")
	case err != nil:
		l.Error("failed to cancel event", zap.Error(err))
		return nil, storageError(err, "failed to cancel event")
	}

	res, err = s.load(ctx, cancelled)
	if err != nil {
		l.Error("failed to load event relations", zap.Error(err))
		return nil, storageError(err, "failed to get event")
	}
	return res, nil
}

func (s *EventService) AddParticipant(ctx context.Context, eventID, userID string) (serr *Error) {
	defer func() { record("add_participant", serr) }()

	l := logger.FromContext(ctx).With(zap.String("event_id", eventID), zap.String("user_id", userID))
	l.Info("adding participant")

	if userID == "" {
		return NewError(ErrorCodeValidation, "user_id is required")
	}

	added, err := s.events.AddParticipant(ctx, eventID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("event not found")
		return NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		l.Error("failed to add participant", zap.Error(err))
		return storageError(err, "failed to add participant")
	}
	if !added {
		l.Debug("already a participant")
	}
	return nil
}

func (s *EventService) load(ctx context.Context, ev *repository.Event) (*model.Event, error) {
	teamIDs, err := s.events.GetTeamIDs(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	participantIDs, err := s.events.GetParticipantIDs(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	return toModelEvent(ev, teamIDs, participantIDs), nil
}

func toModelEvent(ev *repository.Event, teamIDs, participantIDs []string) *model.Event {
	res := &model.Event{
		ID:             ev.ID,
		Name:           ev.Name,
		Date:           ev.Date,
		StartTime:      ev.StartTime,
		EndTime:        ev.EndTime,
		Type:           ev.Type,
		Status:         ev.Status,
		TeamIDs:        teamIDs,
		ParticipantIDs: participantIDs,
		MeanScore:      ev.MeanScore,
	}
	if !ev.CreatedAt.IsZero() {
		res.CreatedAt = &ev.CreatedAt
	}
	if !ev.UpdatedAt.IsZero() {
		res.UpdatedAt = &ev.UpdatedAt
	}
	return res
}

func compact(ids []string) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(res, id) {
			res = append(res, id)
		}
	}
	return res
}

func (s *EventService) WithEventRepo(r repository.EventRepository) *EventService {
	s.events = r
	return s
}

func (s *EventService) WithTeamRepo(r repository.TeamRepository) *EventService {
	s.teams = r
	return s
}
