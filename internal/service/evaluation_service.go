package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

// EvaluationService keeps every event's mean score equal to the mean of its
// evaluations. Each write locks the event row first, then mutates, then
// recomputes the mean, all in one transaction.
type EvaluationService struct {
	tx  db.Transactor
	now func() time.Time

	events      repository.EventRepository
	evaluations repository.EvaluationRepository
}

func NewEvaluationService(tx db.Transactor) *EvaluationService {
	return &EvaluationService{
		tx:  tx,
		now: time.Now,
	}
}

func (s *EvaluationService) CreateEvaluation(ctx context.Context, evaluation *model.Evaluation) (res *model.Evaluation, serr *Error) {
	defer func() { record("create_evaluation", serr) }()

	l := logger.FromContext(ctx).With(
		zap.String("event_id", evaluation.EventID),
		zap.String("evaluator_id", evaluation.EvaluatorID))
	l.Info("creating evaluation", zap.Float64("score", evaluation.Score))

	switch {
	case evaluation.EventID == "":
		return nil, NewError(ErrorCodeValidation, "event_id is required")
	case evaluation.EvaluatorID == "":
		return nil, NewError(ErrorCodeValidation, "evaluator_id is required")
	case !model.ValidScore(evaluation.Score):
		l.Warn("score out of range", zap.Float64("score", evaluation.Score))
		return nil, NewError(ErrorCodeValidation, "score must be between 0 and 10")
	}

	created := *evaluation
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Date.IsZero() {
		created.Date = s.now()
	}

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if lockErr := s.lockEvent(txCtx, created.EventID); lockErr != nil {
			return lockErr
		}

		err := s.evaluations.Create(txCtx, toRepoEvaluation(&created))
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			l.Warn("evaluator already evaluated this event")
			return NewError(ErrorCodeConflict, "evaluation already exists for this evaluator and event")
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "event not found")
		case err != nil:
			l.Error("failed to create evaluation", zap.Error(err))
			return storageError(err, "failed to create evaluation")
		}

		return s.recompute(txCtx, created.EventID)
	})
	if serr = asError(err, "failed to create evaluation"); serr != nil {
		return nil, serr
	}

	l.Debug("evaluation created", zap.String("evaluation_id", created.ID))

	return &created, nil
}

func (s *EvaluationService) GetEvaluation(ctx context.Context, id string) (*model.Evaluation, *Error) {
	l := logger.FromContext(ctx)

	repoEval, err := s.evaluations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("evaluation not found", zap.String("evaluation_id", id))
		return nil, NewError(ErrorCodeNotFound, "evaluation not found")
	}
	if err != nil {
		l.Error("failed to get evaluation", zap.String("evaluation_id", id), zap.Error(err))
		return nil, storageError(err, "failed to get evaluation")
	}

	return toModelEvaluation(repoEval), nil
}

func (s *EvaluationService) UpdateEvaluation(ctx context.Context, id string, patch *model.EvaluationPatch) (res *model.Evaluation, serr *Error) {
	defer func() { record("update_evaluation", serr) }()

	l := logger.FromContext(ctx).With(zap.String("evaluation_id", id))
	l.Info("updating evaluation")

	if patch.Score != nil && !model.ValidScore(*patch.Score) {
		l.Warn("score out of range", zap.Float64("score", *patch.Score))
		return nil, NewError(ErrorCodeValidation, "score must be between 0 and 10")
	}

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, getErr := s.get(txCtx, id)
		if getErr != nil {
			return getErr
		}

		if lockErr := s.lockEvent(txCtx, current.EventID); lockErr != nil {
			return lockErr
		}

		if patch.Empty() {
			res = toModelEvaluation(current)
			return nil
		}

		updated, err := s.evaluations.Patch(txCtx, &repository.EvaluationPatch{
			ID:      id,
			Score:   patch.Score,
			Comment: patch.Comment,
			Date:    patch.Date,
		})
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "evaluation not found")
		}
		if err != nil {
			l.Error("failed to update evaluation", zap.Error(err))
			return storageError(err, "failed to update evaluation")
		}

		if recomputeErr := s.recompute(txCtx, current.EventID); recomputeErr != nil {
			return recomputeErr
		}

		res = toModelEvaluation(updated)
		return nil
	})
	if serr = asError(err, "failed to update evaluation"); serr != nil {
		return nil, serr
	}

	return res, nil
}

// DeleteEvaluation removes the evaluation and recomputes the mean. A failed
// recomputation rolls the delete back.
func (s *EvaluationService) DeleteEvaluation(ctx context.Context, id string) (serr *Error) {
	defer func() { record("delete_evaluation", serr) }()

	l := logger.FromContext(ctx).With(zap.String("evaluation_id", id))
	l.Info("deleting evaluation")

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, getErr := s.get(txCtx, id)
		if getErr != nil {
			return getErr
		}

		if lockErr := s.lockEvent(txCtx, current.EventID); lockErr != nil {
			return lockErr
		}

		_, err := s.evaluations.Delete(txCtx, id)
		if errors.Is(err, repository.ErrNotFound) {
			l.Warn("evaluation deleted concurrently")
			return NewError(ErrorCodeNotFound, "evaluation not found")
		}
		if err != nil {
			l.Error("failed to delete evaluation", zap.Error(err))
			return storageError(err, "failed to delete evaluation")
		}

		return s.recompute(txCtx, current.EventID)
	})

	return asError(err, "failed to delete evaluation")
}

func (s *EvaluationService) get(ctx context.Context, id string) (*repository.Evaluation, *Error) {
	repoEval, err := s.evaluations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		logger.FromContext(ctx).Warn("evaluation not found", zap.String("evaluation_id", id))
		return nil, NewError(ErrorCodeNotFound, "evaluation not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get evaluation", zap.String("evaluation_id", id), zap.Error(err))
		return nil, storageError(err, "failed to get evaluation")
	}
	return repoEval, nil
}

func (s *EvaluationService) lockEvent(ctx context.Context, eventID string) *Error {
	_, err := s.events.GetForUpdate(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.FromContext(ctx).Warn("event not found", zap.String("event_id", eventID))
		return NewError(ErrorCodeNotFound, "event not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to lock event", zap.String("event_id", eventID), zap.Error(err))
		return storageError(err, "failed to get event")
	}
	return nil
}

// recompute returns a plain error: a nil *Error must not reach the transactor.
func (s *EvaluationService) recompute(ctx context.Context, eventID string) error {
	mean, err := s.events.RecomputeMeanScore(ctx, eventID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to recompute mean score", zap.String("event_id", eventID), zap.Error(err))
		return storageError(err, "failed to recompute mean score")
	}
	logger.FromContext(ctx).Debug("mean score recomputed", zap.String("event_id", eventID), zap.Float64("mean_score", mean))
	return nil
}

func toRepoEvaluation(e *model.Evaluation) *repository.Evaluation {
	return &repository.Evaluation{
		ID:          e.ID,
		EventID:     e.EventID,
		EvaluatorID: e.EvaluatorID,
		Score:       e.Score,
		Comment:     e.Comment,
		Date:        e.Date,
	}
}

func toModelEvaluation(e *repository.Evaluation) *model.Evaluation {
	return &model.Evaluation{
		ID:          e.ID,
		EventID:     e.EventID,
		EvaluatorID: e.EvaluatorID,
		Score:       e.Score,
		Comment:     e.Comment,
		Date:        e.Date,
	}
}

func (s *EvaluationService) WithEventRepo(r repository.EventRepository) *EvaluationService {
	s.events = r
	return s
}

func (s *EvaluationService) WithEvaluationRepo(r repository.EvaluationRepository) *EvaluationService {
	s.evaluations = r
	return s
}

func (s *EvaluationService) WithClock(now func() time.Time) *EvaluationService {
	s.now = now
	return s
}
