package service

import (
	"context"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
)

var evaluationDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func float64Ptr(f float64) *float64 {
	return &f
}

func TestEvaluationService_CreateEvaluation(t *testing.T) {
	tests := []struct {
		name          string
		evaluation    *model.Evaluation
		setupMocks    func(*MockEventRepository, *MockEvaluationRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:       "success recomputes the mean",
			evaluation: &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-b", Score: 6, Date: evaluationDate},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Create", mock.Anything, mock.MatchedBy(func(e *repository.Evaluation) bool {
					return e.EventID == "ev-1" && e.EvaluatorID == "user-b" && e.Score == 6 && e.ID != ""
				})).Return(nil)
				er.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(7.0, nil)
			},
		},
		{
			name:       "duplicate evaluator leaves the mean alone",
			evaluation: &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-a", Score: 10, Date: evaluationDate},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeConflict,
		},
		{
			name:          "score above range",
			evaluation:    &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-a", Score: 10.5},
			setupMocks:    func(er *MockEventRepository, vr *MockEvaluationRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:          "score below range",
			evaluation:    &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-a", Score: -0.1},
			setupMocks:    func(er *MockEventRepository, vr *MockEvaluationRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:       "unknown event",
			evaluation: &model.Evaluation{EventID: "ev-404", EvaluatorID: "user-a", Score: 5},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				er.On("GetForUpdate", mock.Anything, "ev-404").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:       "recompute failure fails the whole operation",
			evaluation: &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-c", Score: 9, Date: evaluationDate},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Create", mock.Anything, mock.Anything).Return(nil)
				er.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(0.0, pkgerrors.Wrap(repository.ErrUnavailable, "timeout"))
			},
			expectedError: true,
			errorCode:     ErrorCodeTransientStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockEventRepo := new(MockEventRepository)
			mockEvalRepo := new(MockEvaluationRepository)

			tt.setupMocks(mockEventRepo, mockEvalRepo)

			service := NewEvaluationService(new(MockTransactor)).
				WithEventRepo(mockEventRepo).
				WithEvaluationRepo(mockEvalRepo)

			got, err := service.CreateEvaluation(context.Background(), tt.evaluation)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.NotEmpty(t, got.ID)
				assert.Equal(t, tt.evaluation.Score, got.Score)
			}

			mockEventRepo.AssertExpectations(t)
			mockEvalRepo.AssertExpectations(t)
			if tt.errorCode == ErrorCodeConflict {
				mockEventRepo.AssertNotCalled(t, "RecomputeMeanScore", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestEvaluationService_CreateEvaluation_DefaultsDate(t *testing.T) {
	now := time.Date(2025, 4, 2, 18, 30, 0, 0, time.UTC)

	mockEventRepo := new(MockEventRepository)
	mockEvalRepo := new(MockEvaluationRepository)
	mockEventRepo.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
	mockEvalRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *repository.Evaluation) bool {
		return e.Date.Equal(now)
	})).Return(nil)
	mockEventRepo.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(8.0, nil)

	service := NewEvaluationService(new(MockTransactor)).
		WithEventRepo(mockEventRepo).
		WithEvaluationRepo(mockEvalRepo).
		WithClock(func() time.Time { return now })

	got, err := service.CreateEvaluation(context.Background(), &model.Evaluation{EventID: "ev-1", EvaluatorID: "user-a", Score: 8})

	assert.Nil(t, err)
	assert.Equal(t, now, got.Date)
	mockEvalRepo.AssertExpectations(t)
}

func TestEvaluationService_UpdateEvaluation(t *testing.T) {
	current := &repository.Evaluation{ID: "eval-1", EventID: "ev-1", EvaluatorID: "user-a", Score: 8, Date: evaluationDate}

	tests := []struct {
		name          string
		patch         *model.EvaluationPatch
		setupMocks    func(*MockEventRepository, *MockEvaluationRepository)
		expectedError bool
		errorCode     ErrorCode
		expectedScore float64
	}{
		{
			name:  "score change recomputes the mean",
			patch: &model.EvaluationPatch{Score: float64Ptr(4)},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(current, nil)
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Patch", mock.Anything, mock.MatchedBy(func(p *repository.EvaluationPatch) bool {
					return p.ID == "eval-1" && p.Score != nil && *p.Score == 4 && p.Comment == nil
				})).Return(&repository.Evaluation{ID: "eval-1", EventID: "ev-1", EvaluatorID: "user-a", Score: 4, Date: evaluationDate}, nil)
				er.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(5.0, nil)
			},
			expectedScore: 4,
		},
		{
			name:  "empty patch returns the current evaluation",
			patch: &model.EvaluationPatch{},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(current, nil)
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
			},
			expectedScore: 8,
		},
		{
			name:          "invalid score",
			patch:         &model.EvaluationPatch{Score: float64Ptr(11)},
			setupMocks:    func(er *MockEventRepository, vr *MockEvaluationRepository) {},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:  "evaluation not found",
			patch: &model.EvaluationPatch{Score: float64Ptr(3)},
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockEventRepo := new(MockEventRepository)
			mockEvalRepo := new(MockEvaluationRepository)

			tt.setupMocks(mockEventRepo, mockEvalRepo)

			service := NewEvaluationService(new(MockTransactor)).
				WithEventRepo(mockEventRepo).
				WithEvaluationRepo(mockEvalRepo)

			got, err := service.UpdateEvaluation(context.Background(), "eval-1", tt.patch)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expectedScore, got.Score)
			}

			mockEventRepo.AssertExpectations(t)
			mockEvalRepo.AssertExpectations(t)
		})
	}
}

func TestEvaluationService_DeleteEvaluation(t *testing.T) {
	current := &repository.Evaluation{ID: "eval-1", EventID: "ev-1", EvaluatorID: "user-a", Score: 8, Date: evaluationDate}

	tests := []struct {
		name          string
		setupMocks    func(*MockEventRepository, *MockEvaluationRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "success",
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(current, nil)
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Delete", mock.Anything, "eval-1").Return(current, nil)
				er.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(6.0, nil)
			},
		},
		{
			name: "not found",
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name: "recompute failure is reported",
			setupMocks: func(er *MockEventRepository, vr *MockEvaluationRepository) {
				vr.On("Get", mock.Anything, "eval-1").Return(current, nil)
				er.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil)
				vr.On("Delete", mock.Anything, "eval-1").Return(current, nil)
				er.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(0.0, pkgerrors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockEventRepo := new(MockEventRepository)
			mockEvalRepo := new(MockEvaluationRepository)

			tt.setupMocks(mockEventRepo, mockEvalRepo)

			service := NewEvaluationService(new(MockTransactor)).
				WithEventRepo(mockEventRepo).
				WithEvaluationRepo(mockEvalRepo)

			err := service.DeleteEvaluation(context.Background(), "eval-1")

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				assert.Nil(t, err)
			}

			mockEventRepo.AssertExpectations(t)
			mockEvalRepo.AssertExpectations(t)
		})
	}
}

func TestEvaluationService_GetEvaluation(t *testing.T) {
	stored := &repository.Evaluation{ID: "eval-1", EventID: "ev-1", EvaluatorID: "user-a", Score: 8, Date: evaluationDate}

	t.Run("success", func(t *testing.T) {
		mockEvalRepo := new(MockEvaluationRepository)
		mockEvalRepo.On("Get", mock.Anything, "eval-1").Return(stored, nil)

		service := NewEvaluationService(new(MockTransactor)).WithEvaluationRepo(mockEvalRepo)

		got, err := service.GetEvaluation(context.Background(), "eval-1")
		assert.Nil(t, err)
		assert.Equal(t, "user-a", got.EvaluatorID)
		assert.InDelta(t, 8.0, got.Score, 1e-9)
	})

	t.Run("not found", func(t *testing.T) {
		mockEvalRepo := new(MockEvaluationRepository)
		mockEvalRepo.On("Get", mock.Anything, "eval-1").Return(nil, repository.ErrNotFound)

		service := NewEvaluationService(new(MockTransactor)).WithEvaluationRepo(mockEvalRepo)

		got, err := service.GetEvaluation(context.Background(), "eval-1")
		assert.NotNil(t, err)
		assert.Equal(t, ErrorCodeNotFound, err.Code)
		assert.Nil(t, got)
	})
}
