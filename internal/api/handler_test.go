package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/ensemble-events/internal/auth"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/internal/service"
	"go.uber.org/zap"
)

const testSecret = "api-test-secret"

type fixture struct {
	echo          *echo.Echo
	events        *service.MockEventRepository
	teams         *service.MockTeamRepository
	evaluations   *service.MockEvaluationRepository
	registrations *service.MockRegistrationRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth.TokenSecretKey = testSecret

	f := &fixture{
		echo:          echo.New(),
		events:        &service.MockEventRepository{},
		teams:         &service.MockTeamRepository{},
		evaluations:   &service.MockEvaluationRepository{},
		registrations: &service.MockRegistrationRepository{},
	}
	tx := &service.MockTransactor{}
	now := func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }

	NewHandler(zap.NewNop()).
		WithEventService(service.NewEventService(tx).WithEventRepo(f.events).WithTeamRepo(f.teams)).
		WithTeamService(service.NewTeamService(tx).WithTeamRepo(f.teams)).
		WithEvaluationService(service.NewEvaluationService(tx).WithEventRepo(f.events).WithEvaluationRepo(f.evaluations).WithClock(now)).
		WithRegistrationService(service.NewRegistrationService().WithRegistrationRepo(f.registrations).WithClock(now)).
		WithRequestTimeout(time.Second).
		RegisterRoutes(f.echo)

	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, role auth.Role, subject string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if role != auth.RoleUndefined {
		token, err := auth.GenerateToken(role, subject, time.Hour)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) service.ErrorCode {
	t.Helper()

	var body struct {
		Error *service.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		role       auth.Role
		wantStatus int
		wantCode   service.ErrorCode
	}{
		{
			name:       "missing token",
			wantStatus: http.StatusUnauthorized,
			wantCode:   service.ErrorCodeUnauthorized,
		},
		{
			name:       "participant on organizer route",
			role:       auth.RoleParticipant,
			wantStatus: http.StatusForbidden,
			wantCode:   service.ErrorCodeForbidden,
		},
		{
			name:       "organizer passes through",
			role:       auth.RoleOrganizer,
			wantStatus: http.StatusNotFound,
			wantCode:   service.ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.events.On("GetForUpdate", mock.Anything, "ev-1").Return(nil, repository.ErrNotFound).Maybe()

			rec := f.do(t, http.MethodPatch, "/events/ev-1", `{"name":"Dress rehearsal"}`, tt.role, "u-1")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/teams/strings", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.ErrorCodeUnauthorized, errorCode(t, rec))
}

func TestHandler_AddTeamMember(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*service.MockTeamRepository)
		wantStatus int
		wantCode   service.ErrorCode
		wantIDs    []string
	}{
		{
			name: "member added",
			body: `{"user_id":"carol"}`,
			setupMocks: func(tr *service.MockTeamRepository) {
				tr.On("GetForUpdate", mock.Anything, "strings").Return(&repository.Team{ID: "strings", Name: "Strings", MaxMembers: 3}, nil)
				tr.On("IsMember", mock.Anything, "strings", "carol").Return(false, nil)
				tr.On("CountMembers", mock.Anything, "strings").Return(2, nil)
				tr.On("AddMember", mock.Anything, "strings", "carol").Return(true, nil)
				tr.On("GetMembers", mock.Anything, "strings").Return([]string{"alice", "bob", "carol"}, nil)
				tr.On("GetEventIDs", mock.Anything, "strings").Return([]string{}, nil)
			},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"alice", "bob", "carol"},
		},
		{
			name: "full team",
			body: `{"user_id":"carol"}`,
			setupMocks: func(tr *service.MockTeamRepository) {
				tr.On("GetForUpdate", mock.Anything, "strings").Return(&repository.Team{ID: "strings", MaxMembers: 2}, nil)
				tr.On("IsMember", mock.Anything, "strings", "carol").Return(false, nil)
				tr.On("CountMembers", mock.Anything, "strings").Return(2, nil)
			},
			wantStatus: http.StatusConflict,
			wantCode:   service.ErrorCodeCapacityExceeded,
		},
		{
			name:       "unknown field is rejected",
			body:       `{"user_id":"carol","role":"lead"}`,
			setupMocks: func(tr *service.MockTeamRepository) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeInvalidBody,
		},
		{
			name:       "missing user id",
			body:       `{}`,
			setupMocks: func(tr *service.MockTeamRepository) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeInvalidBody,
		},
		{
			name: "storage unavailable",
			body: `{"user_id":"carol"}`,
			setupMocks: func(tr *service.MockTeamRepository) {
				tr.On("GetForUpdate", mock.Anything, "strings").Return(nil, repository.ErrUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   service.ErrorCodeTransientStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMocks(f.teams)

			rec := f.do(t, http.MethodPost, "/teams/strings/members", tt.body, auth.RoleOrganizer, "u-9")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}

			var team model.Team
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &team))
			assert.Equal(t, tt.wantIDs, team.MemberIDs)
			f.teams.AssertExpectations(t)
		})
	}
}

func TestHandler_CreateEvaluation(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		role          auth.Role
		subject       string
		wantEvaluator string
		wantStatus    int
		wantCode      service.ErrorCode
	}{
		{
			name:          "participant evaluates as the token subject",
			body:          `{"event_id":"ev-1","score":8}`,
			role:          auth.RoleParticipant,
			subject:       "u-1",
			wantEvaluator: "u-1",
			wantStatus:    http.StatusCreated,
		},
		{
			name:          "organizer may name the evaluator",
			body:          `{"event_id":"ev-1","evaluator_id":"u-2","score":6,"date":"2025-03-14"}`,
			role:          auth.RoleOrganizer,
			subject:       "u-9",
			wantEvaluator: "u-2",
			wantStatus:    http.StatusCreated,
		},
		{
			name:       "participant cannot evaluate for someone else",
			body:       `{"event_id":"ev-1","evaluator_id":"u-2","score":6}`,
			role:       auth.RoleParticipant,
			subject:    "u-1",
			wantStatus: http.StatusForbidden,
			wantCode:   service.ErrorCodeForbidden,
		},
		{
			name:       "score is required",
			body:       `{"event_id":"ev-1"}`,
			role:       auth.RoleParticipant,
			subject:    "u-1",
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeInvalidBody,
		},
		{
			name:       "score out of range",
			body:       `{"event_id":"ev-1","score":11}`,
			role:       auth.RoleParticipant,
			subject:    "u-1",
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeValidation,
		},
		{
			name:       "malformed date",
			body:       `{"event_id":"ev-1","score":5,"date":"14/03/2025"}`,
			role:       auth.RoleParticipant,
			subject:    "u-1",
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeInvalidBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.events.On("GetForUpdate", mock.Anything, "ev-1").Return(&repository.Event{ID: "ev-1"}, nil).Maybe()
			f.evaluations.On("Create", mock.Anything, mock.MatchedBy(func(e *repository.Evaluation) bool {
				return e.EvaluatorID == tt.wantEvaluator
			})).Return(nil).Maybe()
			f.events.On("RecomputeMeanScore", mock.Anything, "ev-1").Return(7.0, nil).Maybe()

			rec := f.do(t, http.MethodPost, "/evaluations", tt.body, tt.role, tt.subject)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				f.evaluations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}

			var got model.Evaluation
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantEvaluator, got.EvaluatorID)
			assert.Equal(t, "ev-1", got.EventID)
			f.events.AssertCalled(t, "RecomputeMeanScore", mock.Anything, "ev-1")
		})
	}
}

func TestHandler_DeleteEvaluation_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	f.evaluations.On("Get", mock.Anything, "eval-1").Return(&repository.Evaluation{ID: "eval-1", EventID: "ev-1", EvaluatorID: "u-2", Score: 5}, nil)

	rec := f.do(t, http.MethodDelete, "/evaluations/eval-1", "", auth.RoleParticipant, "u-1")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, service.ErrorCodeForbidden, errorCode(t, rec))
	f.evaluations.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestHandler_UpdateRegistrationStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*service.MockRegistrationRepository)
		wantStatus int
		wantCode   service.ErrorCode
		want       model.RegistrationStatus
	}{
		{
			name: "cancel with reason",
			body: `{"status":"Cancelada","cancellation_reason":"travel"}`,
			setupMocks: func(rr *service.MockRegistrationRepository) {
				rr.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(p *repository.RegistrationPatch) bool {
					return p.ID == "reg-1" && p.Status == model.RegistrationStatusCancelled &&
						p.CancellationReason != nil && *p.CancellationReason == "travel"
				})).Return(&repository.Registration{
					ID:                 "reg-1",
					UserID:             "u-1",
					EventID:            "ev-1",
					Status:             model.RegistrationStatusCancelled,
					CancellationReason: strPtr("travel"),
				}, nil)
			},
			wantStatus: http.StatusOK,
			want:       model.RegistrationStatusCancelled,
		},
		{
			name: "back to pending",
			body: `{"status":"Pendente"}`,
			setupMocks: func(rr *service.MockRegistrationRepository) {
				rr.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil, repository.ErrInvalidTransition)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   service.ErrorCodeValidation,
		},
		{
			name: "missing registration",
			body: `{"status":"Confirmada"}`,
			setupMocks: func(rr *service.MockRegistrationRepository) {
				rr.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   service.ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMocks(f.registrations)

			rec := f.do(t, http.MethodPatch, "/registrations/reg-1/status", tt.body, auth.RoleOrganizer, "u-9")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
				return
			}

			var got model.Registration
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestHandler_CreateEvent(t *testing.T) {
	f := newFixture(t)
	f.events.On("Create", mock.Anything, mock.MatchedBy(func(ev *repository.Event) bool {
		return ev.Name == "Spring concert" &&
			ev.Date.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) &&
			ev.StartTime == model.NewTimeOfDay(19, 0) &&
			ev.Status == model.EventStatusScheduled
	})).Return(nil)
	f.teams.On("AddEvent", mock.Anything, "strings", mock.Anything).Return(true, nil)

	body := `{"name":"Spring concert","date":"2025-03-14","start_time":"19:00","end_time":"21:30","type":"Apresentacao","team_ids":["strings"]}`
	rec := f.do(t, http.MethodPost, "/events", body, auth.RoleOrganizer, "u-9")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.EventStatusScheduled, got.Status)
	assert.Equal(t, []string{"strings"}, got.TeamIDs)
	f.events.AssertExpectations(t)
	f.teams.AssertExpectations(t)
}

func TestHandler_Metrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", auth.RoleUndefined, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ensemble_")
}

func strPtr(s string) *string {
	return &s
}
