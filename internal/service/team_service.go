package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/model"
	"github.com/yakoovad/ensemble-events/internal/repository"
	"github.com/yakoovad/ensemble-events/pkg/logger"
	"go.uber.org/zap"
)

type TeamService struct {
	tx db.Transactor

	teams repository.TeamRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx: tx,
	}
}

func (t *TeamService) CreateTeam(ctx context.Context, team *model.Team) (res *model.Team, serr *Error) {
	defer func() { record("create_team", serr) }()

	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("team_name", team.Name), zap.Int("max_members", team.MaxMembers))

	if team.Name == "" {
		return nil, NewError(ErrorCodeValidation, "team name is required")
	}
	if team.MaxMembers < 0 {
		return nil, NewError(ErrorCodeValidation, "max_members must not be negative")
	}

	initial := &model.Team{MemberIDs: compact(team.MemberIDs)}
	if team.ResponsibleID != nil && !initial.HasMember(*team.ResponsibleID) {
		initial.MemberIDs = append(initial.MemberIDs, *team.ResponsibleID)
	}
	members := initial.MemberIDs
	if team.MaxMembers > 0 && len(members) > team.MaxMembers {
		l.Warn("initial members exceed capacity", zap.Int("members", len(members)), zap.Int("max_members", team.MaxMembers))
		return nil, NewError(ErrorCodeCapacityExceeded, "initial members exceed max_members")
	}

	id := team.ID
	if id == "" {
		id = uuid.NewString()
	}

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := t.teams.Create(txCtx, &repository.Team{
			ID:            id,
			Name:          team.Name,
			ResponsibleID: team.ResponsibleID,
			MaxMembers:    team.MaxMembers,
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("team already exists", zap.String("team_id", id))
			return NewError(ErrorCodeConflict, "team already exists")
		}
		if err != nil {
			l.Error("failed to create team", zap.String("team_id", id), zap.Error(err))
			return storageError(err, "failed to create team")
		}

		for _, userID := range members {
			if _, err = t.teams.AddMember(txCtx, id, userID); err != nil {
				l.Error("failed to add initial member",
					zap.String("team_id", id),
					zap.String("user_id", userID),
					zap.Error(err))
				return storageError(err, "failed to add team member")
			}
		}

		return nil
	})
	if serr = asError(err, "failed to create team"); serr != nil {
		return nil, serr
	}

	l.Debug("team created", zap.String("team_id", id))

	return &model.Team{
		ID:            id,
		Name:          team.Name,
		ResponsibleID: team.ResponsibleID,
		MemberIDs:     members,
		MaxMembers:    team.MaxMembers,
		EventIDs:      []string{},
	}, nil
}

func (t *TeamService) GetTeam(ctx context.Context, id string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", id))

	repoTeam, err := t.teams.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.String("team_id", id))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", id), zap.Error(err))
		return nil, storageError(err, "failed to get team")
	}

	res, err := t.load(ctx, repoTeam)
	if err != nil {
		l.Error("failed to load team relations", zap.String("team_id", id), zap.Error(err))
		return nil, storageError(err, "failed to get team")
	}

	return res, nil
}

// AddMember adds userID to the team unless it is already a member. The team
// row stays locked from the capacity check until the insert commits.
func (t *TeamService) AddMember(ctx context.Context, teamID, userID string) (res *model.Team, serr *Error) {
	defer func() { record("add_member", serr) }()

	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("user_id", userID))
	l.Info("adding team member")

	if userID == "" {
		return nil, NewError(ErrorCodeValidation, "user_id is required")
	}

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		repoTeam, lockErr := t.lockTeam(txCtx, teamID)
		if lockErr != nil {
			return lockErr
		}

		if memberErr := t.ensureMember(txCtx, repoTeam, userID); memberErr != nil {
			return memberErr
		}

		loaded, err := t.load(txCtx, repoTeam)
		if err != nil {
			l.Error("failed to load team relations", zap.Error(err))
			return storageError(err, "failed to get team")
		}
		res = loaded
		return nil
	})
	if serr = asError(err, "failed to add team member"); serr != nil {
		return nil, serr
	}

	return res, nil
}

// RemoveMember is idempotent. The responsible reference is left untouched.
func (t *TeamService) RemoveMember(ctx context.Context, teamID, userID string) (res *model.Team, serr *Error) {
	defer func() { record("remove_member", serr) }()

	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("user_id", userID))
	l.Info("removing team member")

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		repoTeam, lockErr := t.lockTeam(txCtx, teamID)
		if lockErr != nil {
			return lockErr
		}

		removed, err := t.teams.RemoveMember(txCtx, teamID, userID)
		if err != nil {
			l.Error("failed to remove team member", zap.Error(err))
			return storageError(err, "failed to remove team member")
		}
		if !removed {
			l.Debug("user was not a member")
		}

		loaded, err := t.load(txCtx, repoTeam)
		if err != nil {
			l.Error("failed to load team relations", zap.Error(err))
			return storageError(err, "failed to get team")
		}
		res = loaded
		return nil
	})
	if serr = asError(err, "failed to remove team member"); serr != nil {
		return nil, serr
	}

	return res, nil
}

func (t *TeamService) AddEvent(ctx context.Context, teamID, eventID string) (res *model.Team, serr *Error) {
	defer func() { record("add_team_event", serr) }()

	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("event_id", eventID))
	l.Info("associating event with team")

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		repoTeam, lockErr := t.lockTeam(txCtx, teamID)
		if lockErr != nil {
			return lockErr
		}

		added, err := t.teams.AddEvent(txCtx, teamID, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			l.Warn("event not found")
			return NewError(ErrorCodeNotFound, "event not found")
		}
		if err != nil {
			l.Error("failed to associate event", zap.Error(err))
			return storageError(err, "failed to associate event")
		}
		if !added {
			l.Debug("event already associated")
		}

		loaded, err := t.load(txCtx, repoTeam)
		if err != nil {
			l.Error("failed to load team relations", zap.Error(err))
			return storageError(err, "failed to get team")
		}
		res = loaded
		return nil
	})
	if serr = asError(err, "failed to associate event"); serr != nil {
		return nil, serr
	}

	return res, nil
}

// SetResponsible makes userID the responsible user, adding it as a member
// first when needed. Capacity applies to that implicit insert.
func (t *TeamService) SetResponsible(ctx context.Context, teamID, userID string) (res *model.Team, serr *Error) {
	defer func() { record("set_responsible", serr) }()

	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("user_id", userID))
	l.Info("setting team responsible")

	if userID == "" {
		return nil, NewError(ErrorCodeValidation, "user_id is required")
	}

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		repoTeam, lockErr := t.lockTeam(txCtx, teamID)
		if lockErr != nil {
			return lockErr
		}

		if memberErr := t.ensureMember(txCtx, repoTeam, userID); memberErr != nil {
			return memberErr
		}

		patched, err := t.teams.Patch(txCtx, &repository.TeamPatch{
			ID:            teamID,
			ResponsibleID: &userID,
		})
		if err != nil {
			l.Error("failed to set responsible", zap.Error(err))
			return storageError(err, "failed to set responsible")
		}
		repoTeam = patched

		loaded, err := t.load(txCtx, repoTeam)
		if err != nil {
			l.Error("failed to load team relations", zap.Error(err))
			return storageError(err, "failed to get team")
		}
		res = loaded
		return nil
	})
	if serr = asError(err, "failed to set responsible"); serr != nil {
		return nil, serr
	}

	return res, nil
}

func (t *TeamService) lockTeam(ctx context.Context, teamID string) (*repository.Team, *Error) {
	l := logger.FromContext(ctx)

	repoTeam, err := t.teams.GetForUpdate(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.String("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to lock team", zap.String("team_id", teamID), zap.Error(err))
		return nil, storageError(err, "failed to get team")
	}
	return repoTeam, nil
}

// ensureMember must run while the team row is locked.
func (t *TeamService) ensureMember(ctx context.Context, repoTeam *repository.Team, userID string) *Error {
	l := logger.FromContext(ctx).With(zap.String("team_id", repoTeam.ID), zap.String("user_id", userID))

	isMember, err := t.teams.IsMember(ctx, repoTeam.ID, userID)
	if err != nil {
		l.Error("failed to check membership", zap.Error(err))
		return storageError(err, "failed to check membership")
	}
	if isMember {
		l.Debug("user already a member")
		return nil
	}

	count, err := t.teams.CountMembers(ctx, repoTeam.ID)
	if err != nil {
		l.Error("failed to count members", zap.Error(err))
		return storageError(err, "failed to count members")
	}

	team := model.Team{MaxMembers: repoTeam.MaxMembers}
	if !team.HasRoomFor(count) {
		l.Warn("team is full", zap.Int("members", count), zap.Int("max_members", repoTeam.MaxMembers))
		return NewError(ErrorCodeCapacityExceeded, "team is full")
	}

	if _, err = t.teams.AddMember(ctx, repoTeam.ID, userID); err != nil {
		l.Error("failed to add member", zap.Error(err))
		return storageError(err, "failed to add team member")
	}
	return nil
}

func (t *TeamService) load(ctx context.Context, repoTeam *repository.Team) (*model.Team, error) {
	members, err := t.teams.GetMembers(ctx, repoTeam.ID)
	if err != nil {
		return nil, err
	}
	eventIDs, err := t.teams.GetEventIDs(ctx, repoTeam.ID)
	if err != nil {
		return nil, err
	}

	return &model.Team{
		ID:             repoTeam.ID,
		Name:           repoTeam.Name,
		ResponsibleID:  repoTeam.ResponsibleID,
		MemberIDs:      members,
		MaxMembers:     repoTeam.MaxMembers,
		EventIDs:       eventIDs,
		MeanScore:      repoTeam.MeanScore,
		MeanAttendance: repoTeam.MeanAttendance,
	}, nil
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}
