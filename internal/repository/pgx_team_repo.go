package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/ensemble-events/internal/db"
)

type Team struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	ResponsibleID  *string `db:"responsible_id"`
	MaxMembers     int     `db:"max_members"`
	MeanScore      float64 `db:"mean_score"`
	MeanAttendance float64 `db:"mean_attendance"`
}

type TeamPatch struct {
	ID            string  `db:"id"`
	Name          *string `db:"name"`
	ResponsibleID *string `db:"responsible_id"`
	MaxMembers    *int    `db:"max_members"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	// GetForUpdate reads the team and holds a row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Team, error)
	Patch(ctx context.Context, patch *TeamPatch) (*Team, error)
	GetMembers(ctx context.Context, id string) ([]string, error)
	CountMembers(ctx context.Context, id string) (int, error)
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
	AddMember(ctx context.Context, teamID, userID string) (bool, error)
	RemoveMember(ctx context.Context, teamID, userID string) (bool, error)
	GetEventIDs(ctx context.Context, id string) ([]string, error)
	AddEvent(ctx context.Context, teamID, eventID string) (bool, error)
}

var teamColumns = []any{"id", "name", "responsible_id", "max_members", "mean_score", "mean_attendance"}

type pgxTeamRepository struct {
	pool db.Pool
}

func NewPgxTeamRepository(pool db.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func scanTeam(row pgx.Row) (*Team, error) {
	team := &Team{}
	if err := row.Scan(
		&team.ID,
		&team.Name,
		&team.ResponsibleID,
		&team.MaxMembers,
		&team.MeanScore,
		&team.MeanAttendance,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	return team, nil
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team", "id", "name", "responsible_id", "max_members"),
		im.Values(psql.Arg(team.ID), psql.Arg(team.Name), psql.Arg(team.ResponsibleID), psql.Arg(team.MaxMembers)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return classify(err)
}

func (p *pgxTeamRepository) Get(ctx context.Context, id string) (*Team, error) {
	return p.get(ctx, id, false)
}

func (p *pgxTeamRepository) GetForUpdate(ctx context.Context, id string) (*Team, error) {
	return p.get(ctx, id, true)
}

func (p *pgxTeamRepository) get(ctx context.Context, id string, lock bool) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("team"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)
	if lock {
		q.Apply(sm.ForUpdate("team"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanTeam(e.QueryRow(ctx, sql, args...))
}

func (p *pgxTeamRepository) Patch(ctx context.Context, patch *TeamPatch) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 4)

	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.ResponsibleID != nil {
		sets = append(sets, um.SetCol("responsible_id").ToArg(*patch.ResponsibleID))
	}
	if patch.MaxMembers != nil {
		sets = append(sets, um.SetCol("max_members").ToArg(*patch.MaxMembers))
	}
	sets = append(sets, um.SetCol("updated_at").To(psql.Raw("NOW()")))

	q := psql.Update(
		um.Table("team"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(teamColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanTeam(e.QueryRow(ctx, sql, args...))
}

func (p *pgxTeamRepository) GetMembers(ctx context.Context, id string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("user_id"),
		sm.From("team_member"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(id))),
		sm.OrderBy("joined_at"),
		sm.OrderBy("user_id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}

	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err)
	}
	return members, nil
}

func (p *pgxTeamRepository) CountMembers(ctx context.Context, id string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("COUNT(*)")),
		sm.From("team_member"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err = e.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (p *pgxTeamRepository) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("EXISTS (SELECT 1 FROM team_member WHERE team_id = ? AND user_id = ?)", teamID, userID)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err = e.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (p *pgxTeamRepository) AddMember(ctx context.Context, teamID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team_member", "team_id", "user_id"),
		im.Values(psql.Arg(teamID), psql.Arg(userID)),
		im.OnConflict().DoNothing(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgxTeamRepository) RemoveMember(ctx context.Context, teamID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_member"),
		dm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		))

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *pgxTeamRepository) GetEventIDs(ctx context.Context, id string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("event_id"),
		sm.From("team_event"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(id))),
		sm.OrderBy("event_id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (p *pgxTeamRepository) AddEvent(ctx context.Context, teamID, eventID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team_event", "team_id", "event_id"),
		im.Values(psql.Arg(teamID), psql.Arg(eventID)),
		im.OnConflict().DoNothing(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() > 0, nil
}
