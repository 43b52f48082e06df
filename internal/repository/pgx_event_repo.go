package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/model"
)

type Event struct {
	ID        string            `db:"id"`
	Name      string            `db:"name"`
	Date      time.Time         `db:"event_date"`
	StartTime model.TimeOfDay   `db:"start_time"`
	EndTime   model.TimeOfDay   `db:"end_time"`
	Type      model.EventType   `db:"type"`
	Status    model.EventStatus `db:"status"`
	MeanScore float64           `db:"mean_score"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`
}

type EventPatch struct {
	ID        string           `db:"id"`
	Name      *string          `db:"name"`
	Date      *time.Time       `db:"event_date"`
	StartTime *model.TimeOfDay `db:"start_time"`
	EndTime   *model.TimeOfDay `db:"end_time"`
	Type      *model.EventType `db:"type"`
}

// Boundary names the event column compared against the clock by the scheduler.
type Boundary string

const (
	BoundaryStart Boundary = "start_time"
	BoundaryEnd   Boundary = "end_time"
)

type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	// GetForUpdate reads the event and holds a row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Event, error)
	Patch(ctx context.Context, patch *EventPatch) (*Event, error)
	GetTeamIDs(ctx context.Context, id string) ([]string, error)
	GetParticipantIDs(ctx context.Context, id string) ([]string, error)
	AddParticipant(ctx context.Context, eventID, userID string) (bool, error)
	// Transition moves the event to `to` only when its current status is one of `from`.
	Transition(ctx context.Context, id string, to model.EventStatus, from []model.EventStatus) (*Event, error)
	// AdvanceDue moves every event in status `from` whose boundary is at or before now to `to`.
	AdvanceDue(ctx context.Context, from, to model.EventStatus, boundary Boundary, now time.Time) (int64, error)
	RecomputeMeanScore(ctx context.Context, id string) (float64, error)
}

var eventColumns = []any{
	"id", "name", "event_date", "start_time", "end_time", "type", "status", "mean_score", "created_at", "updated_at",
}

type pgxEventRepository struct {
	pool db.Pool
}

func NewPgxEventRepository(pool db.Pool) EventRepository {
	return &pgxEventRepository{pool: pool}
}

func scanEvent(row pgx.Row) (*Event, error) {
	ev := &Event{}
	if err := row.Scan(
		&ev.ID,
		&ev.Name,
		&ev.Date,
		(*timeOfDay)(&ev.StartTime),
		(*timeOfDay)(&ev.EndTime),
		&ev.Type,
		&ev.Status,
		&ev.MeanScore,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	return ev, nil
}

func (p *pgxEventRepository) Create(ctx context.Context, event *Event) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("event", "id", "name", "event_date", "start_time", "end_time", "type", "status", "mean_score"),
		im.Values(
			psql.Arg(event.ID),
			psql.Arg(event.Name),
			psql.Arg(dateOnly(event.Date)),
			psql.Arg(timeOfDay(event.StartTime)),
			psql.Arg(timeOfDay(event.EndTime)),
			psql.Arg(string(event.Type)),
			psql.Arg(string(event.Status)),
			psql.Arg(event.MeanScore),
		),
		im.Returning("created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&event.CreatedAt, &event.UpdatedAt); err != nil {
		return classify(err)
	}
	return nil
}

func (p *pgxEventRepository) Get(ctx context.Context, id string) (*Event, error) {
	return p.get(ctx, id, false)
}

func (p *pgxEventRepository) GetForUpdate(ctx context.Context, id string) (*Event, error) {
	return p.get(ctx, id, true)
}

func (p *pgxEventRepository) get(ctx context.Context, id string, lock bool) (*Event, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(eventColumns...),
		sm.From("event"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)
	if lock {
		q.Apply(sm.ForUpdate("event"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEvent(e.QueryRow(ctx, sql, args...))
}

func (p *pgxEventRepository) Patch(ctx context.Context, patch *EventPatch) (*Event, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 6)

	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Date != nil {
		sets = append(sets, um.SetCol("event_date").ToArg(dateOnly(*patch.Date)))
	}
	if patch.StartTime != nil {
		sets = append(sets, um.SetCol("start_time").ToArg(timeOfDay(*patch.StartTime)))
	}
	if patch.EndTime != nil {
		sets = append(sets, um.SetCol("end_time").ToArg(timeOfDay(*patch.EndTime)))
	}
	if patch.Type != nil {
		sets = append(sets, um.SetCol("type").ToArg(string(*patch.Type)))
	}
	sets = append(sets, um.SetCol("updated_at").To(psql.Raw("NOW()")))

	q := psql.Update(
		um.Table("event"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(eventColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEvent(e.QueryRow(ctx, sql, args...))
}

func (p *pgxEventRepository) GetTeamIDs(ctx context.Context, id string) ([]string, error) {
	return p.collectIDs(ctx, "team_event", "team_id", id)
}

func (p *pgxEventRepository) GetParticipantIDs(ctx context.Context, id string) ([]string, error) {
	return p.collectIDs(ctx, "event_participant", "user_id", id)
}

func (p *pgxEventRepository) collectIDs(ctx context.Context, table, column, eventID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(column),
		sm.From(table),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.OrderBy(column),
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

func (p *pgxEventRepository) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("event_participant", "event_id", "user_id"),
		im.Values(psql.Arg(eventID), psql.Arg(userID)),
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

func (p *pgxEventRepository) Transition(ctx context.Context, id string, to model.EventStatus, from []model.EventStatus) (*Event, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	if len(from) == 0 {
		return nil, ErrInvalidTransition
	}

	allowed := make([]bob.Expression, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, psql.Arg(string(s)))
	}

	q := psql.Update(
		um.Table("event"),
		um.SetCol("status").ToArg(string(to)),
		um.SetCol("updated_at").To(psql.Raw("NOW()")),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Where(psql.Quote("status").In(allowed...)),
		um.Returning(eventColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	ev, err := scanEvent(e.QueryRow(ctx, sql, args...))
	if !errors.Is(err, ErrNotFound) {
		return ev, err
	}

	if _, err = p.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func (p *pgxEventRepository) AdvanceDue(ctx context.Context, from, to model.EventStatus, boundary Boundary, now time.Time) (int64, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	today := dateOnly(now)
	clock := timeOfDay(model.TimeOfDayOf(now))

	q := psql.Update(
		um.Table("event"),
		um.SetCol("status").ToArg(string(to)),
		um.SetCol("updated_at").To(psql.Raw("NOW()")),
		um.Where(psql.Quote("status").EQ(psql.Arg(string(from)))),
		um.Where(psql.Group(
			psql.Quote("event_date").LT(psql.Arg(today)).Or(
				psql.Quote("event_date").EQ(psql.Arg(today)).
					And(psql.Quote(string(boundary)).LTE(psql.Arg(clock))),
			),
		)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func (p *pgxEventRepository) RecomputeMeanScore(ctx context.Context, id string) (float64, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	mean := psql.Select(
		sm.Columns(psql.Raw("COALESCE(ROUND(AVG(score)::numeric, 2), 0)::double precision")),
		sm.From("evaluation"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(id))),
	)

	q := psql.Update(
		um.Table("event"),
		um.SetCol("mean_score").To(psql.Group(mean)),
		um.SetCol("updated_at").To(psql.Raw("NOW()")),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Returning("mean_score"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var score float64
	if err = e.QueryRow(ctx, sql, args...).Scan(&score); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, classify(err)
	}
	return score, nil
}
