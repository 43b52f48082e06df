package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/ensemble-events/internal/db"
	"github.com/yakoovad/ensemble-events/internal/model"
)

type Registration struct {
	ID                 string                   `db:"id"`
	UserID             string                   `db:"user_id"`
	EventID            string                   `db:"event_id"`
	Status             model.RegistrationStatus `db:"status"`
	CancellationReason *string                  `db:"cancellation_reason"`
	Date               time.Time                `db:"registered_on"`
}

// RegistrationPatch is the only shape a registration update takes: a new
// status, its reason, and the statuses the row must currently be in.
type RegistrationPatch struct {
	ID                 string
	Status             model.RegistrationStatus
	CancellationReason *string
	From               []model.RegistrationStatus
}

type RegistrationRepository interface {
	Create(ctx context.Context, reg *Registration) error
	Get(ctx context.Context, id string) (*Registration, error)
	// UpdateStatus applies the patch only when the current status is one of patch.From.
	UpdateStatus(ctx context.Context, patch *RegistrationPatch) (*Registration, error)
	Delete(ctx context.Context, id string) error
}

var registrationColumns = []any{"id", "user_id", "event_id", "status", "cancellation_reason", "registered_on"}

type pgxRegistrationRepository struct {
	pool db.Pool
}

func NewPgxRegistrationRepository(pool db.Pool) RegistrationRepository {
	return &pgxRegistrationRepository{pool: pool}
}

func scanRegistration(row pgx.Row) (*Registration, error) {
	reg := &Registration{}
	if err := row.Scan(
		&reg.ID,
		&reg.UserID,
		&reg.EventID,
		&reg.Status,
		&reg.CancellationReason,
		&reg.Date,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	return reg, nil
}

func (p *pgxRegistrationRepository) Create(ctx context.Context, reg *Registration) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("registration", "id", "user_id", "event_id", "status", "cancellation_reason", "registered_on"),
		im.Values(
			psql.Arg(reg.ID),
			psql.Arg(reg.UserID),
			psql.Arg(reg.EventID),
			psql.Arg(string(reg.Status)),
			psql.Arg(reg.CancellationReason),
			psql.Arg(dateOnly(reg.Date)),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return classify(err)
}

func (p *pgxRegistrationRepository) Get(ctx context.Context, id string) (*Registration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(registrationColumns...),
		sm.From("registration"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanRegistration(e.QueryRow(ctx, sql, args...))
}

func (p *pgxRegistrationRepository) UpdateStatus(ctx context.Context, patch *RegistrationPatch) (*Registration, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	if len(patch.From) == 0 {
		return nil, ErrInvalidTransition
	}

	allowed := make([]bob.Expression, 0, len(patch.From))
	for _, s := range patch.From {
		allowed = append(allowed, psql.Arg(string(s)))
	}

	q := psql.Update(
		um.Table("registration"),
		um.SetCol("status").ToArg(string(patch.Status)),
		um.SetCol("cancellation_reason").ToArg(patch.CancellationReason),
		um.SetCol("updated_at").To(psql.Raw("NOW()")),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(psql.Quote("status").In(allowed...)),
		um.Returning(registrationColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := scanRegistration(e.QueryRow(ctx, sql, args...))
	if !errors.Is(err, ErrNotFound) {
		return reg, err
	}

	if _, err = p.Get(ctx, patch.ID); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func (p *pgxRegistrationRepository) Delete(ctx context.Context, id string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("registration"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
