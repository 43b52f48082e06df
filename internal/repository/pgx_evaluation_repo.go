package repository

import (
	"context"
	"time"

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

type Evaluation struct {
	ID          string    `db:"id"`
	EventID     string    `db:"event_id"`
	EvaluatorID string    `db:"evaluator_id"`
	Score       float64   `db:"score"`
	Comment     *string   `db:"comment"`
	Date        time.Time `db:"evaluated_on"`
}

// EvaluationPatch enumerates the fields an update may change. The event and
// evaluator references are fixed at creation.
type EvaluationPatch struct {
	ID      string     `db:"id"`
	Score   *float64   `db:"score"`
	Comment *string    `db:"comment"`
	Date    *time.Time `db:"evaluated_on"`
}

type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *Evaluation) error
	Get(ctx context.Context, id string) (*Evaluation, error)
	Patch(ctx context.Context, patch *EvaluationPatch) (*Evaluation, error)
	Delete(ctx context.Context, id string) (*Evaluation, error)
}

var evaluationColumns = []any{"id", "event_id", "evaluator_id", "score", "comment", "evaluated_on"}

type pgxEvaluationRepository struct {
	pool db.Pool
}

func NewPgxEvaluationRepository(pool db.Pool) EvaluationRepository {
	return &pgxEvaluationRepository{pool: pool}
}

func scanEvaluation(row pgx.Row) (*Evaluation, error) {
	ev := &Evaluation{}
	if err := row.Scan(
		&ev.ID,
		&ev.EventID,
		&ev.EvaluatorID,
		&ev.Score,
		&ev.Comment,
		&ev.Date,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	return ev, nil
}

func (p *pgxEvaluationRepository) Create(ctx context.Context, evaluation *Evaluation) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("evaluation", "id", "event_id", "evaluator_id", "score", "comment", "evaluated_on"),
		im.Values(
			psql.Arg(evaluation.ID),
			psql.Arg(evaluation.EventID),
			psql.Arg(evaluation.EvaluatorID),
			psql.Arg(evaluation.Score),
			psql.Arg(evaluation.Comment),
			psql.Arg(dateOnly(evaluation.Date)),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return classify(err)
}

func (p *pgxEvaluationRepository) Get(ctx context.Context, id string) (*Evaluation, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(evaluationColumns...),
		sm.From("evaluation"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEvaluation(e.QueryRow(ctx, sql, args...))
}

func (p *pgxEvaluationRepository) Patch(ctx context.Context, patch *EvaluationPatch) (*Evaluation, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 4)

	if patch.Score != nil {
		sets = append(sets, um.SetCol("score").ToArg(*patch.Score))
	}
	switch {
	case patch.Comment == nil:
	case *patch.Comment == "":
		sets = append(sets, um.SetCol("comment").To(psql.Raw("NULL")))
	default:
		sets = append(sets, um.SetCol("comment").ToArg(*patch.Comment))
	}
	if patch.Date != nil {
		sets = append(sets, um.SetCol("evaluated_on").ToArg(dateOnly(*patch.Date)))
	}
	sets = append(sets, um.SetCol("updated_at").To(psql.Raw("NOW()")))

	q := psql.Update(
		um.Table("evaluation"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(evaluationColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEvaluation(e.QueryRow(ctx, sql, args...))
}

func (p *pgxEvaluationRepository) Delete(ctx context.Context, id string) (*Evaluation, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("evaluation"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
		dm.Returning(evaluationColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanEvaluation(e.QueryRow(ctx, sql, args...))
}
