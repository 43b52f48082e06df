package db

import (
	"context"

	"github.com/pkg/errors"
)

// CreateSchema creates every table and index if missing. It is idempotent.
func CreateSchema(ctx context.Context, e Executor) error {
	if _, err := e.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS event (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    event_date DATE NOT NULL,
    start_time TIME NOT NULL,
    end_time TIME NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'Programado'
        CHECK (status IN ('Programado', 'EmAndamento', 'Concluído', 'Cancelado')),
    mean_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (end_time > start_time)
);

CREATE INDEX IF NOT EXISTS idx_event_status_date ON event(status, event_date);

CREATE TABLE IF NOT EXISTS event_participant (
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    PRIMARY KEY (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS team (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    responsible_id TEXT,
    max_members INTEGER NOT NULL DEFAULT 0 CHECK (max_members >= 0),
    mean_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    mean_attendance DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS team_member (
    team_id TEXT NOT NULL REFERENCES team(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (team_id, user_id)
);

CREATE TABLE IF NOT EXISTS team_event (
    team_id TEXT NOT NULL REFERENCES team(id) ON DELETE CASCADE,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    PRIMARY KEY (team_id, event_id)
);

CREATE INDEX IF NOT EXISTS idx_team_event_event_id ON team_event(event_id);

CREATE TABLE IF NOT EXISTS evaluation (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    evaluator_id TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 10),
    comment TEXT,
    evaluated_on DATE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (event_id, evaluator_id)
);

CREATE TABLE IF NOT EXISTS registration (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'Pendente'
        CHECK (status IN ('Pendente', 'Confirmada', 'Cancelada')),
    cancellation_reason TEXT,
    registered_on DATE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, event_id),
    CHECK (status = 'Cancelada' OR cancellation_reason IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_registration_event_id ON registration(event_id);
`
