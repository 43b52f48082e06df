package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teamRows(teams ...*Team) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "name", "responsible_id", "max_members", "mean_score", "mean_attendance"})
	for _, t := range teams {
		rows.AddRow(t.ID, t.Name, t.ResponsibleID, t.MaxMembers, t.MeanScore, t.MeanAttendance)
	}
	return rows
}

func TestPgxTeamRepository_GetForUpdate(t *testing.T) {
	responsible := "user-1"
	want := &Team{ID: "team-1", Name: "Strings", ResponsibleID: &responsible, MaxMembers: 2}

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT.*FROM\s+"?team"?\s.*FOR UPDATE`).
		WithArgs("team-1").
		WillReturnRows(teamRows(want))

	got, err := NewPgxTeamRepository(mock).GetForUpdate(context.Background(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxTeamRepository_AddMember(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(m pgxmock.PgxPoolIface)
		want    bool
		wantErr error
	}{
		{
			name: "inserted",
			mock: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec(`(?s)INSERT INTO\s+"?team_member"?.*ON CONFLICT DO NOTHING`).
					WithArgs("team-1", "user-1").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			want: true,
		},
		{
			name: "already a member",
			mock: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec(`(?s)INSERT INTO\s+"?team_member"?`).
					WithArgs("team-1", "user-1").
					WillReturnResult(pgxmock.NewResult("INSERT", 0))
			},
			want: false,
		},
		{
			name: "team vanished",
			mock: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec(`(?s)INSERT INTO\s+"?team_member"?`).
					WithArgs("team-1", "user-1").
					WillReturnError(&pgconn.PgError{Code: "23503"})
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mock(mock)

			got, err := NewPgxTeamRepository(mock).AddMember(ctx, "team-1", "user-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgxTeamRepository_RemoveMember(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`(?s)DELETE FROM\s+"?team_member"?`).
		WithArgs("team-1", "user-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	removed, err := NewPgxTeamRepository(mock).RemoveMember(context.Background(), "team-1", "user-9")
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxTeamRepository_CountMembers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT\s+COUNT\(\*\).*FROM\s+"?team_member"?`).
		WithArgs("team-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := NewPgxTeamRepository(mock).CountMembers(context.Background(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxTeamRepository_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`(?s)INSERT INTO\s+"?team"?\s*\(`).
		WithArgs("team-1", "Strings", (*string)(nil), 0).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = NewPgxTeamRepository(mock).Create(context.Background(), &Team{ID: "team-1", Name: "Strings"})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
