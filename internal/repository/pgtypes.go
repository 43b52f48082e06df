package repository

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/yakoovad/ensemble-events/internal/model"
)

// timeOfDay bridges model.TimeOfDay and the PostgreSQL TIME type.
type timeOfDay model.TimeOfDay

func (t *timeOfDay) ScanTime(v pgtype.Time) error {
	if !v.Valid {
		return fmt.Errorf("cannot scan NULL into time of day")
	}
	*t = timeOfDay(time.Duration(v.Microseconds) * time.Microsecond)
	return nil
}

func (t timeOfDay) TimeValue() (pgtype.Time, error) {
	return pgtype.Time{Microseconds: time.Duration(t).Microseconds(), Valid: true}, nil
}

// dateOnly strips the clock so a DATE parameter is always the calendar day of t.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
