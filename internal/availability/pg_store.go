package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgStore struct {
	db db.DBTX
}

func NewPgStore(conn db.DBTX) *PgStore {
	return &PgStore{db: conn}
}

const microsPerMinute = int64(60 * time.Second / time.Microsecond)

// Helpers

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func windowColumns(w *Window) (pgtype.Time, pgtype.Time) {
	if w == nil {
		return pgtype.Time{}, pgtype.Time{}
	}
	return pgTime(w.Start), pgTime(w.End)
}

func scanWindow(start, end pgtype.Time) *Window {
	if !start.Valid || !end.Valid {
		return nil
	}
	return &Window{
		Start: TimeOfDay(start.Microseconds / microsPerMinute),
		End:   TimeOfDay(end.Microseconds / microsPerMinute),
	}
}

func weekdaysToInts(days []time.Weekday) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

const patternColumns = `id, clinic_id, doctor_id, days_of_week, morning_start, morning_end,
	evening_start, evening_end, slot_duration_minutes, version, created_at, updated_at`

func scanPattern(row pgx.Row) (SessionPattern, error) {
	var p SessionPattern
	var days []int16
	var ms, me, es, ee pgtype.Time

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.DoctorID,
		&days,
		&ms, &me,
		&es, &ee,
		&p.SlotDurationMinutes,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return SessionPattern{}, err
	}

	p.DaysOfWeek = make([]time.Weekday, len(days))
	for i, d := range days {
		p.DaysOfWeek[i] = time.Weekday(d)
	}
	p.Morning = scanWindow(ms, me)
	p.Evening = scanWindow(es, ee)
	return p, nil
}

func (s *PgStore) queryPatterns(ctx context.Context, op, sql string, arg any) ([]SessionPattern, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, db.Classify(op, err)
	}
	defer rows.Close()

	out := []SessionPattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, db.Classify(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(op, err)
	}
	return out, nil
}

// Directory

func (s *PgStore) Doctor(ctx context.Context, id uuid.UUID) (Doctor, error) {
	var d Doctor
	var tz string
	err := s.db.QueryRow(ctx, `
		SELECT d.id, d.clinic_id, c.timezone
		FROM doctors d
		JOIN clinics c ON c.id = d.clinic_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.ClinicID, &tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doctor{}, ErrDoctorNotFound
		}
		return Doctor{}, db.Classify("load doctor", err)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Doctor{}, fmt.Errorf("clinic %s timezone %q: %w", d.ClinicID, tz, err)
	}
	d.Location = loc
	return d, nil
}

// Patterns

func (s *PgStore) ListDoctorPatterns(ctx context.Context, doctorID uuid.UUID) ([]SessionPattern, error) {
	return s.queryPatterns(ctx, "list doctor patterns", `
		SELECT `+patternColumns+`
		FROM session_patterns
		WHERE doctor_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, doctorID)
}

func (s *PgStore) ListClinicPatterns(ctx context.Context, clinicID uuid.UUID) ([]SessionPattern, error) {
	return s.queryPatterns(ctx, "list clinic patterns", `
		SELECT `+patternColumns+`
		FROM session_patterns
		WHERE clinic_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, clinicID)
}

func (s *PgStore) GetPattern(ctx context.Context, id uuid.UUID) (SessionPattern, error) {
	p, err := scanPattern(s.db.QueryRow(ctx, `
		SELECT `+patternColumns+`
		FROM session_patterns
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionPattern{}, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
		}
		return SessionPattern{}, db.Classify("get pattern", err)
	}
	return p, nil
}

func (s *PgStore) CreatePattern(ctx context.Context, p SessionPattern) (SessionPattern, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	ms, me := windowColumns(p.Morning)
	es, ee := windowColumns(p.Evening)

	created, err := scanPattern(s.db.QueryRow(ctx, `
		INSERT INTO session_patterns (id, clinic_id, doctor_id, days_of_week, morning_start, morning_end,
			evening_start, evening_end, slot_duration_minutes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, now(), now())
		RETURNING `+patternColumns,
		p.ID, p.ClinicID, p.DoctorID, weekdaysToInts(p.DaysOfWeek), ms, me, es, ee, p.SlotDurationMinutes))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return SessionPattern{}, invalid("unknown clinic or doctor")
		}
		return SessionPattern{}, db.Classify("create pattern", err)
	}
	return created, nil
}

func (s *PgStore) UpdatePattern(ctx context.Context, p SessionPattern) (SessionPattern, error) {
	ms, me := windowColumns(p.Morning)
	es, ee := windowColumns(p.Evening)

	updated, err := scanPattern(s.db.QueryRow(ctx, `
		UPDATE session_patterns
		SET days_of_week = $2,
		    morning_start = $3,
		    morning_end = $4,
		    evening_start = $5,
		    evening_end = $6,
		    slot_duration_minutes = $7,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $8
		  AND deleted_at IS NULL
		RETURNING `+patternColumns,
		p.ID, weekdaysToInts(p.DaysOfWeek), ms, me, es, ee, p.SlotDurationMinutes, p.Version))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return SessionPattern{}, db.Classify("update pattern", err)
	}
	return SessionPattern{}, s.missOrConflict(ctx, "pattern", `
		SELECT version FROM session_patterns WHERE id = $1 AND deleted_at IS NULL
	`, p.ID)
}

func (s *PgStore) DeletePattern(ctx context.Context, id uuid.UUID, version int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE session_patterns
		SET deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		  AND deleted_at IS NULL
	`, id, version)
	if err != nil {
		return db.Classify("delete pattern", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.missOrConflict(ctx, "pattern", `
		SELECT version FROM session_patterns WHERE id = $1 AND deleted_at IS NULL
	`, id)
}

// missOrConflict explains a versioned write that matched no row.
func (s *PgStore) missOrConflict(ctx context.Context, what, sql string, arg any) error {
	var current int
	err := s.db.QueryRow(ctx, sql, arg).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return db.Classify("load "+what+" version", err)
	}
	return fmt.Errorf("%s at version %d: %w", what, current, ErrVersionConflict)
}

// Holidays

const holidayColumns = `id, clinic_id, doctor_id, holiday_date, reason, created_at`

func scanHoliday(row pgx.Row) (Holiday, error) {
	var h Holiday
	var date time.Time
	if err := row.Scan(&h.ID, &h.ClinicID, &h.DoctorID, &date, &h.Reason, &h.CreatedAt); err != nil {
		return Holiday{}, err
	}
	h.Date = DateOf(date)
	return h, nil
}

func (s *PgStore) ListHolidays(ctx context.Context, clinicID uuid.UUID, from, to Date) ([]Holiday, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+holidayColumns+`
		FROM holiday_exceptions
		WHERE clinic_id = $1
		  AND holiday_date BETWEEN $2 AND $3
		ORDER BY holiday_date, id
	`, clinicID, from.UTC(), to.UTC())
	if err != nil {
		return nil, db.Classify("list holidays", err)
	}
	defer rows.Close()

	out := []Holiday{}
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, db.Classify("list holidays", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify("list holidays", err)
	}
	return out, nil
}

func (s *PgStore) GetHoliday(ctx context.Context, id uuid.UUID) (Holiday, error) {
	h, err := scanHoliday(s.db.QueryRow(ctx, `
		SELECT `+holidayColumns+`
		FROM holiday_exceptions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holiday{}, fmt.Errorf("holiday %s: %w", id, ErrNotFound)
		}
		return Holiday{}, db.Classify("get holiday", err)
	}
	return h, nil
}

func (s *PgStore) CreateHoliday(ctx context.Context, h Holiday) (Holiday, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	created, err := scanHoliday(s.db.QueryRow(ctx, `
		INSERT INTO holiday_exceptions (id, clinic_id, doctor_id, holiday_date, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING `+holidayColumns,
		h.ID, h.ClinicID, h.DoctorID, h.Date.UTC(), h.Reason))
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "holiday_exceptions_scope_key"):
			return Holiday{}, invalid(fmt.Sprintf("holiday on %s already exists", h.Date))
		case db.IsForeignKeyViolation(err):
			return Holiday{}, invalid("unknown clinic or doctor")
		}
		return Holiday{}, db.Classify("create holiday", err)
	}
	return created, nil
}

func (s *PgStore) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM holiday_exceptions WHERE id = $1`, id)
	if err != nil {
		return db.Classify("delete holiday", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holiday %s: %w", id, ErrNotFound)
	}
	return nil
}

// Policies

const policyColumns = `id, clinic_id, booking_open_before_days, booking_close_before_hours,
	allow_same_day, version, updated_at`

func scanPolicy(row pgx.Row) (BookingPolicy, error) {
	var p BookingPolicy
	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.BookingOpenBeforeDays,
		&p.BookingCloseBeforeHours,
		&p.AllowSameDay,
		&p.Version,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *PgStore) GetPolicy(ctx context.Context, clinicID *uuid.UUID) (BookingPolicy, error) {
	p, err := scanPolicy(s.db.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM booking_policies
		WHERE clinic_id IS NOT DISTINCT FROM $1
	`, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookingPolicy{}, ErrNotFound
		}
		return BookingPolicy{}, db.Classify("get policy", err)
	}
	return p, nil
}

func (s *PgStore) PutPolicy(ctx context.Context, p BookingPolicy) (BookingPolicy, error) {
	if p.Version == 0 {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		created, err := scanPolicy(s.db.QueryRow(ctx, `
			INSERT INTO booking_policies (id, clinic_id, booking_open_before_days, booking_close_before_hours,
				allow_same_day, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, now(), now())
			RETURNING `+policyColumns,
			p.ID, p.ClinicID, p.BookingOpenBeforeDays, p.BookingCloseBeforeHours, p.AllowSameDay))
		if err != nil {
			switch {
			case db.IsUniqueViolation(err, ""):
				return BookingPolicy{}, fmt.Errorf("policy already exists: %w", ErrVersionConflict)
			case db.IsForeignKeyViolation(err):
				return BookingPolicy{}, invalid("unknown clinic")
			}
			return BookingPolicy{}, db.Classify("create policy", err)
		}
		return created, nil
	}

	updated, err := scanPolicy(s.db.QueryRow(ctx, `
		UPDATE booking_policies
		SET booking_open_before_days = $2,
		    booking_close_before_hours = $3,
		    allow_same_day = $4,
		    version = version + 1,
		    updated_at = now()
		WHERE clinic_id IS NOT DISTINCT FROM $1
		  AND version = $5
		RETURNING `+policyColumns,
		p.ClinicID, p.BookingOpenBeforeDays, p.BookingCloseBeforeHours, p.AllowSameDay, p.Version))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return BookingPolicy{}, db.Classify("update policy", err)
	}
	return BookingPolicy{}, s.missOrConflict(ctx, "policy", `
		SELECT version FROM booking_policies WHERE clinic_id IS NOT DISTINCT FROM $1
	`, p.ClinicID)
}
