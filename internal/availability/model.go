package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Date is a clinic-local calendar date with no time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// UTC is midnight of d in UTC, the form DATE columns are written with.
func (d Date) UTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At returns the instant t on d in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, int(t), 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.UTC().Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.UTC().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.UTC().Before(o.UTC())
}

func (d Date) After(o Date) bool {
	return d.UTC().After(o.UTC())
}

// DaysUntil is the number of calendar days from d to o, negative when o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.UTC().Sub(d.UTC()).Hours() / 24)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay counts minutes after clinic-local midnight. 24:00 is a valid window end.
type TimeOfDay int

const (
	Midnight TimeOfDay = 0
	EndOfDay TimeOfDay = 24 * 60
)

func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("parse time %q: want HH:MM", s)
	}
	// tolerate HH:MM:SS from TIME columns rendered as text
	if sec, _, found := strings.Cut(mm, ":"); found {
		mm = sec
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("parse time %q: out of range", s)
	}
	return Clock(h, m), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= Midnight && t <= EndOfDay
}

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a half-open [Start, End) stretch of a working day.
type Window struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// SessionPattern is a doctor's recurring weekly availability template.
type SessionPattern struct {
	ID                  uuid.UUID      `json:"id"`
	ClinicID            uuid.UUID      `json:"clinic_id"`
	DoctorID            uuid.UUID      `json:"doctor_id"`
	DaysOfWeek          []time.Weekday `json:"days_of_week" validate:"min=1,max=7,unique,dive,min=0,max=6"`
	Morning             *Window        `json:"morning,omitempty"`
	Evening             *Window        `json:"evening,omitempty"`
	SlotDurationMinutes int            `json:"slot_duration_minutes" validate:"gt=0,lte=720"`
	Version             int            `json:"version"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (p SessionPattern) CoversWeekday(day time.Weekday) bool {
	for _, d := range p.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// Windows returns the configured windows, morning first.
func (p SessionPattern) Windows() []Window {
	out := make([]Window, 0, 2)
	if p.Morning != nil {
		out = append(out, *p.Morning)
	}
	if p.Evening != nil {
		out = append(out, *p.Evening)
	}
	return out
}

// Holiday suspends normal availability on a date. A nil DoctorID means clinic-wide.
type Holiday struct {
	ID        uuid.UUID  `json:"id"`
	ClinicID  uuid.UUID  `json:"clinic_id"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
	Date      Date       `json:"date"`
	Reason    string     `json:"reason" validate:"max=200"`
	CreatedAt time.Time  `json:"created_at"`
}

func (h Holiday) Applies(doctorID uuid.UUID, date Date) bool {
	if h.Date != date {
		return false
	}
	return h.DoctorID == nil || *h.DoctorID == doctorID
}

// BookingPolicy bounds how far ahead and how close to now a slot may be booked.
// A nil ClinicID is the global default.
type BookingPolicy struct {
	ID                      uuid.UUID  `json:"id"`
	ClinicID                *uuid.UUID `json:"clinic_id,omitempty"`
	BookingOpenBeforeDays   int        `json:"booking_open_before_days" validate:"gte=0,lte=365"`
	BookingCloseBeforeHours int        `json:"booking_close_before_hours" validate:"gte=0,lte=720"`
	AllowSameDay            bool       `json:"allow_same_day"`
	Version                 int        `json:"version"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Doctor is the fixed-shape projection of a doctor row the scheduling code works with.
type Doctor struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
	Location *time.Location
}

func (d Doctor) Loc() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// Slot is one candidate appointment interval on a date.
type Slot struct {
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Available bool      `json:"available"`
}

// DayAvailability is the slot list of a single date.
type DayAvailability struct {
	Date  Date   `json:"date"`
	Slots []Slot `json:"slots"`
}
