package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DayPlan is the resolved configuration of one doctor on one date.
type DayPlan struct {
	Doctor  Doctor
	Date    Date
	Pattern *SessionPattern
	Holiday *Holiday
	Policy  BookingPolicy
}

// GenerateSlots walks every window in slot-duration steps. A trailing remainder
// shorter than one slot is dropped. Starts are deduplicated and ordered.
func GenerateSlots(p SessionPattern) []Slot {
	step := p.SlotDurationMinutes
	seen := make(map[TimeOfDay]bool)
	var out []Slot
	for _, w := range p.Windows() {
		for start := w.Start; start.Add(step) <= w.End; start = start.Add(step) {
			if seen[start] {
				continue
			}
			seen[start] = true
			out = append(out, Slot{Start: start, End: start.Add(step)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Candidates returns the slots of the day that can be booked at now, all marked
// available. Holidays and weekdays with no pattern give an empty list.
func (d DayPlan) Candidates(now time.Time) ([]Slot, error) {
	out := []Slot{}
	if d.Holiday != nil || d.Pattern == nil {
		return out, nil
	}
	if err := checkWindows(*d.Pattern); err != nil {
		return nil, fmt.Errorf("%w: pattern %s: %v", ErrInvalidPattern, d.Pattern.ID, err)
	}

	loc := d.Doctor.Loc()
	now = now.In(loc)
	for _, s := range GenerateSlots(*d.Pattern) {
		if !d.Policy.permits(d.Date, d.Date.At(s.Start, loc), now) {
			continue
		}
		s.Available = true
		out = append(out, s)
	}
	return out, nil
}

// Lookup reports whether start is a bookable slot of the day at now.
func (d DayPlan) Lookup(start TimeOfDay, now time.Time) (Slot, bool, error) {
	slots, err := d.Candidates(now)
	if err != nil {
		return Slot{}, false, err
	}
	for _, s := range slots {
		if s.Start == start {
			return s, true, nil
		}
	}
	return Slot{}, false, nil
}

// Planner assembles DayPlans from the configuration stores.
type Planner struct {
	patterns PatternStore
	holidays HolidayStore
	policies PolicyStore
}

func NewPlanner(patterns PatternStore, holidays HolidayStore, policies PolicyStore) *Planner {
	return &Planner{patterns: patterns, holidays: holidays, policies: policies}
}

// PlanRange returns one plan per date in [from, to], in order.
func (p *Planner) PlanRange(ctx context.Context, doctor Doctor, from, to Date) ([]DayPlan, error) {
	patterns, err := p.patterns.ListDoctorPatterns(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	holidays, err := p.holidays.ListHolidays(ctx, doctor.ClinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	policy, err := ResolvePolicy(ctx, p.policies, doctor.ClinicID)
	if err != nil {
		return nil, err
	}

	plans := make([]DayPlan, 0, from.DaysUntil(to)+1)
	for date := from; !date.After(to); date = date.AddDays(1) {
		plan := DayPlan{Doctor: doctor, Date: date, Policy: policy.BookingPolicy}
		for i := range patterns {
			if patterns[i].CoversWeekday(date.Weekday()) {
				plan.Pattern = &patterns[i]
				break
			}
		}
		for i := range holidays {
			if holidays[i].Applies(doctor.ID, date) {
				plan.Holiday = &holidays[i]
				break
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (p *Planner) Plan(ctx context.Context, doctor Doctor, date Date) (DayPlan, error) {
	plans, err := p.PlanRange(ctx, doctor, date, date)
	if err != nil {
		return DayPlan{}, err
	}
	return plans[0], nil
}

// Computer produces the advisory availability view. Nothing it returns is a reservation.
type Computer struct {
	planner   *Planner
	occupancy Occupancy
	cache     Cache
	logger    zerolog.Logger
	now       func() time.Time
}

// NewComputer builds a Computer. cache may be nil.
func NewComputer(planner *Planner, occupancy Occupancy, cache Cache, logger zerolog.Logger) *Computer {
	return &Computer{
		planner:   planner,
		occupancy: occupancy,
		cache:     cache,
		logger:    logger.With().Str("component", "slot_computer").Logger(),
		now:       time.Now,
	}
}

func (c *Computer) SetClock(now func() time.Time) {
	c.now = now
}

// Range returns the slots of every date in [from, to]. Booked slots are kept and
// flagged unavailable.
func (c *Computer) Range(ctx context.Context, doctor Doctor, from, to Date) ([]DayAvailability, error) {
	if to.Before(from) {
		return nil, invalid(fmt.Sprintf("range end %s is before start %s", to, from))
	}

	now := c.now()
	today := DateOf(now.In(doctor.Loc()))

	days := from.DaysUntil(to) + 1
	out := make([]DayAvailability, days)
	tokens := make([]string, days)
	var missing []int
	for i := range out {
		out[i].Date = from.AddDays(i)
		// today and earlier depend on the clock, so only future days are cached
		if c.cache != nil && out[i].Date.After(today) {
			slots, token, hit, err := c.cache.Get(ctx, doctor.ClinicID, doctor.ID, out[i].Date)
			if err != nil {
				c.logger.Warn().Err(err).Str("date", out[i].Date.String()).Msg("availability cache read failed")
			} else if hit {
				out[i].Slots = slots
				continue
			} else {
				tokens[i] = token
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	lo, hi := out[missing[0]].Date, out[missing[len(missing)-1]].Date
	plans, err := c.planner.PlanRange(ctx, doctor, lo, hi)
	if err != nil {
		return nil, err
	}
	occupied, err := c.occupancy.Occupied(ctx, doctor.ID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	for _, i := range missing {
		date := out[i].Date
		slots, err := plans[lo.DaysUntil(date)].Candidates(now)
		if err != nil {
			return nil, err
		}
		markTaken(slots, occupied[date])
		out[i].Slots = slots

		if tokens[i] != "" {
			if err := c.cache.Put(ctx, tokens[i], slots); err != nil {
				c.logger.Warn().Err(err).Str("date", date.String()).Msg("availability cache write failed")
			}
		}
	}
	return out, nil
}

// Day is Range over a single date.
func (c *Computer) Day(ctx context.Context, doctor Doctor, date Date) ([]Slot, error) {
	days, err := c.Range(ctx, doctor, date, date)
	if err != nil {
		return nil, err
	}
	return days[0].Slots, nil
}

func markTaken(slots []Slot, taken []TimeOfDay) {
	if len(taken) == 0 {
		return
	}
	held := make(map[TimeOfDay]bool, len(taken))
	for _, t := range taken {
		held[t] = true
	}
	for i := range slots {
		if held[slots[i].Start] {
			slots[i].Available = false
		}
	}
}
