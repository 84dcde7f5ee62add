package rrule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/reminder-engine/internal/models"
)

// DefaultMaxOccurrences bounds how many occurrences a single window returns.
const DefaultMaxOccurrences = 500

var (
	ErrMalformedRule   = errors.New("malformed recurrence rule")
	ErrUnknownTimezone = errors.New("unknown timezone")
	ErrInvalidWindow   = errors.New("window start must be before window end")
	ErrNoAnchor        = errors.New("recurrence needs a start date or creation time")
)

// MalformedRuleError is returned when a recurrence rule cannot be parsed.
type MalformedRuleError struct {
	Rule string
	Err  error
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("malformed recurrence rule %q: %v", e.Rule, e.Err)
}

func (e *MalformedRuleError) Unwrap() error { return e.Err }

func (e *MalformedRuleError) Is(target error) bool { return target == ErrMalformedRule }

// Spec is everything needed to expand one schedule's recurrence.
type Spec struct {
	Rule      string
	TimeOfDay models.TimeOfDay
	Timezone  string
	// StartDate and EndDate are calendar dates bounding the occurrences;
	// EndDate is exclusive. DTSTART falls on StartDate.
	StartDate *time.Time
	EndDate   *time.Time
	// CreatedAt anchors DTSTART (its date in Timezone) when StartDate is nil.
	CreatedAt time.Time
	// MaxOccurrences caps a single window; zero means DefaultMaxOccurrences.
	MaxOccurrences int
}

// SpecFor builds a Spec from a stored schedule.
func SpecFor(s *models.ReminderSchedule) (Spec, error) {
	tod, err := models.ParseTimeOfDay(s.TimeOfDay)
	if err != nil {
		return Spec{}, err
	}
	return Spec{
		Rule:      s.RecurrenceRule,
		TimeOfDay: tod,
		Timezone:  s.Timezone,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		CreatedAt: s.CreatedAt,
	}, nil
}

// Rule is a compiled, immutable recurrence bound to a time zone.
//
// The recurrence is expanded on a floating wall clock (UTC fields standing
// in for local fields) and each wall time is converted to an instant in loc
// afterwards, so DST transitions never shift the expansion itself.
type Rule struct {
	opt    rrule.ROption // defaults made explicit, DTSTART on the wall clock
	base   *rrule.RRule
	raw    string
	loc    *time.Location
	start  time.Time // wall clock; zero when unbounded
	end    time.Time // wall clock; zero when unbounded
	limit  int
	rebase bool
}

// LoadLocation resolves an IANA zone name. The empty name is rejected rather
// than silently mapped to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownTimezone, name, err)
	}
	return loc, nil
}

// Compile parses the rule text and anchors DTSTART at TimeOfDay, in Timezone,
// on StartDate (or the local date of CreatedAt).
func Compile(spec Spec) (*Rule, error) {
	loc, err := LoadLocation(spec.Timezone)
	if err != nil {
		return nil, err
	}

	ruleStr := strings.TrimSpace(spec.Rule)
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")
	if !IsRecurring(ruleStr) {
		return nil, &MalformedRuleError{Rule: spec.Rule, Err: errors.New("FREQ is required")}
	}

	// Floating UNTIL values are read in the schedule's zone, not the process zone.
	opt, err := rrule.StrToROptionInLocation(ruleStr, loc)
	if err != nil {
		return nil, &MalformedRuleError{Rule: spec.Rule, Err: err}
	}
	var anchor time.Time
	switch {
	case spec.StartDate != nil:
		anchor = *spec.StartDate
	case !spec.CreatedAt.IsZero():
		anchor = spec.CreatedAt.In(loc)
	default:
		return nil, ErrNoAnchor
	}
	opt.Dtstart = spec.TimeOfDay.On(anchor, time.UTC)
	if !opt.Until.IsZero() {
		opt.Until = wallClock(opt.Until.In(loc))
	}
	explicitDefaults(opt)

	base, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, &MalformedRuleError{Rule: spec.Rule, Err: err}
	}

	r := &Rule{opt: *opt, base: base, raw: spec.Rule, loc: loc, limit: spec.MaxOccurrences, rebase: true}
	if r.limit <= 0 {
		r.limit = DefaultMaxOccurrences
	}
	if spec.StartDate != nil {
		r.start = wallDate(*spec.StartDate)
	}
	if spec.EndDate != nil {
		r.end = wallDate(*spec.EndDate)
	}
	return r, nil
}

// Window is the result of expanding a rule over [start, end).
type Window struct {
	// Occurrences are UTC instants, earliest first.
	Occurrences []time.Time
	// Exhausted is set when the rule has no occurrence at or after the window end.
	Exhausted bool
	// Truncated is set when the occurrence cap was hit before the window end.
	Truncated bool
}

// OccurrencesInWindow returns the occurrences falling in [start, end).
func (r *Rule) OccurrencesInWindow(start, end time.Time) (Window, error) {
	return r.OccurrencesInWindowContext(context.Background(), start, end)
}

// OccurrencesInWindowContext is OccurrencesInWindow with cancellation.
func (r *Rule) OccurrencesInWindowContext(ctx context.Context, start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, ErrInvalidWindow
	}

	var w Window
	exhausted, err := r.scan(ctx, start, func(t time.Time) bool {
		if t.Before(start) {
			return true
		}
		if !t.Before(end) {
			return false
		}
		if len(w.Occurrences) >= r.limit {
			w.Truncated = true
			return false
		}
		w.Occurrences = append(w.Occurrences, t)
		return true
	})
	if err != nil {
		return Window{}, err
	}
	w.Exhausted = exhausted
	return w, nil
}

// NextOccurrence returns the first occurrence at or after from.
// Returns nil if there are no more occurrences.
func (r *Rule) NextOccurrence(from time.Time) *time.Time {
	next, _ := r.Next(context.Background(), from, true)
	return next
}

// NextOccurrenceStrict returns the first occurrence strictly after the given time.
// Use this to resume right after the last processed occurrence.
func (r *Rule) NextOccurrenceStrict(after time.Time) *time.Time {
	next, _ := r.Next(context.Background(), after, false)
	return next
}

// Next returns the first occurrence after t (at or after when inclusive),
// or nil when the rule is exhausted.
func (r *Rule) Next(ctx context.Context, t time.Time, inclusive bool) (*time.Time, error) {
	var found *time.Time
	_, err := r.scan(ctx, t, func(at time.Time) bool {
		if at.Before(t) || (!inclusive && at.Equal(t)) {
			return true
		}
		found = &at
		return false
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ctxCheckInterval is how many expanded occurrences pass between ctx checks.
const ctxCheckInterval = 256

// scan feeds visit every occurrence, as a UTC instant, that can be at or
// after from, in order, until visit returns false. It reports whether the
// rule ran out of occurrences.
func (r *Rule) scan(ctx context.Context, from time.Time, visit func(time.Time) bool) (bool, error) {
	next := r.expansionFrom(from).Iterator()
	var last time.Time
	for i := 0; ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		wall, ok := next()
		if !ok || r.pastEnd(wall) {
			return true, nil
		}
		if r.beforeStart(wall) {
			continue
		}
		at := models.LocalTime(wall, r.loc).UTC()
		// Two wall times around a forward transition can land on one instant.
		if !last.IsZero() && !at.After(last) {
			continue
		}
		last = at
		if !visit(at) {
			return false, nil
		}
	}
}

// rebaseMargin keeps a moved DTSTART safely before from across any UTC offset.
const rebaseMargin = 48 * time.Hour

// expansionFrom returns a rule yielding the same occurrences as the compiled
// one from from onwards. Without COUNT, DTSTART moves forward by whole
// INTERVAL periods so the expansion does not replay the schedule's history.
func (r *Rule) expansionFrom(from time.Time) *rrule.RRule {
	if !r.rebase || r.opt.Count > 0 {
		return r.base
	}
	target := wallClock(from.In(r.loc)).Add(-rebaseMargin)
	dtstart, ok := advancePeriods(r.opt, target)
	if !ok {
		return r.base
	}
	opt := r.opt
	opt.Dtstart = dtstart
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return r.base
	}
	return rule
}

// advancePeriods returns the start of the latest INTERVAL-aligned period
// that begins after DTSTART's own period and no later than target.
func advancePeriods(opt rrule.ROption, target time.Time) (time.Time, bool) {
	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}
	p0 := periodStart(opt, opt.Dtstart)
	if !target.After(p0) {
		return time.Time{}, false
	}

	var k int
	var step func(n int) time.Time
	switch opt.Freq {
	case rrule.YEARLY:
		k = (target.Year() - p0.Year()) / interval
		step = func(n int) time.Time { return p0.AddDate(n, 0, 0) }
	case rrule.MONTHLY:
		months := (target.Year()-p0.Year())*12 + int(target.Month()-p0.Month())
		k = months / interval
		step = func(n int) time.Time { return p0.AddDate(0, n, 0) }
	case rrule.WEEKLY:
		k = int(target.Sub(p0)/(24*time.Hour)) / (7 * interval)
		step = func(n int) time.Time { return p0.AddDate(0, 0, 7*n) }
	case rrule.DAILY:
		k = int(target.Sub(p0)/(24*time.Hour)) / interval
		step = func(n int) time.Time { return p0.AddDate(0, 0, n) }
	default:
		unit := time.Second
		switch opt.Freq {
		case rrule.HOURLY:
			unit = time.Hour
		case rrule.MINUTELY:
			unit = time.Minute
		}
		k = int(target.Sub(p0) / (time.Duration(interval) * unit))
		step = func(n int) time.Time { return p0.Add(time.Duration(n) * unit) }
	}
	if k <= 0 {
		return time.Time{}, false
	}
	return step(k * interval), true
}

// periodStart truncates t to the start of its FREQ period on the wall clock.
func periodStart(opt rrule.ROption, t time.Time) time.Time {
	y, m, d := t.Date()
	switch opt.Freq {
	case rrule.YEARLY:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	case rrule.MONTHLY:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case rrule.WEEKLY:
		back := (weekdayIndex(t.Weekday()) - opt.Wkst.Day() + 7) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, time.UTC)
	case rrule.DAILY:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case rrule.HOURLY:
		return t.Truncate(time.Hour)
	case rrule.MINUTELY:
		return t.Truncate(time.Minute)
	default:
		return t.Truncate(time.Second)
	}
}

var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// weekdayIndex numbers days from Monday = 0, the way rrule-go does.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// explicitDefaults fills in the BYxxx parts the library would otherwise
// derive from DTSTART, so a moved DTSTART keeps the original day and time.
func explicitDefaults(opt *rrule.ROption) {
	dt := opt.Dtstart
	if len(opt.Byweekno) == 0 && len(opt.Byyearday) == 0 && len(opt.Bymonthday) == 0 &&
		len(opt.Byweekday) == 0 && len(opt.Byeaster) == 0 {
		switch opt.Freq {
		case rrule.YEARLY:
			if len(opt.Bymonth) == 0 {
				opt.Bymonth = []int{int(dt.Month())}
			}
			opt.Bymonthday = []int{dt.Day()}
		case rrule.MONTHLY:
			opt.Bymonthday = []int{dt.Day()}
		case rrule.WEEKLY:
			opt.Byweekday = []rrule.Weekday{weekdays[weekdayIndex(dt.Weekday())]}
		}
	}
	if len(opt.Byhour) == 0 && opt.Freq < rrule.HOURLY {
		opt.Byhour = []int{dt.Hour()}
	}
	if len(opt.Byminute) == 0 && opt.Freq < rrule.MINUTELY {
		opt.Byminute = []int{dt.Minute()}
	}
	if len(opt.Bysecond) == 0 && opt.Freq < rrule.SECONDLY {
		opt.Bysecond = []int{dt.Second()}
	}
}

// Location returns the zone the rule is evaluated in.
func (r *Rule) Location() *time.Location { return r.loc }

// String returns the raw rule text.
func (r *Rule) String() string { return r.raw }

func (r *Rule) pastEnd(wall time.Time) bool {
	return !r.end.IsZero() && !wall.Before(r.end)
}

func (r *Rule) beforeStart(wall time.Time) bool {
	return !r.start.IsZero() && wall.Before(r.start)
}

// OccurrencesInWindow compiles spec and expands it over [windowStart, windowEnd).
func OccurrencesInWindow(spec Spec, windowStart, windowEnd time.Time) (Window, error) {
	if !windowStart.Before(windowEnd) {
		return Window{}, ErrInvalidWindow
	}
	r, err := Compile(spec)
	if err != nil {
		return Window{}, err
	}
	return r.OccurrencesInWindow(windowStart, windowEnd)
}

// NextOccurrenceAfter compiles spec and returns the first occurrence strictly after after.
func NextOccurrenceAfter(spec Spec, after time.Time) (*time.Time, error) {
	r, err := Compile(spec)
	if err != nil {
		return nil, err
	}
	return r.NextOccurrenceStrict(after), nil
}

// IsRecurring checks if the RRULE string represents a recurring rule
func IsRecurring(ruleStr string) bool {
	return ruleStr != "" && strings.Contains(strings.ToUpper(ruleStr), "FREQ=")
}

// wallClock re-labels t's local fields as UTC.
func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

// wallDate returns 00:00 on d's calendar date on the wall clock. DATE columns
// come back from the drivers as UTC midnight, so d's own fields are the date.
func wallDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
