// Package ics turns merged iCalendar text into the events the reminder
// translator consumes.
package ics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// MaxOccurrences bounds how many occurrences LastEnd walks for a rule it
// cannot compute directly
const MaxOccurrences = 1_000_000

// ErrTooManyOccurrences is returned by LastEnd for rules past MaxOccurrences
var ErrTooManyOccurrences = errors.New("too many occurrences")

// Frequency is the FREQ part of a recurrence rule
type Frequency string

const (
	Secondly Frequency = "SECONDLY"
	Minutely Frequency = "MINUTELY"
	Hourly   Frequency = "HOURLY"
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Monthly  Frequency = "MONTHLY"
	Yearly   Frequency = "YEARLY"
)

// Rule is the subset of an RRULE the translator needs, plus the parsed
// options for expansion
type Rule struct {
	Frequency Frequency
	Interval  int
	Until     mo.Option[time.Time]
	Count     mo.Option[int]
	// Raw is the RRULE value without the "RRULE:" prefix.
	Raw string

	options rrule.ROption
}

// Bounded reports whether the rule ends
func (r Rule) Bounded() bool {
	return r.Until.IsPresent() || r.Count.IsPresent()
}

// Alarm is a VALARM reduced to its trigger
type Alarm struct {
	// Trigger is the raw TRIGGER value, e.g. "-PT15M" or "-P1D".
	Trigger string
}

// Event is one VEVENT
type Event struct {
	UID      string
	Summary  string
	Location mo.Option[string]

	Start time.Time
	End   time.Time
	// AllDay is set when DTSTART is a DATE rather than a DATE-TIME.
	AllDay bool

	Rule   mo.Option[Rule]
	Alarms []Alarm
}

// Bounded is true for non-recurring events and for rules with UNTIL or COUNT
func (e Event) Bounded() bool {
	rule, ok := e.Rule.Get()
	if !ok {
		return true
	}
	return rule.Bounded()
}

// Duration returns End minus Start
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// LastEnd returns the end of the final occurrence. It reports false for
// unbounded rules. For all-day events the ICS end is exclusive, so the last
// covered day is returned instead.
func (e Event) LastEnd() (time.Time, bool, error) {
	lastStart := e.Start

	if rule, ok := e.Rule.Get(); ok {
		if !rule.Bounded() {
			return time.Time{}, false, nil
		}
		var err error
		lastStart, err = rule.lastStart(e.Start)
		if err != nil {
			return time.Time{}, false, err
		}
	}

	end := lastStart.Add(e.Duration())
	if e.AllDay && e.Duration() > 0 {
		end = end.AddDate(0, 0, -1)
	}
	return end, true, nil
}

// lastStart finds the final occurrence of a bounded rule starting at start.
// Sub-daily rules without BY parts are plain arithmetic; everything else is
// walked one occurrence at a time up to MaxOccurrences.
func (r Rule) lastStart(start time.Time) (time.Time, error) {
	if step, ok := r.fixedStep(); ok {
		return r.lastFixed(start, step), nil
	}

	opt := r.options
	opt.Dtstart = start
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to expand RRULE %q: %w", r.Raw, err)
	}

	last := start
	next := rr.Iterator()
	for n := 0; ; n++ {
		v, ok := next()
		if !ok {
			return last, nil
		}
		if n == MaxOccurrences {
			return time.Time{}, fmt.Errorf("%w: RRULE %q", ErrTooManyOccurrences, r.Raw)
		}
		last = v
	}
}

// fixedStep returns the distance between occurrences when it never varies
func (r Rule) fixedStep() (time.Duration, bool) {
	o := r.options
	if len(o.Bysetpos)+len(o.Bymonth)+len(o.Bymonthday)+len(o.Byyearday)+len(o.Byweekno)+
		len(o.Byweekday)+len(o.Byhour)+len(o.Byminute)+len(o.Bysecond)+len(o.Byeaster) > 0 {
		return 0, false
	}

	var unit time.Duration
	switch r.Frequency {
	case Hourly:
		unit = time.Hour
	case Minutely:
		unit = time.Minute
	case Secondly:
		unit = time.Second
	default:
		return 0, false
	}
	return time.Duration(r.Interval) * unit, true
}

func (r Rule) lastFixed(start time.Time, step time.Duration) time.Time {
	var steps int64 = -1
	if count, ok := r.Count.Get(); ok {
		steps = int64(count) - 1
	}
	if until, ok := r.Until.Get(); ok {
		if until.Before(start) {
			return start
		}
		n := int64(until.Sub(start) / step)
		if steps < 0 || n < steps {
			steps = n
		}
	}
	if steps < 0 {
		steps = 0
	}
	if limit := int64(math.MaxInt64 / step); steps > limit {
		steps = limit
	}
	return start.Add(time.Duration(steps) * step)
}
