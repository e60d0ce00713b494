// Package remind renders calendar events as remind(1) REM lines.
//
// Monthly and yearly rules lean on remind's own repetition: a date spec
// without a month repeats every month, one without a year repeats every
// year. Daily and weekly rules become a day-count repeat (*N). remind has no
// notion of an endless repeat that survives past the generated file, so
// unbounded rules get no UNTIL and rely on the file being regenerated.
package remind

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/caldav2rem/ics"
)

var (
	// ErrUnsupportedFrequency marks rules remind cannot express as a repeat
	ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")
	// ErrUnsupportedTrigger marks alarm triggers outside the simple
	// single-unit form
	ErrUnsupportedTrigger = errors.New("unsupported alarm trigger")
	// ErrNegativeDuration marks events ending before they start
	ErrNegativeDuration = errors.New("event ends before it starts")
)

// triggerPattern accepts a signed single-unit duration such as -PT30M or +P2D
var triggerPattern = regexp.MustCompile(`^([+-]?)P?T?(\d+)([WDHMS])$`)

const minutesPerDay = 1440

var secondsPerUnit = map[string]int64{
	"W": 7 * 24 * 3600,
	"D": 24 * 3600,
	"H": 3600,
	"M": 60,
	"S": 1,
}

// Options configures a Translator
type Options struct {
	// Location is the zone times of day are printed in. Defaults to
	// time.Local.
	Location *time.Location
	// Logger receives a warning for every degraded line.
	Logger *slog.Logger
}

// Translator converts events to REM lines
type Translator struct {
	loc    *time.Location
	logger *slog.Logger
}

// NewTranslator creates a Translator
func NewTranslator(opts Options) *Translator {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Translator{loc: loc, logger: logger}
}

// Translate renders every event, in order, into one buffer. Warnings are
// logged and returned; they never stop the remaining events.
func (t *Translator) Translate(events []ics.Event) (string, []error) {
	var (
		b        strings.Builder
		warnings []error
	)
	for _, ev := range events {
		line, warns := t.Line(ev)
		b.WriteString(line)
		warnings = append(warnings, warns...)
	}
	return b.String(), warnings
}

// Line renders a single event, newline included
func (t *Translator) Line(ev ics.Event) (string, []error) {
	var (
		b        strings.Builder
		warnings []error
	)
	warn := func(err error) {
		t.logger.Warn("degraded reminder", "uid", ev.UID, "summary", ev.Summary, "error", err)
		warnings = append(warnings, err)
	}

	start := t.local(ev, ev.Start)
	rule, recurring := ev.Rule.Get()

	b.WriteString("REM")

	switch {
	case recurring && rule.Frequency == ics.Monthly:
		fmt.Fprintf(&b, " %d %d", start.Day(), start.Year())
	case recurring && rule.Frequency == ics.Yearly:
		fmt.Fprintf(&b, " %s %d", monthAbbr(start), start.Day())
	default:
		fmt.Fprintf(&b, " %s", date(start))
	}

	if ev.Bounded() {
		last, ok, err := ev.LastEnd()
		switch {
		case err != nil:
			warn(err)
		case ok:
			last = t.local(ev, last)
			if !sameDate(start, last) {
				fmt.Fprintf(&b, " UNTIL %s", date(last))
			}
		}
	}

	if recurring {
		switch rule.Frequency {
		case ics.Daily:
			fmt.Fprintf(&b, " *%d", rule.Interval)
		case ics.Weekly:
			fmt.Fprintf(&b, " *%d", rule.Interval*7)
		case ics.Monthly, ics.Yearly:
			// repeated by the date spec
		default:
			warn(fmt.Errorf("%w: %s", ErrUnsupportedFrequency, rule.Frequency))
		}
	}

	if !ev.AllDay {
		fmt.Fprintf(&b, " AT %d:%02d", start.Hour(), start.Minute())

		secs := int64(ev.Duration() / time.Second)
		switch {
		case secs > 0:
			fmt.Fprintf(&b, " DURATION %d:%d", secs/3600, (secs%3600)/60)
		case secs < 0:
			warn(fmt.Errorf("%w: %s", ErrNegativeDuration, ev.Duration()))
		}
	}

	if len(ev.Alarms) > 0 {
		delta, err := advanceWarning(ev.Alarms[0].Trigger)
		if err != nil {
			warn(err)
		} else if delta != "" {
			b.WriteString(" " + delta)
		}
	}

	b.WriteString(" MSG %w %d%s")
	if !ev.AllDay {
		b.WriteString(" %2")
	}
	b.WriteString(` %"` + escape(ev.Summary) + `%"`)
	if loc, ok := ev.Location.Get(); ok {
		b.WriteString(" (at " + escape(loc) + ")")
	}
	b.WriteString("%\n")

	return b.String(), warnings
}

// advanceWarning converts an alarm trigger into a remind delta. Triggers
// shorter than a day return an empty delta since remind only warns in whole
// days.
func advanceWarning(trigger string) (string, error) {
	m := triggerPattern.FindStringSubmatch(trigger)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTrigger, trigger)
	}

	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrUnsupportedTrigger, trigger, err)
	}
	// partial minutes round up
	minutes := (n*secondsPerUnit[m[3]] + 59) / 60
	if minutes < minutesPerDay {
		return "", nil
	}
	days := minutes / minutesPerDay

	// A trigger before the event is negative in ICS and positive in remind.
	if m[1] == "-" {
		return "+" + strconv.FormatInt(days, 10), nil
	}
	return "-" + strconv.FormatInt(days, 10), nil
}

// local moves timed values into the output zone; dates stay as written
func (t *Translator) local(ev ics.Event, v time.Time) time.Time {
	if ev.AllDay {
		return v
	}
	return v.In(t.loc)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func monthAbbr(t time.Time) string {
	return t.Month().String()[:3]
}

func date(t time.Time) string {
	return fmt.Sprintf("%s %d %d", monthAbbr(t), t.Day(), t.Year())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
