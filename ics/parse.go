package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// ErrParse wraps every failure to turn calendar text into events
var ErrParse = errors.New("failed to parse calendar")

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// Parse decodes calendar text and returns its VEVENTs in document order.
// Floating date-times and dates are interpreted in loc (UTC when nil).
func Parse(text string, loc *time.Location) ([]Event, error) {
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.NewDecoder(strings.NewReader(dropBlankLines(text))).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var events []Event
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve.Component, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: event %q: %w", ErrParse, ev.UID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// dropBlankLines removes empty lines, which the decoder rejects. A line of
// spaces is a folded continuation and stays.
func dropBlankLines(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.TrimRight(line, "\r\n") == "" {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// newlines flattens escaped line breaks so an event stays on one output line
var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// textValue unescapes a TEXT property
func textValue(p *ical.Prop) (string, error) {
	text, err := p.Text()
	if err != nil {
		return "", err
	}
	return newlines.Replace(text), nil
}

func parseEvent(comp *ical.Component, loc *time.Location) (Event, error) {
	var ev Event

	if p := comp.Props.Get(ical.PropUID); p != nil {
		ev.UID = p.Value
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		summary, err := textValue(p)
		if err != nil {
			return ev, fmt.Errorf("invalid SUMMARY: %w", err)
		}
		ev.Summary = summary
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		location, err := textValue(p)
		if err != nil {
			return ev, fmt.Errorf("invalid LOCATION: %w", err)
		}
		if strings.TrimSpace(location) != "" {
			ev.Location = mo.Some(location)
		}
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTime(startProp, loc)
	if err != nil {
		return ev, fmt.Errorf("invalid DTSTART: %w", err)
	}
	ev.Start = start
	ev.AllDay = allDay

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		end, _, err := parseTime(comp.Props.Get(ical.PropDateTimeEnd), loc)
		if err != nil {
			return ev, fmt.Errorf("invalid DTEND: %w", err)
		}
		ev.End = end
	case comp.Props.Get(ical.PropDuration) != nil:
		d, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			return ev, fmt.Errorf("invalid DURATION: %w", err)
		}
		ev.End = start.Add(d)
	case allDay:
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start
	}

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil && p.Value != "" {
		rule, err := parseRule(p.Value, start.Location())
		if err != nil {
			return ev, err
		}
		ev.Rule = mo.Some(rule)
	}

	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		if p := child.Props.Get(ical.PropTrigger); p != nil {
			ev.Alarms = append(ev.Alarms, Alarm{Trigger: strings.TrimSpace(p.Value)})
		}
	}

	return ev, nil
}

// parseTime reads a DATE or DATE-TIME property. A value is a DATE when it
// says VALUE=DATE or carries no time part.
func parseTime(prop *ical.Prop, loc *time.Location) (time.Time, bool, error) {
	value := strings.TrimSpace(prop.Value)

	if strings.EqualFold(prop.Params.Get(ical.ParamValue), string(ical.ValueDate)) || !strings.Contains(value, "T") {
		t, err := time.ParseInLocation(dateLayout, value, loc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(dateTimeLayout+"Z", value)
		return t, false, err
	}

	zone := loc
	if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
		// Unknown TZIDs (Outlook-style names) fall back to loc.
		if l, err := time.LoadLocation(tzid); err == nil {
			zone = l
		}
	}
	t, err := time.ParseInLocation(dateTimeLayout, value, zone)
	return t, false, err
}

func parseRule(value string, loc *time.Location) (Rule, error) {
	opt, err := rrule.StrToROptionInLocation(value, loc)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid RRULE %q: %w", value, err)
	}

	rule := Rule{
		Frequency: frequencyOf(opt.Freq),
		Interval:  opt.Interval,
		Raw:       value,
		options:   *opt,
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if opt.Count > 0 {
		rule.Count = mo.Some(opt.Count)
	}
	if !opt.Until.IsZero() {
		rule.Until = mo.Some(opt.Until)
	}
	return rule, nil
}

func frequencyOf(f rrule.Frequency) Frequency {
	switch f {
	case rrule.YEARLY:
		return Yearly
	case rrule.MONTHLY:
		return Monthly
	case rrule.WEEKLY:
		return Weekly
	case rrule.DAILY:
		return Daily
	case rrule.HOURLY:
		return Hourly
	case rrule.MINUTELY:
		return Minutely
	default:
		return Secondly
	}
}
