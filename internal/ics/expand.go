package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventclock/internal/log"
	"eventclock/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone every occurrence is converted to. Nil
	// means time.Local.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences returned. An occurrence
	// is kept when it overlaps the range.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps one RRULE's expansion.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the concrete events and the UIDs whose expansion was
// cut at the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete events within the
// range: RRULE sets are expanded, EXDATEs removed and RECURRENCE-ID
// overrides substituted for the instance they replace. Output is ordered
// by start.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Overrides are keyed per source so two feeds sharing a UID stay apart.
	type key struct{ source, uid string }
	bases := make(map[key][]ParsedEvent)
	overrides := make(map[key][]ParsedEvent)
	var order []key
	for _, ev := range events {
		k := key{ev.Source.ID, ev.UID}
		if ev.IsOverride() {
			overrides[k] = append(overrides[k], ev)
			continue
		}
		if _, seen := bases[k]; !seen {
			order = append(order, k)
		}
		bases[k] = append(bases[k], ev)
	}

	for _, k := range order {
		truncated := false
		for _, ev := range bases[k] {
			var out []model.Event
			var hitCap bool
			if ev.RawRRule == "" {
				out = expandSingle(ev, overrides[k], cfg)
			} else {
				out, hitCap = expandRecurring(ev, overrides[k], cfg)
			}
			truncated = truncated || hitCap
			result.Events = append(result.Events, out...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, k.uid)
			appLog.Warn("expand: occurrences truncated at cap", "uid", k.uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(result.Events, func(i, j int) bool {
		return result.Events[i].Start.Before(result.Events[j].Start)
	})
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	start, end, src := ev.Start, ev.End, ev
	if o, ok := findOverride(overrides, ev.Start); ok {
		start, end, src = o.Start, o.End, o
	}
	if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Event{makeEvent(src, ev.Start, start, end, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so instances that began
	// before the range but still run into it are kept.
	length := time.Duration(0)
	if !ev.End.IsZero() {
		length = ev.End.Sub(ev.Start)
	}
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.Add(-length).In(loc), cfg.RangeEnd.In(loc), true)

	seen := make(map[int64]bool, len(starts))
	for _, st := range starts {
		seen[st.UnixNano()] = true
	}

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		var occEnd time.Time
		if length > 0 {
			occEnd = occStart.Add(length)
		}
		start, end, src := occStart, occEnd, ev
		if o, ok := findOverride(overrides, occStart); ok {
			start, end, src = o.Start, o.End, o
		}
		if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeEvent(src, occStart, start, end, cfg.DisplayLocation))
	}

	// An override can move an instance from outside the range into it.
	for _, o := range overrides {
		if o.Recurrence == nil || seen[o.Recurrence.UnixNano()] {
			continue
		}
		if !overlaps(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		orig := o.Recurrence.In(loc)
		if len(set.Between(orig, orig, true)) == 0 {
			continue
		}
		out = append(out, makeEvent(o, *o.Recurrence, o.Start, o.End, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverride matches RECURRENCE-ID against an instance's original start.
func findOverride(overrides []ParsedEvent, instanceStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(instanceStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent builds the board event. The instance key uses the original
// (pre-override) start so a moved instance keeps its countdown identity.
func makeEvent(ev ParsedEvent, instanceStart, start, end time.Time, loc *time.Location) model.Event {
	out := model.Event{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		InstanceKey: ev.Source.ID + "/" + ev.UID + "/" + instanceStart.UTC().Format(time.RFC3339),
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start.In(loc),
	}
	if !end.IsZero() {
		out.End = end.In(loc)
	}
	return out
}

func overlaps(start, end, rangeStart, rangeEnd time.Time) bool {
	if end.IsZero() {
		end = start
	}
	return !end.Before(rangeStart) && !start.After(rangeEnd)
}
