// Package eventtime buckets events for tabbed display and classifies how
// urgent an upcoming event is.
package eventtime

import (
	"sort"
	"time"

	"eventclock/internal/model"
)

// Category is the tab an event is listed under.
type Category string

const (
	CategoryToday    Category = "today"
	CategoryUpcoming Category = "upcoming"
	CategoryOngoing  Category = "ongoing"
	CategoryEnded    Category = "ended"
)

// Buckets partitions a set of events: every input event is in exactly one
// list.
type Buckets struct {
	Today    []model.Event
	Upcoming []model.Event
	Ongoing  []model.Event
	Ended    []model.Event
}

// Len is the total number of events across all buckets.
func (b Buckets) Len() int {
	return len(b.Today) + len(b.Upcoming) + len(b.Ongoing) + len(b.Ended)
}

// Classify returns the category of a single event at now. Day boundaries
// are local midnights in now's location.
func Classify(ev model.Event, now time.Time) Category {
	end := ev.EffectiveEnd()
	switch {
	case end.Before(now):
		return CategoryEnded
	case !ev.Start.After(now) && now.Before(end):
		return CategoryOngoing
	}

	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	if !ev.Start.Before(today) && ev.Start.Before(tomorrow) {
		return CategoryToday
	}
	return CategoryUpcoming
}

// Categorize splits events into the four buckets. Order within each bucket
// follows the input; use SortBuckets for display order.
func Categorize(events []model.Event, now time.Time) Buckets {
	var b Buckets
	for _, ev := range events {
		switch Classify(ev, now) {
		case CategoryEnded:
			b.Ended = append(b.Ended, ev)
		case CategoryOngoing:
			b.Ongoing = append(b.Ongoing, ev)
		case CategoryToday:
			b.Today = append(b.Today, ev)
		default:
			b.Upcoming = append(b.Upcoming, ev)
		}
	}
	return b
}

// SortBuckets orders today and upcoming by soonest start, ongoing by
// soonest end and ended by most recent end. Ties fall back to title.
func SortBuckets(b Buckets) {
	byStart := func(list []model.Event) {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].Start.Equal(list[j].Start) {
				return list[i].Start.Before(list[j].Start)
			}
			return list[i].Title < list[j].Title
		})
	}
	byStart(b.Today)
	byStart(b.Upcoming)

	sort.SliceStable(b.Ongoing, func(i, j int) bool {
		ei, ej := b.Ongoing[i].EffectiveEnd(), b.Ongoing[j].EffectiveEnd()
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return b.Ongoing[i].Title < b.Ongoing[j].Title
	})
	sort.SliceStable(b.Ended, func(i, j int) bool {
		ei, ej := b.Ended[i].EffectiveEnd(), b.Ended[j].EffectiveEnd()
		if !ei.Equal(ej) {
			return ei.After(ej)
		}
		return b.Ended[i].Title < b.Ended[j].Title
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
