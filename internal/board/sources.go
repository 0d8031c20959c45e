package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventclock/internal/ics"
	appLog "eventclock/internal/log"
	"eventclock/internal/model"
)

// Source yields the concrete events overlapping [from, to].
type Source interface {
	Name() string
	Events(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// FeedSource fetches, parses and expands the configured ICS feeds.
type FeedSource struct {
	Fetcher        *ics.Fetcher
	Feeds          []ics.Source
	Location       *time.Location
	MaxOccurrences int
}

func (f *FeedSource) Name() string { return "ics" }

func (f *FeedSource) Events(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	if len(f.Feeds) == 0 {
		return nil, nil
	}

	results, fetchErrs := f.Fetcher.FetchAll(ctx, f.Feeds)
	if len(fetchErrs) > 0 {
		appLog.Error("one or more ICS fetches failed", errorsAggregate(fetchErrs), "error_count", len(fetchErrs))
	}
	if len(results) == 0 && len(fetchErrs) > 0 {
		return nil, fmt.Errorf("all %d feeds failed", len(fetchErrs))
	}

	parsed := make([]ics.ParsedEvent, 0)
	for _, res := range results {
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("parse failed for source", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, events...)
	}

	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation:        f.Location,
		RangeStart:             from,
		RangeEnd:               to,
		MaxOccurrencesPerEvent: f.MaxOccurrences,
	})
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	return expanded.Events, nil
}

// Lister is the part of the local store a LocalSource reads.
type Lister interface {
	List(ctx context.Context) ([]model.Event, error)
}

// LocalSource serves events from the local store.
type LocalSource struct {
	Store    Lister
	Location *time.Location
}

func (l *LocalSource) Name() string { return model.LocalSourceID }

func (l *LocalSource) Events(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	all, err := l.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(all))
	for _, ev := range all {
		if ev.EffectiveEnd().Before(from) || ev.Start.After(to) {
			continue
		}
		if l.Location != nil {
			ev.Start = ev.Start.In(l.Location)
			if ev.HasEnd() {
				ev.End = ev.End.In(l.Location)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func errorsAggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
