package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//eventclock//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var src = Source{ID: "team", URL: "https://calendar.example.com/private/team.ics?token=abc"}

func TestParseICS(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:launch@example.com",
		"SEQUENCE:2",
		"SUMMARY:Product launch",
		"LOCATION:Main hall",
		"DTSTART:20260314T120000Z",
		"DTEND:20260314T140000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:holiday@example.com",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20260320",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:standup@example.com",
		"SUMMARY:Standup",
		"DTSTART:20260316T090000Z",
		"DURATION:PT15M",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20260318T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No UID",
		"DTSTART:20260316T090000Z",
		"END:VEVENT",
	)

	events, err := ParseICS(src, body)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (UID-less one skipped)", len(events))
	}

	launch := events[0]
	if launch.Summary != "Product launch" || launch.Seq != 2 || launch.Location != "Main hall" {
		t.Errorf("launch = %+v", launch)
	}
	if !launch.Start.Equal(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)) || launch.End.Sub(launch.Start) != 2*time.Hour {
		t.Errorf("launch times = %v .. %v", launch.Start, launch.End)
	}
	if launch.AllDay {
		t.Error("launch should not be all-day")
	}

	holiday := events[1]
	if !holiday.AllDay || holiday.End.Sub(holiday.Start) != 24*time.Hour {
		t.Errorf("holiday = %+v", holiday)
	}

	standup := events[2]
	if standup.RawRRule != "FREQ=DAILY;COUNT=5" || len(standup.ExDates) != 1 {
		t.Errorf("standup recurrence = %q %v", standup.RawRRule, standup.ExDates)
	}
	if standup.End.Sub(standup.Start) != 15*time.Minute {
		t.Errorf("DURATION not applied: %v", standup.End.Sub(standup.Start))
	}
}

func TestParseICSRejectsEmpty(t *testing.T) {
	if _, err := ParseICS(src, nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestParseICSDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"PT15M":      15 * time.Minute,
		"P1DT2H":     26 * time.Hour,
		"P1W":        7 * 24 * time.Hour,
		"-PT30S":     -30 * time.Second,
		"+PT1H30M5S": time.Hour + 30*time.Minute + 5*time.Second,
	}
	for in, want := range cases {
		got, err := parseICSDuration(in)
		if err != nil || got != want {
			t.Errorf("parseICSDuration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"15M", "PTM", "P1H", "PT5", "PT99999999999999999999S", "P99999999999W"} {
		if _, err := parseICSDuration(bad); err == nil {
			t.Errorf("parseICSDuration(%q) should fail", bad)
		}
	}
}

func TestExpandOccurrences(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:standup@example.com",
		"SUMMARY:Standup",
		"DTSTART:20260316T090000Z",
		"DTEND:20260316T091500Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20260318T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:standup@example.com",
		"RECURRENCE-ID:20260319T090000Z",
		"SUMMARY:Standup (moved)",
		"DTSTART:20260319T100000Z",
		"DTEND:20260319T101500Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:old@example.com",
		"SUMMARY:Long gone",
		"DTSTART:20250101T090000Z",
		"END:VEVENT",
	)
	parsed, err := ParseICS(src, body)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}

	seoul := time.FixedZone("KST", 9*60*60)
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}

	if len(res.Events) != 4 {
		var got []string
		for _, e := range res.Events {
			got = append(got, e.Title+"@"+e.Start.UTC().Format(time.RFC3339))
		}
		t.Fatalf("got %d events %v, want 4 (5 instances minus EXDATE, old event out of range)", len(res.Events), got)
	}

	moved := res.Events[2]
	if moved.Title != "Standup (moved)" || moved.Start.UTC().Hour() != 10 {
		t.Errorf("override not applied: %+v", moved)
	}
	if moved.InstanceKey != "team/standup@example.com/2026-03-19T09:00:00Z" {
		t.Errorf("override should keep the original instance key, got %q", moved.InstanceKey)
	}
	if moved.Start.Location() != seoul {
		t.Errorf("start not in display zone: %v", moved.Start.Location())
	}

	keys := map[string]bool{}
	for _, e := range res.Events {
		if keys[e.InstanceKey] {
			t.Errorf("duplicate instance key %s", e.InstanceKey)
		}
		keys[e.InstanceKey] = true
		if e.End.Sub(e.Start) != 15*time.Minute {
			t.Errorf("duration not preserved for %s", e.InstanceKey)
		}
	}
}

func TestExpandKeepsInstanceRunningIntoRange(t *testing.T) {
	parsed := []ParsedEvent{{
		Source:   src,
		UID:      "shift",
		Summary:  "Night shift",
		Start:    time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 || res.Events[0].Start.Day() != 9 {
		t.Fatalf("want the shift that started on the 9th, got %+v", res.Events)
	}
}

func TestExpandPicksUpInstanceMovedIntoRange(t *testing.T) {
	moved := time.Date(2026, 3, 19, 9, 0, 0, 0, time.UTC)
	parsed := []ParsedEvent{
		{
			Source:   src,
			UID:      "standup@example.com",
			Summary:  "Standup",
			Start:    time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
			End:      time.Date(2026, 3, 16, 9, 15, 0, 0, time.UTC),
			RawRRule: "FREQ=DAILY;COUNT=5",
		},
		{
			Source:     src,
			UID:        "standup@example.com",
			Summary:    "Standup (moved)",
			Start:      time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC),
			End:        time.Date(2026, 3, 17, 10, 15, 0, 0, time.UTC),
			Recurrence: &moved,
		},
	}
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	keys := make(map[string]int)
	for _, ev := range res.Events {
		keys[ev.InstanceKey]++
	}
	if len(res.Events) != 3 {
		t.Fatalf("want the 16th, the 17th and the moved 19th, got %+v", res.Events)
	}
	movedKey := "team/standup@example.com/2026-03-19T09:00:00Z"
	if keys[movedKey] != 1 {
		t.Fatalf("moved instance count = %d, events %+v", keys[movedKey], res.Events)
	}
	for _, ev := range res.Events {
		if ev.InstanceKey == movedKey && (ev.Title != "Standup (moved)" || ev.Start.Hour() != 10) {
			t.Errorf("moved instance = %+v", ev)
		}
	}
}

func TestExpandIgnoresOverrideOfMissingInstance(t *testing.T) {
	// COUNT=2 ends on the 17th, so the 20th never existed.
	ghost := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	parsed := []ParsedEvent{
		{
			Source:   src,
			UID:      "standup@example.com",
			Start:    time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
			RawRRule: "FREQ=DAILY;COUNT=2",
		},
		{
			Source:     src,
			UID:        "standup@example.com",
			Start:      time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC),
			Recurrence: &ghost,
		},
	}
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %+v", res.Events)
	}
}

func TestExpandCapsOccurrences(t *testing.T) {
	parsed := []ParsedEvent{{
		Source:   src,
		UID:      "tick",
		Start:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=HOURLY",
	}}
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 10 || len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "tick" {
		t.Fatalf("cap not applied: %d events, truncated %v", len(res.Events), res.TruncatedEvents)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	if _, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetchCachesAndRevalidates(t *testing.T) {
	body := calendar("BEGIN:VEVENT", "UID:a", "DTSTART:20260314T120000Z", "END:VEVENT")
	var hits, notModified atomic.Int32
	var fail atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	fsys := afero.NewMemMapFs()
	f := NewFetcher("/cache", WithFs(fsys), WithHTTPClient(srv.Client()))
	s := Source{ID: "team", URL: srv.URL + "/team.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, s)
	if err != nil || first.FromCache || string(first.Body) != string(body) {
		t.Fatalf("first fetch = %+v, %v", first, err)
	}

	second, err := f.FetchOne(ctx, s)
	if err != nil || !second.FromCache || notModified.Load() != 1 {
		t.Fatalf("second fetch should revalidate: %+v, %v, 304s=%d", second, err, notModified.Load())
	}

	fail.Store(true)
	third, err := f.FetchOne(ctx, s)
	if err != nil || !third.FromCache || string(third.Body) != string(body) {
		t.Fatalf("upstream failure should fall back to cache: %+v, %v", third, err)
	}

	results, errs := f.FetchAll(ctx, []Source{s, {ID: "fresh", URL: srv.URL + "/fresh.ics"}})
	if len(results) != 1 || len(errs) != 1 {
		t.Fatalf("FetchAll = %d results, %d errors", len(results), len(errs))
	}
	if hits.Load() != 5 {
		t.Fatalf("hits = %d", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://calendar.example.com/private/abc.ics?token=xyz")
	if got != "https://calendar.example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
	if got := redactURL("no-scheme"); got != "ics://...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}
