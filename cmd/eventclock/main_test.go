package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"eventclock/internal/board"
	"eventclock/internal/countdown"
	"eventclock/internal/model"
)

func TestAppHasCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"serve", "list", "watch", "countdown", "add", "remove", "snapshot"} {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestPrintSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	snap := board.Snapshot{
		At: now,
		Today: []board.Item{{
			Event:   model.Event{Title: "Launch", Start: now.Add(2 * time.Hour)},
			State:   countdown.Compute(countdown.Target{Start: now.Add(2 * time.Hour)}, now),
			Urgency: "urgent",
		}},
		Ended: []board.Item{{
			Event: model.Event{Title: "Breakfast", Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour)},
		}},
	}

	var buf bytes.Buffer
	printSnapshot(&buf, snap, false)
	out := buf.String()
	if !strings.Contains(out, "TODAY (1)") || !strings.Contains(out, "02:00:00") || !strings.Contains(out, "starts 2 hours from now") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "Breakfast") {
		t.Error("ended events shown without --ended")
	}

	buf.Reset()
	printSnapshot(&buf, snap, true)
	if !strings.Contains(buf.String(), "ENDED (1)") {
		t.Errorf("ended section missing:\n%s", buf.String())
	}

	buf.Reset()
	printSnapshot(&buf, board.Snapshot{}, false)
	if !strings.Contains(buf.String(), "no events") {
		t.Errorf("empty board output = %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a very long event title", 10); got != "a very ..." {
		t.Errorf("truncate long = %q", got)
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if got := remaining(now.Add(-time.Second), now); got != "now" {
		t.Errorf("past = %q", got)
	}
	if got := remaining(now.Add(3*time.Hour), now); got != "3 hours from now" {
		t.Errorf("future = %q", got)
	}
}

func TestPendingBarsSkipsCompleted(t *testing.T) {
	bars := map[string]*watchBar{
		"started": {done: true},
		"later":   {},
	}
	if got := pendingBars(bars); got != 1 {
		t.Errorf("pendingBars = %d, want 1", got)
	}
	bars["later"].done = true
	if got := pendingBars(bars); got != 0 {
		t.Errorf("pendingBars = %d, want 0", got)
	}
}
