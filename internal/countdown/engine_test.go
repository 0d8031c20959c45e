package countdown

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"eventclock/internal/clock"
	appLog "eventclock/internal/log"
)

// step advances the fake clock by d and ticks once, the way Run would.
func step(c *clock.Fake, e *Engine, d time.Duration) State {
	c.Advance(d)
	return e.Tick()
}

func TestScenarioFiveSecondCountdown(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(5 * time.Second)},
		WithClock(c),
		WithOnFinish(func() { finished++ }),
	)

	st := e.State()
	if st.Phase != PhaseFinalTen || st.Seconds != 5 || st.IsExpired {
		t.Fatalf("initial state = %+v", st)
	}

	// Ticks land 100ms after each whole second, so the crossing is
	// observed at +5.1s.
	c.Advance(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		st = step(c, e, time.Second)
	}
	if !c.Now().Equal(epoch.Add(5100 * time.Millisecond)) {
		t.Fatalf("clock at %v", c.Now().Sub(epoch))
	}
	if finished != 1 {
		t.Fatalf("onFinish fired %d times at crossing, want 1", finished)
	}
	if !st.JustFinished || st.Phase != PhaseJustFinished || !st.IsExpired {
		t.Fatalf("crossing state = %+v", st)
	}

	for i := 0; i < 3; i++ {
		st = step(c, e, time.Second)
	}
	// +8.1s, then to +8.2s.
	st = step(c, e, 100*time.Millisecond)
	if st.JustFinished || st.Phase == PhaseJustFinished {
		t.Fatalf("justFinished still set at +8.2s: %+v", st)
	}
	if !st.IsExpired || st.IsRunning {
		t.Fatalf("state at +8.2s = %+v", st)
	}
	if st.ElapsedSeconds != 3 || st.Seconds != 3 {
		t.Fatalf("elapsed at +8.2s = %d, want 3", st.ElapsedSeconds)
	}
	if finished != 1 {
		t.Fatalf("onFinish fired %d times, want 1", finished)
	}
}

func TestScenarioOngoingAtMount(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(-10 * time.Second), End: epoch.Add(50 * time.Second)},
		WithClock(c),
		WithOnFinish(func() { finished++ }),
	)

	st := e.State()
	if !st.IsRunning || !st.IsExpired || st.JustFinished {
		t.Fatalf("initial state = %+v", st)
	}
	if st.ElapsedSeconds != 10 {
		t.Fatalf("elapsed = %d, want 10", st.ElapsedSeconds)
	}

	st = step(c, e, time.Second)
	if st.JustFinished || finished != 0 {
		t.Fatalf("first tick after mount reported a crossing: %+v, finished=%d", st, finished)
	}
}

func TestNoFinishOnMountAtExactStart(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch}, WithClock(c), WithOnFinish(func() { finished++ }))

	if e.State().JustFinished {
		t.Fatal("justFinished on mount")
	}
	for i := 0; i < 5; i++ {
		if st := step(c, e, time.Second); st.JustFinished {
			t.Fatalf("justFinished after mount at start, tick %d", i)
		}
	}
	if finished != 0 {
		t.Fatalf("onFinish fired %d times for a crossing before mount", finished)
	}
}

func TestFinishFiresOncePerCrossing(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(2 * time.Second)}, WithClock(c), WithOnFinish(func() { finished++ }))

	for i := 0; i < 10*60; i++ {
		step(c, e, time.Second)
	}
	if finished != 1 {
		t.Fatalf("onFinish fired %d times over ten minutes, want 1", finished)
	}
}

func TestJustFinishedWindowIsContiguousAndBounded(t *testing.T) {
	c := clock.NewFake(epoch)
	e := New(Target{Start: epoch.Add(time.Second)}, WithClock(c))

	var firstOn, lastOn time.Duration = -1, -1
	sawOffAfterOn := false
	for i := 0; i < 40; i++ {
		st := step(c, e, 250*time.Millisecond)
		at := c.Now().Sub(epoch)
		switch {
		case st.JustFinished && sawOffAfterOn:
			t.Fatalf("justFinished turned on again at %v", at)
		case st.JustFinished:
			if firstOn < 0 {
				firstOn = at
			}
			lastOn = at
		case firstOn >= 0:
			sawOffAfterOn = true
		}
	}
	if firstOn != time.Second {
		t.Fatalf("window opened at %v, want at the crossing tick (1s)", firstOn)
	}
	if lastOn-firstOn >= DefaultFinishWindow {
		t.Fatalf("window lasted %v, want < %v", lastOn-firstOn, DefaultFinishWindow)
	}
	if !sawOffAfterOn {
		t.Fatal("window never closed")
	}
}

func TestWindowClosesWithoutTicks(t *testing.T) {
	c := clock.NewFake(epoch)
	var mu sync.Mutex
	var seen []State
	e := New(Target{Start: epoch.Add(time.Second)},
		WithClock(c),
		WithOnTick(func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}),
	)

	step(c, e, time.Second)
	if !e.State().JustFinished {
		t.Fatal("expected justFinished after crossing")
	}
	c.Advance(DefaultFinishWindow)
	if e.State().JustFinished {
		t.Fatal("window timer did not clear justFinished")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !seen[0].JustFinished || seen[1].JustFinished {
		t.Fatalf("onTick saw %+v", seen)
	}
}

func TestStateIsPureFunctionOfInputs(t *testing.T) {
	c := clock.NewFake(epoch)
	target := Target{Start: epoch.Add(30 * time.Second), End: epoch.Add(2 * time.Minute)}
	e := New(target, WithClock(c))

	for i := 0; i < 200; i++ {
		got := step(c, e, 700*time.Millisecond)
		want := Compute(target, c.Now())
		got.JustFinished = false
		if got.Phase == PhaseJustFinished {
			got.Phase = want.Phase
		}
		if got != want {
			t.Fatalf("after %d ticks at %v: engine %+v, Compute %+v", i+1, c.Now().Sub(epoch), got, want)
		}
	}
}

func TestMissedTicksSelfCorrect(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(time.Hour)}, WithClock(c), WithOnFinish(func() { finished++ }))

	// Suspended for two hours: one late tick sees the true state and still
	// reports the crossing it missed.
	st := step(c, e, 2*time.Hour)
	if !st.IsExpired || st.ElapsedSeconds != 3600 || st.Hours != 1 {
		t.Fatalf("state after suspension = %+v", st)
	}
	if finished != 1 || !st.JustFinished {
		t.Fatalf("crossing during suspension not reported: finished=%d state=%+v", finished, st)
	}
}

func TestPanickingFinishCallbackIsContained(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })

	c := clock.NewFake(epoch)
	e := New(Target{Start: epoch.Add(time.Second)},
		WithClock(c),
		WithLabel("launch"),
		WithOnFinish(func() { panic("toast service down") }),
	)

	st := step(c, e, time.Second)
	if !st.JustFinished {
		t.Fatalf("panic blocked the transition: %+v", st)
	}
	st = step(c, e, time.Second)
	if st.ElapsedSeconds != 1 {
		t.Fatalf("ticks stopped after panic: %+v", st)
	}
	if !strings.Contains(buf.String(), "toast service down") || !strings.Contains(buf.String(), "label=launch") {
		t.Fatalf("panic not logged: %q", buf.String())
	}
}

func TestResetCancelsWindowAndRecomputes(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(time.Second)}, WithClock(c), WithOnFinish(func() { finished++ }))

	step(c, e, time.Second)
	if c.Pending() != 1 {
		t.Fatalf("expected one pending window timer, got %d", c.Pending())
	}

	// New target already started: no crossing, no window.
	e.Reset(Target{Start: epoch.Add(-time.Minute)})
	if c.Pending() != 0 {
		t.Fatalf("reset left %d timers armed", c.Pending())
	}
	if st := e.State(); st.JustFinished || !st.IsExpired {
		t.Fatalf("state after reset = %+v", st)
	}
	step(c, e, time.Second)
	if finished != 1 {
		t.Fatalf("reset to a past target fired onFinish: %d", finished)
	}

	// A future target crosses again.
	e.Reset(Target{Start: c.Now().Add(2 * time.Second)})
	if st := e.State(); st.IsExpired || st.Seconds != 2 {
		t.Fatalf("state after reset to future = %+v", st)
	}
	step(c, e, time.Second)
	st := step(c, e, time.Second)
	if finished != 2 || !st.JustFinished {
		t.Fatalf("second crossing: finished=%d state=%+v", finished, st)
	}
}

func TestInvalidTargetNeverFinishes(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{}, WithClock(c), WithOnFinish(func() { finished++ }))

	for i := 0; i < 5; i++ {
		st := step(c, e, time.Second)
		if !st.Invalid || st.IsExpired || st.Seconds != 0 {
			t.Fatalf("invalid target state = %+v", st)
		}
	}
	if finished != 0 {
		t.Fatal("invalid target fired onFinish")
	}
}

func TestCloseMakesTicksNoOps(t *testing.T) {
	c := clock.NewFake(epoch)
	finished := 0
	e := New(Target{Start: epoch.Add(time.Second)}, WithClock(c), WithOnFinish(func() { finished++ }))

	e.Close()
	e.Close()
	step(c, e, 5*time.Second)
	if finished != 0 {
		t.Fatal("closed engine fired onFinish")
	}
	e.Reset(Target{Start: c.Now().Add(time.Second)})
	if !e.Target().Start.Equal(epoch.Add(time.Second)) {
		t.Fatal("Reset after Close changed the target")
	}
}

func TestRunTicksAndTearsDownTimers(t *testing.T) {
	c := clock.NewFake(epoch)
	ticks := make(chan State, 16)
	e := New(Target{Start: epoch.Add(2 * time.Second)},
		WithClock(c),
		WithOnTick(func(s State) { ticks <- s }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitFor(t, func() bool { return c.Pending() == 1 })

	next := func() State {
		c.Advance(time.Second)
		select {
		case s := <-ticks:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no tick delivered")
			return State{}
		}
	}

	if st := next(); st.Seconds != 1 {
		t.Fatalf("first tick = %+v", st)
	}
	if st := next(); !st.JustFinished {
		t.Fatalf("second tick should cross: %+v", st)
	}
	if c.Pending() != 2 {
		t.Fatalf("want ticker and window timer armed, got %d", c.Pending())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.Pending() != 0 {
		t.Fatalf("%d timers still armed after teardown", c.Pending())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
