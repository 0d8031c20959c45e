package countdown

import "time"

// Phase is the urgency stage of a countdown approaching its start.
type Phase string

const (
	PhaseNormal       Phase = "normal"
	PhaseFinalMinute  Phase = "finalMinute"
	PhaseFinalTen     Phase = "finalTen"
	PhaseJustFinished Phase = "justFinished"
)

// Phase thresholds, in whole seconds remaining.
const (
	finalMinuteSeconds = 60
	finalTenSeconds    = 10
)

// State is the countdown as of one instant. Days..Seconds decompose the
// time remaining before start, the time elapsed since start while the event
// runs, or the time since the event ended.
type State struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`

	IsExpired             bool  `json:"is_expired"`
	TotalSecondsRemaining int64 `json:"total_seconds_remaining"`
	Phase                 Phase `json:"phase"`
	JustFinished          bool  `json:"just_finished"`
	IsRunning             bool  `json:"is_running"`
	ElapsedSeconds        int64 `json:"elapsed_seconds"`

	// Invalid is set when the target has no usable start time. Every other
	// field is then zero.
	Invalid bool `json:"invalid,omitempty"`
}

// Started reports whether now is at or after the target start.
func started(t Target, now time.Time) bool {
	return t.Valid() && !now.Before(t.Start)
}

// Compute derives the non-transient countdown state for t at now. It never
// sets JustFinished; that flag belongs to an Engine.
func Compute(t Target, now time.Time) State {
	if !t.Valid() {
		return State{Phase: PhaseNormal, Invalid: true}
	}

	if now.Before(t.Start) {
		remaining := wholeSeconds(t.Start.Sub(now))
		st := State{
			TotalSecondsRemaining: remaining,
			Phase:                 phaseFor(remaining),
		}
		st.Days, st.Hours, st.Minutes, st.Seconds = decompose(remaining)
		return st
	}

	st := State{IsExpired: true, Phase: PhaseNormal}
	var since int64
	switch {
	case t.HasEnd() && now.Before(t.End):
		st.IsRunning = true
		since = wholeSeconds(now.Sub(t.Start))
	case t.HasEnd():
		since = wholeSeconds(now.Sub(t.End))
	default:
		since = wholeSeconds(now.Sub(t.Start))
	}
	st.ElapsedSeconds = since
	st.Days, st.Hours, st.Minutes, st.Seconds = decompose(since)
	return st
}

func phaseFor(remaining int64) Phase {
	switch {
	case remaining > finalMinuteSeconds:
		return PhaseNormal
	case remaining > finalTenSeconds:
		return PhaseFinalMinute
	default:
		return PhaseFinalTen
	}
}

// wholeSeconds floors d to whole seconds, clamped at zero.
func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

func decompose(total int64) (days, hours, minutes, seconds int) {
	if total < 0 {
		total = 0
	}
	days = int(total / 86400)
	hours = int(total % 86400 / 3600)
	minutes = int(total % 3600 / 60)
	seconds = int(total % 60)
	return days, hours, minutes, seconds
}
