package model

import (
	"encoding/json"
	"time"
)

// Event is a single concrete event instance as shown on the board: either a
// local event or one occurrence of a feed event after recurrence expansion.
type Event struct {
	ID       string `json:"id,omitempty"` // local store ID; empty for feed events
	SourceID string `json:"source_id"`    // feed ID from config, or "local"
	UID      string `json:"uid"`          // iCalendar UID (or local ID)

	// InstanceKey uniquely identifies this occurrence across all sources.
	// The board keys its countdown engines by it.
	InstanceKey string `json:"instance_key"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	// Start / End are in the configured display timezone. A zero End means
	// the event has no end time.
	Start time.Time `json:"start"`
	End   time.Time `json:"-"`
}

// MarshalJSON writes End as "end", omitted when the event has no end.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		End *time.Time `json:"end,omitempty"`
	}{plain: plain(e)}
	if e.HasEnd() {
		out.End = &e.End
	}
	return json.Marshal(out)
}

// HasEnd reports whether the event carries an end time.
func (e Event) HasEnd() bool {
	return !e.End.IsZero()
}

// EffectiveEnd is End when set, otherwise Start.
func (e Event) EffectiveEnd() time.Time {
	if e.End.IsZero() {
		return e.Start
	}
	return e.End
}

// LocalSourceID marks events that came from the local store.
const LocalSourceID = "local"
