package eventtime

import "time"

// UrgencyLevel drives visual emphasis. It is independent of the countdown
// phase.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyUrgent   UrgencyLevel = "urgent"
	UrgencyWarning  UrgencyLevel = "warning"
	UrgencyNormal   UrgencyLevel = "normal"
)

const (
	secondsPerHour = 60 * 60
	secondsPerDay  = 24 * secondsPerHour
	secondsPerWeek = 7 * secondsPerDay
)

// Urgency classifies seconds remaining until an event. Zero and negative
// values (already started) are critical.
func Urgency(secondsRemaining int64) UrgencyLevel {
	switch {
	case secondsRemaining <= secondsPerHour:
		return UrgencyCritical
	case secondsRemaining <= secondsPerDay:
		return UrgencyUrgent
	case secondsRemaining <= secondsPerWeek:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// UrgencyAt classifies the time left between now and start.
func UrgencyAt(start, now time.Time) UrgencyLevel {
	return Urgency(int64(start.Sub(now) / time.Second))
}
