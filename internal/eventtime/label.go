package eventtime

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeLabel renders t relative to now, e.g. "3 hours from now" or
// "2 days ago".
func RelativeLabel(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Clock renders a countdown decomposition as "2d 03:04:05", dropping the
// day part when it is zero.
func Clock(days, hours, minutes, seconds int) string {
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
