// Package daybucket maps message timestamps onto calendar-day labels used
// for day-divider rows in a rendered conversation. All bucketing happens in
// the server-local zone so two clients in different zones agree on where
// the dividers fall.
package daybucket

import (
	"fmt"
	"time"

	"art-chat/internal/message"
)

// Day identifies one calendar day in the server-local zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// Of buckets an instant into its server-local calendar day.
func Of(ts time.Time) Day {
	local := ts.In(message.Zone)
	y, m, d := local.Date()
	return Day{Year: y, Month: m, Day: d}
}

// OfWire buckets a raw wire timestamp string; unparseable input buckets to
// the current day rather than failing.
func OfWire(raw string) Day {
	return Of(message.ParseWire(raw))
}

// Label renders the day relative to now: "Today", "Yesterday", or
// DD/MM/YYYY for anything older or in the future.
func Label(ts time.Time) string {
	return labelAt(ts, time.Now())
}

func labelAt(ts, now time.Time) string {
	day := Of(ts)
	today := Of(now)
	if day == today {
		return "Today"
	}
	if day == Of(now.In(message.Zone).AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	return fmt.Sprintf("%02d/%02d/%04d", day.Day, int(day.Month), day.Year)
}
