package chat

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatThreadDate renders the last activity of a thread relative to
// now. Same-day and future times read "Today".
func FormatThreadDate(t, now time.Time) string {
	days := int(math.Floor(now.Sub(t).Hours() / 24))
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return humanize.Comma(int64(days)) + " days ago"
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

// FormatMessageCount renders "N messages".
func FormatMessageCount(n int) string {
	return humanize.Comma(int64(n)) + " messages"
}
