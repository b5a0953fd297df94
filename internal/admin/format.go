package admin

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count in 1024-based units with at most
// two decimals, e.g. "0 Bytes", "1.5 KB", "2 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	return humanize.FtoaWithDigits(v, 2) + " " + sizeUnits[i]
}

// FormatDocumentDate renders an upload time, e.g. "Mar 14, 2025, 09:30 AM".
func FormatDocumentDate(t time.Time) string {
	return t.Local().Format("Jan 2, 2006, 03:04 PM")
}

// FormatUserDate renders an account creation date.
func FormatUserDate(t time.Time) string {
	return t.Local().Format("Jan 2, 2006")
}
