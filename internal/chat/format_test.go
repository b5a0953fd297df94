package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatThreadDate(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"earlier today", now.Add(-3 * time.Hour), "Today"},
		{"future", now.Add(48 * time.Hour), "Today"},
		{"just under a day", now.Add(-23 * time.Hour), "Today"},
		{"one day", now.Add(-25 * time.Hour), "Yesterday"},
		{"three days", now.Add(-3 * 24 * time.Hour), "3 days ago"},
		{"six days", now.Add(-6*24*time.Hour - time.Hour), "6 days ago"},
		{"a week", now.Add(-7 * 24 * time.Hour), "Mar 7, 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatThreadDate(tt.at, now))
		})
	}
}

func TestFormatMessageCount(t *testing.T) {
	assert.Equal(t, "2 messages", FormatMessageCount(2))
	assert.Equal(t, "1,200 messages", FormatMessageCount(1200))
}
