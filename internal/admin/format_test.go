package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{-5, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1234567, "1.18 MB"},
		{3 << 30, "3 GB"},
		{1 << 42, "4096 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestFormatDocumentDate(t *testing.T) {
	at := time.Date(2025, 3, 14, 21, 5, 0, 0, time.Local)
	assert.Equal(t, "Mar 14, 2025, 09:05 PM", FormatDocumentDate(at))
	assert.Equal(t, "Mar 14, 2025", FormatUserDate(at))
}
