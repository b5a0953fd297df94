// internal/logging/testing.go
package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries are kept in memory for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger records every entry down to TraceLevel.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// Reset drops the recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails unless an entry at level mentions msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("no %v entry containing %q; got %d entries", level, msgContains, t.observed.Len())
}

// AssertField fails unless an entry with message msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key != key {
				continue
			}
			if field.Type == zapcore.StringType && field.String == expected {
				return
			}
			if reflect.DeepEqual(field.Interface, expected) {
				return
			}
		}
	}
	tb.Errorf("entry %q has no field %s=%v", msg, key, expected)
}

var (
	credentialKeys = []string{"password", "token", "authorization"}
	bearerPattern  = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
)

// AssertNoSecrets fails when a password, API token or bearer header made
// it into a message or a string field unredacted.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if bearerPattern.MatchString(entry.Message) {
			tb.Errorf("bearer credential in message %q", entry.Message)
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			if bearerPattern.MatchString(field.String) {
				tb.Errorf("bearer credential in field %q", field.Key)
			}
			key := strings.ToLower(field.Key)
			for _, c := range credentialKeys {
				if strings.Contains(key, c) && field.String != "" && !strings.HasPrefix(field.String, "[REDACTED") {
					tb.Errorf("field %q logged in clear: %q", field.Key, field.String)
				}
			}
		}
	}
}

// AssertRequestID checks the request.id attached by the API client.
func (t *TestLogger) AssertRequestID(tb testing.TB, msg, requestID string) {
	tb.Helper()
	t.AssertField(tb, msg, "request.id", requestID)
}

// AssertTraceCorrelation fails unless entry msg carries a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		for _, field := range entry.Context {
			if field.Key == "trace_id" {
				return
			}
		}
	}
	tb.Errorf("entry %q has no trace_id", msg)
}
