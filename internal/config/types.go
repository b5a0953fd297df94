// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a config value such as the request timeout or the thread
// refresh delay, written "30s" in config.yaml or an AICACIA_* variable.
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are
// rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText writes the value back as a duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON encodes "500ms" rather than a count of nanoseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration converts for use with the api and chat options.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
