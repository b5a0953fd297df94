// internal/logging/output.go
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newOutputCore builds the redacting, sampled core for every enabled output.
// The returned closer releases the rotating file, if any.
func newOutputCore(cfg *Config) (zapcore.Core, func() error, error) {
	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	if err != nil {
		return nil, nil, err
	}

	var (
		cores  []zapcore.Core
		closer func() error
	)

	if cfg.Output.File.Path != "" {
		rotator, err := newRotatingFile(cfg.Output.File)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), cfg.Level))
		closer = rotator.Close
	}

	if cfg.Output.Stderr {
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.Lock(os.Stderr), cfg.Level))
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), closer, nil
}

// newRotatingFile prepares the log directory and returns a lumberjack writer.
func newRotatingFile(fc FileConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(fc.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}, nil
}
