// Package logging provides structured logging for the aicacia client.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - File output with rotation (lumberjack), optional stderr output
//   - Automatic context field injection (trace_id, request.id, user.id)
//   - Secret redaction so bearer tokens never reach disk
//   - Level-aware sampling (errors never sampled)
//
// The terminal UI owns stdout, so interactive sessions log to a file only.
// One-shot CLI commands may add stderr output.
//
// # Usage
//
//	cfg, err := logging.ConfigFrom(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "9b2c7f4e-...")
//	logger.Warn(ctx, "request failed", zap.Int("status", 502))
//
// # Secret Redaction
//
// Field names such as "password", "token" and "aicacia-api-token" are
// replaced with [REDACTED] by the encoder. Use RedactedString when a value
// must be mentioned explicitly:
//
//	logger.Debug(ctx, "token stored", logging.RedactedString("token", tok))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
package logging
