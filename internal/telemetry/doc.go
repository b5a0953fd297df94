// Package telemetry provides OpenTelemetry instrumentation for the aicacia client.
//
// # Overview
//
// Every backend request made by the API client runs inside one client span
// and updates two instruments:
//
//	aicacia.api.requests_total            counter, by operation and outcome
//	aicacia.api.request_duration_seconds  histogram, by operation
//
// Spans and metrics are exported over OTLP/HTTP to a local collector. Export
// is off unless telemetry.enabled is set.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	client := api.NewClient(cfg.API.BaseURL, tokens, api.WithTelemetry(tel))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  insecure: true
//	  sampling_rate: 1.0
//	  export_interval: "15s"
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	client := api.NewClient(url, tokens, api.WithTelemetry(tt.Telemetry))
//	...
//	tt.AssertSpanExists(t, "aicacia.api.login")
//	assert.EqualValues(t, 1, tt.CounterValue(t, "aicacia.api.requests_total"))
package telemetry
