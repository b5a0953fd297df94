package api

import (
	"context"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/aicacia/internal/api"

// clientMetrics holds the per-request instruments.
type clientMetrics struct {
	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram
	responseSize  metric.Int64Histogram
}

func newClientMetrics(meter metric.Meter, logger *logging.Logger) *clientMetrics {
	m := &clientMetrics{}
	ctx := context.Background()
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"aicacia.api.requests_total",
		metric.WithDescription("Backend requests labeled by operation and status code (0 when no response arrived)."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = meter.Float64Histogram(
		"aicacia.api.request_duration_seconds",
		metric.WithDescription("Backend request duration in seconds, labeled by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.responseSize, err = meter.Int64Histogram(
		"aicacia.api.response_size_bytes",
		metric.WithDescription("Backend response body size in bytes, labeled by operation."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create response size histogram", zap.Error(err))
	}

	return m
}

func (m *clientMetrics) record(ctx context.Context, op string, status int, elapsed time.Duration, size int) {
	opAttr := attribute.String("op", op)

	if m.requestsTotal != nil {
		m.requestsTotal.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("status", strconv.Itoa(status))))
	}
	if m.requestDur != nil {
		m.requestDur.Record(ctx, elapsed.Seconds(), metric.WithAttributes(opAttr))
	}
	if m.responseSize != nil && size > 0 {
		m.responseSize.Record(ctx, int64(size), metric.WithAttributes(opAttr))
	}
}
