package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsCreatorLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "api"),
		attribute.String("creator_key", "alice"),
		attribute.Int("tier", 2),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("source"))
	assert.Contains(t, keys, attribute.Key("tier"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, "api", "ok", false)
	m.RecordBonusPaid(ctx, 1)
	m.RecordRateLimitDenied(ctx, "/api/reward-runs", "exhausted")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordRun(context.Background(), "cli", "ok", true)
	m.RecordCoercions(context.Background(), "diamonds", 3)
	m.RecordRewardAmount(context.Background(), "creators", 1200)
}

func TestConfigServiceName(t *testing.T) {
	assert.Equal(t, "creatorpay", Config{}.serviceName())
	assert.Equal(t, "rewards", Config{ServiceName: " rewards "}.serviceName())
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("kafka", "")
	assert.Error(t, err)
}
