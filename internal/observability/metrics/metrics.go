package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTLP counters of the reward engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runs             metric.Int64Counter
	coercions        metric.Int64Counter
	bonusesPaid      metric.Int64Counter
	rewardAmount     metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

type counterSpec struct {
	dst  *metric.Int64Counter
	name string
	desc string
	unit string
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.serviceName())
	m := &Metrics{}
	specs := []counterSpec{
		{&m.runs, "creatorpay_reward_runs_total", "Reward runs by source and outcome.", "{run}"},
		{&m.coercions, "creatorpay_record_coercions_total", "Input values replaced while normalizing records.", "{value}"},
		{&m.bonusesPaid, "creatorpay_bonuses_paid_total", "Beginner bonuses paid by milestone tier.", "{bonus}"},
		{&m.rewardAmount, "creatorpay_reward_amount_total", "Rewards computed per table, in diamonds.", "{diamond}"},
		{&m.rateLimitAllowed, "creatorpay_rate_limit_allowed_total", "Run submissions let through the limiter.", "{request}"},
		{&m.rateLimitDenied, "creatorpay_rate_limit_denied_total", "Run submissions rejected by the limiter.", "{request}"},
	}
	for _, s := range specs {
		c, err := meter.Int64Counter(s.name, metric.WithDescription(s.desc), metric.WithUnit(s.unit))
		if err != nil {
			return nil, err
		}
		*s.dst = c
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(ctx context.Context, source, outcome string, dryRun bool) {
	if m == nil {
		return
	}
	m.add(ctx, m.runs, 1, label("source", source), label("outcome", outcome), attribute.Bool("dry_run", dryRun))
}

func (m *Metrics) RecordCoercions(ctx context.Context, field string, count int) {
	if m == nil {
		return
	}
	m.add(ctx, m.coercions, int64(count), label("field", field))
}

func (m *Metrics) RecordBonusPaid(ctx context.Context, tier int) {
	if m == nil || tier <= 0 {
		return
	}
	m.add(ctx, m.bonusesPaid, 1, attribute.Int("tier", tier))
}

// RecordRewardAmount adds a table total. table is creators, agents or managers.
func (m *Metrics) RecordRewardAmount(ctx context.Context, table string, amount int64) {
	if m == nil {
		return
	}
	m.add(ctx, m.rewardAmount, amount, label("table", table))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitAllowed, 1, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimitDenied, 1, label("endpoint", endpoint), label("reason", reason))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// Only these keys may become metric labels. Creator, agent and group names
// never do.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":      {},
	"outcome":     {},
	"dry_run":     {},
	"field":       {},
	"tier":        {},
	"table":       {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
