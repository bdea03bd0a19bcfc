// Package observe 提供演示服务的 OpenTelemetry 指标与 Prometheus 导出。
//
// 组件通过 *Metrics 记录指标；测试使用 NewMetrics + 自定义 MeterProvider，
// 避免相互污染。
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "kairos-demo"

// 回放结果，作为 kairos.playback.runs 的 outcome 属性。
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
)

// Metrics 持有全部指标仪表，可并发使用。
type Metrics struct {
	// PlaybackRuns 按 outcome 统计回放次数。
	PlaybackRuns metric.Int64Counter
	// PlaybackTurns 按 sender 统计已播放的台词。
	PlaybackTurns metric.Int64Counter
	// PlaybackDuration 记录一次回放从开始到结束（或取消）的时长。
	PlaybackDuration metric.Float64Histogram
	// ManualMessages 按 status（accepted/rejected）统计手动输入。
	ManualMessages metric.Int64Counter
	// ActiveSessions 当前存活的对话数。
	ActiveSessions metric.Int64UpDownCounter
	// HTTPRequestDuration 按 method/route/status 记录请求耗时。
	HTTPRequestDuration metric.Float64Histogram
	// CatalogReloads 统计目录热更新成功的次数。
	CatalogReloads metric.Int64Counter
}

// 回放通常持续数秒到一分钟。
var playbackBuckets = []float64{1, 2.5, 5, 10, 20, 30, 60, 120}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PlaybackRuns, err = m.Int64Counter("kairos.playback.runs",
		metric.WithDescription("Scripted playback runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackTurns, err = m.Int64Counter("kairos.playback.turns",
		metric.WithDescription("Script turns played by sender."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("kairos.playback.run.duration",
		metric.WithDescription("Wall time of a playback run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playbackBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ManualMessages, err = m.Int64Counter("kairos.manual.messages",
		metric.WithDescription("Manual input submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("kairos.active_sessions",
		metric.WithDescription("Number of open dialog sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kairos.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.CatalogReloads, err = m.Int64Counter("kairos.catalog.reloads",
		metric.WithDescription("Successful catalog hot reloads."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics 返回基于全局 MeterProvider 的包级实例。
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordRun(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.PlaybackRuns.Add(ctx, 1, attrs)
	m.PlaybackDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) RecordTurn(ctx context.Context, sender string) {
	m.PlaybackTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("sender", sender)))
}

func (m *Metrics) RecordManualMessage(ctx context.Context, status string) {
	m.ManualMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
			attribute.Int("status", status),
		),
	)
}

func (m *Metrics) RecordCatalogReload(ctx context.Context) {
	m.CatalogReloads.Add(ctx, 1)
}
