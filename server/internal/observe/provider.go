package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig 配置 OTel SDK。
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
}

// InitProvider 初始化带 Prometheus 导出器的 MeterProvider 并注册为全局实例，
// 指标通过 promhttp 的默认 registry 暴露在 /metrics。
// 返回的 shutdown 应在进程退出前调用。
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kairosd"
	}

	res, err := resource.Merge(
		resource.Default(),
		// 不带 schema，避免与 resource.Default 的 schema 版本冲突
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
