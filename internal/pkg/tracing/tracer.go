package tracing

import (
	"context"

	"storefront/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown 刷新并关闭 tracer provider。
type Shutdown func(ctx context.Context) error

// InitTracerProvider 初始化全局 TracerProvider。endpoint 为空时只注册传播器, span 不导出。
func InitTracerProvider(serviceName, jaegerEndpoint string, sampleRatio float64) (Shutdown, error) {
	// 设置全局的 TextMapPropagator, 用于在服务间以及 Kafka header 中传递上下文
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if jaegerEndpoint == "" {
		logger.L().Warn().Str("service", serviceName).Msg("jaeger endpoint not configured, spans will not be exported")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if sampleRatio > 0 && sampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	logger.L().Info().Str("endpoint", jaegerEndpoint).Msgf("tracing initialized for service '%s'", serviceName)
	return tp.Shutdown, nil
}
