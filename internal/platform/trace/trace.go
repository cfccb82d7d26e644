package trace

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// InitTrace 安装全局 TracerProvider，失败时返回 nil。
// 进程退出前必须调用返回的 shutdown，否则 batcher 里还没导出的 span 会丢失。
func InitTrace(endpoint string, serviceName string, version string) (shutdown func(context.Context) error) {
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		slog.Error("otlptracegrpc init failed", "endpoint", endpoint, "err", err)
		return nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)
	tp := trace.NewTracerProvider(trace.WithBatcher(exporter), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	// Bitly 请求带上 traceparent，便于和代理/网关的日志对上
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}
