package httpmiddleware

import (
	"net/http"

	platformtrace "bitcli.local/internal/platform/trace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 用操作名命名客户端 span，例如 "bitly shorten"，而不是默认的 "HTTP POST"。
func TraceName() otelhttp.Option {
	return otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
		return "bitly " + OpFromContext(req.Context())
	})
}

// Traced 用 otelhttp 包装 transport，span 会挂在调用方的 context 上。
func Traced() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return otelhttp.NewTransport(opAttr(next), TraceName())
	}
}

// opAttr 在 otelhttp 创建的客户端 span 上补充操作名
func opAttr(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		trace.SpanFromContext(req.Context()).SetAttributes(
			attribute.String(platformtrace.BitlyOp, OpFromContext(req.Context())),
		)
		return next.RoundTrip(req)
	})
}
