package httpmiddleware

import (
	"context"
	"net/http"
)

// Middleware 包装一个 http.RoundTripper（客户端侧中间件）。
type Middleware func(http.RoundTripper) http.RoundTripper

type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain 按顺序套上中间件：第一个最外层。base 为 nil 时使用 http.DefaultTransport。
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

type opKey struct{}

// WithOp 在 context 上标记当前远端操作名，供指标和 span 命名使用。
func WithOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

func OpFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(opKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
