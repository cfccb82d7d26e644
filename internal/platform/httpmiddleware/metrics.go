package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"bitcli.local/internal/platform/metrics"
)

// Metrics 记录每个远端请求的状态码和耗时。
func Metrics() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			op := OpFromContext(req.Context())
			start := time.Now()
			resp, err := next.RoundTrip(req)
			metrics.RemoteRequestDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.RemoteRequestsTotal.WithLabelValues(op, "error").Inc()
				return nil, err
			}
			metrics.RemoteRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
			return resp, nil
		})
	}
}
