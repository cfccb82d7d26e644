package httpmiddleware

import "net/http"

// Bearer 给每个请求加上 Authorization: Bearer <token>。
// token 为空时不加 header，由远端返回 403。
func Bearer(token string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if token == "" {
				return next.RoundTrip(req)
			}
			// RoundTripper 不允许修改传入的 request
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
			return next.RoundTrip(req)
		})
	}
}
