package shortlink

import (
	"context"
	"log/slog"

	"bitcli.local/internal/platform/metrics"
	platformtrace "bitcli.local/internal/platform/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ShortenRequest 是一次缩短请求的规范形式，同时也是缓存的逻辑 key。
//
// - LongURL：规范化后的长链接
// - Domain：为空表示不指定（由远端使用默认域名），缓存层不做默认值填充
// - GroupGUID：短链所属分组
type ShortenRequest struct {
	LongURL   string `json:"long_url"`
	Domain    string `json:"domain,omitempty"`
	GroupGUID string `json:"group_guid"`
}

// Key 返回 (group_guid, domain, long_url) 三元组的字符串形式，用于 L1 缓存、布隆过滤器和 redis。
func (r ShortenRequest) Key() string {
	return r.GroupGUID + "\x1f" + r.Domain + "\x1f" + r.LongURL
}

// Bitlink 是远端或缓存返回的短链记录，按值传递。
type Bitlink struct {
	Link    string `json:"link"`
	ID      string `json:"id"`
	LongURL string `json:"long_url"`
}

func (b Bitlink) String() string {
	return b.Link
}

// UserInfo 只在解析分组时临时获取，不缓存。
type UserInfo struct {
	IsActive         bool   `json:"is_active"`
	DefaultGroupGUID string `json:"default_group_guid"`
}

// Remote 表示远端短链服务的两个调用。
type Remote interface {
	FetchUser(ctx context.Context) (UserInfo, error)
	CreateShortlink(ctx context.Context, req ShortenRequest) (Bitlink, error)
}

// Cache 表示 cache-aside 存储。
//
// 实现必须自行保证并发安全；Get/Set 不返回错误，存储层故障按未命中/未写入处理。
type Cache interface {
	Get(ctx context.Context, req ShortenRequest) (Bitlink, bool)
	Set(ctx context.Context, req ShortenRequest, link Bitlink) bool
}

type ServiceOptions struct {
	// Cache 为 nil 表示本次运行禁用缓存
	Cache     Cache
	Domain    string
	GroupGUID string
}

// Service 执行单个 URL 的缩短流程。创建后只读，可被任意多个 goroutine 共享。
type Service struct {
	remote    Remote
	cache     Cache
	domain    string
	groupGUID string
}

func NewService(remote Remote, opts ServiceOptions) *Service {
	return &Service{
		remote:    remote,
		cache:     opts.Cache,
		domain:    opts.Domain,
		groupGUID: opts.GroupGUID,
	}
}

var tracer = otel.Tracer("bitcli.local/internal/app/shortlink")

// Shorten 把一个长链接变成 Bitlink：查缓存 -> 解析分组 -> 调远端 -> 回写缓存。
//
// 未配置分组时缓存 key 不完整，所以先解析分组再查缓存。
func (s *Service) Shorten(ctx context.Context, longURL string) (Bitlink, error) {
	ctx, span := tracer.Start(ctx, "shortlink.Shorten")
	defer span.End()
	span.SetAttributes(attribute.String(platformtrace.BitlyLongURL, longURL))

	req := ShortenRequest{
		LongURL:   longURL,
		Domain:    s.domain,
		GroupGUID: s.groupGUID,
	}

	if req.GroupGUID == "" {
		guid, err := ResolveGroup(ctx, s.remote, s.groupGUID)
		if err != nil {
			return s.fail(span, err)
		}
		req.GroupGUID = guid
	}
	if link, ok := s.lookup(ctx, req); ok {
		span.SetAttributes(attribute.Bool(platformtrace.BitlyCacheHit, true))
		return link, nil
	}
	span.SetAttributes(
		attribute.String(platformtrace.BitlyGroupGUID, req.GroupGUID),
		attribute.String(platformtrace.BitlyDomain, req.Domain),
	)

	link, err := s.remote.CreateShortlink(ctx, req)
	if err != nil {
		return s.fail(span, err)
	}
	if link.LongURL == "" {
		link.LongURL = req.LongURL
	}

	// 写缓存失败或者并发写入落败都不影响本次结果
	if s.cache != nil {
		if !s.cache.Set(ctx, req, link) {
			slog.Debug("shorten: cache entry not written", "long_url", req.LongURL, "id", link.ID)
		}
	}

	metrics.ShortenResultsTotal.WithLabelValues("remote").Inc()
	return link, nil
}

func (s *Service) lookup(ctx context.Context, req ShortenRequest) (Bitlink, bool) {
	if s.cache == nil {
		return Bitlink{}, false
	}
	link, ok := s.cache.Get(ctx, req)
	if ok {
		metrics.ShortenResultsTotal.WithLabelValues("cached").Inc()
	}
	return link, ok
}

func (s *Service) fail(span trace.Span, err error) (Bitlink, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.ShortenResultsTotal.WithLabelValues(Kind(err)).Inc()
	return Bitlink{}, err
}
