package cache

import (
	"context"
	"log/slog"

	"bitcli.local/internal/app/shortlink"
	"bitcli.local/internal/platform/metrics"
)

// Backend 是持久化缓存后端（sqlite 或 redis）。
//
// Insert 必须是 insert-if-absent：key 已存在时返回 false 且不覆盖。
type Backend interface {
	Name() string
	Get(ctx context.Context, req shortlink.ShortenRequest) (shortlink.Bitlink, bool, error)
	Insert(ctx context.Context, req shortlink.ShortenRequest, link shortlink.Bitlink) (bool, error)
	Close() error
}

// keyScanner 由能列出全部 key 的后端实现，用来预热布隆过滤器。
type keyScanner interface {
	Keys(ctx context.Context, fn func(shortlink.ShortenRequest)) error
}

// Store 是 cache-aside 存储：L1 本地缓存 -> 布隆过滤器 -> 持久化后端。
//
// 所有后端错误都只记录日志和指标，对调用方表现为未命中/未写入。
type Store struct {
	backend Backend
	local   *LocalCache // L1 本地缓存，可为 nil
	bloom   *BloomFilter
}

type Options struct {
	// LocalItems <= 0 时不启用 L1
	LocalItems int64
	// BloomItems 为 0 时不启用布隆过滤器；只对能列出 key 的后端生效
	BloomItems uint
}

func DefaultOptions() Options {
	return Options{
		LocalItems: 10_000,
		BloomItems: 1_000_000,
	}
}

func NewStore(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	s := &Store{backend: backend}

	if opts.LocalItems > 0 {
		local, err := NewLocalCache(opts.LocalItems)
		if err != nil {
			return nil, err
		}
		s.local = local
	}

	if scanner, ok := backend.(keyScanner); ok && opts.BloomItems > 0 {
		bf := NewBloomFilter(opts.BloomItems, 0.01)
		if err := bf.Preload(ctx, scanner); err != nil {
			slog.Warn("cache: preload bloom filter failed, disabled", "backend", backend.Name(), "err", err)
		} else {
			s.bloom = bf
			slog.Debug("cache: bloom filter loaded", "backend", backend.Name(), "keys", bf.Count())
		}
	}

	return s, nil
}

// Get 精确查找 (group_guid, domain, long_url)。
func (s *Store) Get(ctx context.Context, req shortlink.ShortenRequest) (shortlink.Bitlink, bool) {
	// L1: 本地缓存
	if s.local != nil {
		if link, ok := s.local.Get(req); ok {
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return link, true
		}
	}

	if s.bloom != nil && !s.bloom.MightContain(req) {
		metrics.CacheOperations.WithLabelValues("bloom", "miss").Inc()
		return shortlink.Bitlink{}, false
	}

	// L2: 持久化后端
	layer := s.backend.Name()
	link, ok, err := s.backend.Get(ctx, req)
	if err != nil {
		slog.Warn("cache: get failed", "backend", layer, "long_url", req.LongURL, "err", err)
		metrics.CacheOperations.WithLabelValues(layer, "error").Inc()
		return shortlink.Bitlink{}, false
	}
	if !ok {
		metrics.CacheOperations.WithLabelValues(layer, "miss").Inc()
		return shortlink.Bitlink{}, false
	}
	metrics.CacheOperations.WithLabelValues(layer, "hit").Inc()

	// 回填本地缓存
	if s.local != nil {
		s.local.Set(req, link)
	}
	return link, true
}

// Set 写入一条缓存，返回是否真的插入。并发写同一个 key 时只有一个会成功，其余返回 false。
func (s *Store) Set(ctx context.Context, req shortlink.ShortenRequest, link shortlink.Bitlink) bool {
	layer := s.backend.Name()
	inserted, err := s.backend.Insert(ctx, req, link)
	if err != nil {
		slog.Warn("cache: set failed", "backend", layer, "long_url", req.LongURL, "err", err)
		metrics.CacheOperations.WithLabelValues(layer, "error").Inc()
		return false
	}
	// 后端里存的 long_url 是请求里的，L1 保持一致
	link.LongURL = req.LongURL

	if !inserted {
		metrics.CacheOperations.WithLabelValues(layer, "conflict").Inc()
		// key 已经在后端里，布隆过滤器必须知道它，否则之后的 Get 会被误判为未命中
		if s.bloom != nil {
			s.bloom.Add(req)
		}
		if s.local != nil {
			if winner, ok, err := s.backend.Get(ctx, req); err == nil && ok {
				s.local.Set(req, winner)
			}
		}
		return false
	}
	metrics.CacheOperations.WithLabelValues(layer, "insert").Inc()

	if s.bloom != nil {
		s.bloom.Add(req)
	}
	if s.local != nil {
		s.local.Set(req, link)
	}
	return true
}

// Close 关闭本地缓存和后端
func (s *Store) Close() {
	if s.local != nil {
		s.local.Close()
	}
	if err := s.backend.Close(); err != nil {
		slog.Warn("cache: close failed", "backend", s.backend.Name(), "err", err)
	}
}
