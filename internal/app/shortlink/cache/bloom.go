package cache

import (
	"context"
	"sync"

	"bitcli.local/internal/app/shortlink"
	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录持久化后端里已有的 (group_guid, domain, long_url)。
// 没见过的 URL 可以直接判定未命中，不必查询 sqlite。
type BloomFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomFilter expectedItems 是预计的缓存条目数，fpRate 是可接受的误判率（0.01 即 1%）
func NewBloomFilter(expectedItems uint, fpRate float64) *BloomFilter {
	return &BloomFilter{filter: bloom.NewWithEstimates(expectedItems, fpRate)}
}

// Preload 从能列出全部 key 的后端装载过滤器
func (b *BloomFilter) Preload(ctx context.Context, scanner keyScanner) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return scanner.Keys(ctx, func(req shortlink.ShortenRequest) {
		b.filter.AddString(req.Key())
	})
}

func (b *BloomFilter) Add(req shortlink.ShortenRequest) {
	b.mu.Lock()
	b.filter.AddString(req.Key())
	b.mu.Unlock()
}

// MightContain 为 false 时 req 一定没有缓存
func (b *BloomFilter) MightContain(req shortlink.ShortenRequest) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(req.Key())
}

// Count 估算已装入的 key 数量
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
