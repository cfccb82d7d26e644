package cache

import (
	"time"

	"bitcli.local/internal/app/shortlink"
	"github.com/dgraph-io/ristretto"
)

const localTTL = 10 * time.Minute

// LocalCache 是进程内的 L1，挡在 sqlite/redis 前面；同一次运行里重复出现的 URL 不会再访问后端。
type LocalCache struct {
	cache *ristretto.Cache
}

// NewLocalCache maxItems 同时决定计数器数量和容量（每条 cost=1）
func NewLocalCache(maxItems int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: c}, nil
}

func (l *LocalCache) Get(req shortlink.ShortenRequest) (shortlink.Bitlink, bool) {
	v, ok := l.cache.Get(req.Key())
	if !ok {
		return shortlink.Bitlink{}, false
	}
	link, ok := v.(shortlink.Bitlink)
	return link, ok
}

// Set 是异步的，Wait 之后才保证可见。写入可能被 ristretto 的准入策略丢弃，这只会多一次后端查询。
func (l *LocalCache) Set(req shortlink.ShortenRequest, link shortlink.Bitlink) {
	l.cache.SetWithTTL(req.Key(), link, 1, localTTL)
}

func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
