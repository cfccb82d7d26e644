package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitcli.local/internal/app/shortlink"
	"github.com/redis/go-redis/v9"
)

// insert-if-absent：key 和 id 任意一个已存在就不写，保证和 sqlite 的两个唯一约束语义一致。
const insertLua = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], KEYS[1])
return 1
`

// RedisRepo 是 sqlite 之外的另一种缓存后端（cache_backend: redis），条目不过期。
type RedisRepo struct {
	client *redis.Client
	prefix string
}

type redisEntry struct {
	ID      string `json:"id"`
	Link    string `json:"link"`
	LongURL string `json:"long_url"`
}

// NewRedisRepo 创建 redis 后端。name 作为 key 前缀的一部分，相当于 sqlite 的文件名。
func NewRedisRepo(client *redis.Client, name string) *RedisRepo {
	return &RedisRepo{
		client: client,
		prefix: "bitcli:" + name + ":",
	}
}

func (r *RedisRepo) linkKey(req shortlink.ShortenRequest) string {
	return r.prefix + "shorten:" + req.Key()
}

func (r *RedisRepo) idKey(id string) string {
	return r.prefix + "id:" + id
}

func (r *RedisRepo) Get(ctx context.Context, req shortlink.ShortenRequest) (shortlink.Bitlink, bool, error) {
	rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := r.client.Get(rctx, r.linkKey(req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return shortlink.Bitlink{}, false, nil
	}
	if err != nil {
		return shortlink.Bitlink{}, false, err
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return shortlink.Bitlink{}, false, fmt.Errorf("decode cached entry: %w", err)
	}
	return shortlink.Bitlink{ID: e.ID, Link: e.Link, LongURL: e.LongURL}, true, nil
}

func (r *RedisRepo) Insert(ctx context.Context, req shortlink.ShortenRequest, link shortlink.Bitlink) (bool, error) {
	rctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := json.Marshal(redisEntry{ID: link.ID, Link: link.Link, LongURL: req.LongURL})
	if err != nil {
		return false, err
	}

	res, err := r.client.Eval(rctx, insertLua, []string{r.linkKey(req), r.idKey(link.ID)}, raw).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *RedisRepo) Name() string {
	return "redis"
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}
