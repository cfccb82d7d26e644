package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"bitcli.local/internal/app/shortlink"
	"github.com/redis/go-redis/v9"
)

// 需要本地 redis：REDIS_ADDR 默认 localhost:6379，连不上就跳过
func newTestRedis(t *testing.T) *RedisRepo {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	name := "test-" + time.Now().Format("150405.000000000")
	r := NewRedisRepo(client, name)
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), r.prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})
	return r
}

func TestRedis_InsertIfAbsent(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	req := shortlink.ShortenRequest{LongURL: "https://example.com/r", GroupGUID: "Bg"}
	if _, ok, err := r.Get(ctx, req); err != nil || ok {
		t.Fatalf("Get on empty: got (%v, %v), want miss", ok, err)
	}

	link := shortlink.Bitlink{Link: "https://bit.ly/r", ID: "bit.ly/r", LongURL: req.LongURL}
	if ok, err := r.Insert(ctx, req, link); err != nil || !ok {
		t.Fatalf("first Insert: got (%v, %v)", ok, err)
	}
	if ok, err := r.Insert(ctx, req, shortlink.Bitlink{Link: "https://bit.ly/s", ID: "bit.ly/s"}); err != nil || ok {
		t.Fatalf("second Insert: got (%v, %v), want (false, nil)", ok, err)
	}

	got, ok, err := r.Get(ctx, req)
	if err != nil || !ok || got != link {
		t.Fatalf("Get: got (%+v, %v, %v), want %+v", got, ok, err, link)
	}
}
