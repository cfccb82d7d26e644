package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bitcli.local/internal/app/shortlink/repo"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultName 是缓存文件名（不含扩展名）
	DefaultName = "links"

	appDir = "bitcli"
)

// ResolveDir 决定缓存目录：
//  1. dir 不为 nil：原样使用；空字符串表示禁用缓存
//  2. 否则使用平台缓存目录，例如 $XDG_CACHE_HOME/bitcli 或 ~/.cache/bitcli
//
// 第二个返回值为 false 表示禁用缓存。
func ResolveDir(dir *string) (string, bool) {
	if dir != nil {
		if *dir == "" {
			return "", false
		}
		return *dir, true
	}

	base, err := os.UserCacheDir()
	if err != nil {
		slog.Warn("cache: cannot determine user cache dir, caching disabled", "err", err)
		return "", false
	}
	return filepath.Join(base, appDir), true
}

// Open 打开 sqlite 缓存 <dir>/<name>.db。
//
// 返回 nil 表示本次运行不使用缓存：目录为空、目录创建失败、路径不是目录、数据库打不开。
// 这些情况只记录警告，不会让整次运行失败。
func Open(ctx context.Context, name string, dir *string, opts Options) *Store {
	cacheDir, ok := ResolveDir(dir)
	if !ok {
		return nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		slog.Warn("cache: create cache dir failed, caching disabled", "dir", cacheDir, "err", err)
		return nil
	}
	if st, err := os.Stat(cacheDir); err != nil || !st.IsDir() {
		slog.Warn("cache: cache_dir must be a directory, caching disabled", "dir", cacheDir)
		return nil
	}

	path := filepath.Join(cacheDir, name+".db")
	backend, err := repo.OpenSQLite(ctx, path)
	if err != nil {
		slog.Warn("cache: open failed, caching disabled", "path", path, "err", err)
		return nil
	}
	slog.Debug("cache: using sqlite cache", "path", backend.Path())

	store, err := NewStore(ctx, backend, opts)
	if err != nil {
		slog.Warn("cache: init failed, caching disabled", "path", path, "err", err)
		backend.Close()
		return nil
	}
	return store
}

// OpenRedis 使用 redis 作为缓存后端。redis 不可达时返回 nil（禁用缓存）。
func OpenRedis(ctx context.Context, name string, ropts *redis.Options, opts Options) *Store {
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, caching disabled", "addr", ropts.Addr, "err", err)
		client.Close()
		return nil
	}

	store, err := NewStore(ctx, repo.NewRedisRepo(client, name), opts)
	if err != nil {
		slog.Warn("cache: init failed, caching disabled", "addr", ropts.Addr, "err", err)
		client.Close()
		return nil
	}
	return store
}
