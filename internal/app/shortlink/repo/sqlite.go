package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bitcli.local/internal/app/shortlink"
	"bitcli.local/internal/platform/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepo 把缓存条目存到单个 sqlite 文件里（表 shorten）。
//
// 只有一个连接，所有读写在 database/sql 的连接池里串行化，调用方不需要加锁。
type SQLiteRepo struct {
	db   *sql.DB
	path string
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		slog.Debug("sqlite: set busy_timeout failed", "err", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		slog.Debug("sqlite: set journal_mode=WAL failed", "err", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := migrate.Up(migrateCtx, db, migrate.Options{FS: migrationsFS, Dir: "migrations"})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	if len(res.AppliedFiles) > 0 {
		slog.Debug("sqlite: schema migrated", "path", path, "applied", res.AppliedFiles)
	}

	return &SQLiteRepo{db: db, path: path}, nil
}

func (r *SQLiteRepo) Path() string {
	return r.path
}

// Get 按 (group_guid, domain, long_url) 精确查找。domain 为 NULL 时用 IS 比较。
func (r *SQLiteRepo) Get(ctx context.Context, req shortlink.ShortenRequest) (shortlink.Bitlink, bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var link shortlink.Bitlink
	err := r.db.QueryRowContext(dbctx, `
		SELECT id, link, long_url
		FROM shorten
		WHERE group_guid = ? AND domain IS ? AND long_url = ?`,
		req.GroupGUID, nullable(req.Domain), req.LongURL,
	).Scan(&link.ID, &link.Link, &link.LongURL)
	if errors.Is(err, sql.ErrNoRows) {
		return shortlink.Bitlink{}, false, nil
	}
	if err != nil {
		return shortlink.Bitlink{}, false, err
	}
	return link, true, nil
}

// Insert 只在 key 和 id 都不存在时插入，返回是否真的写入。
//
// 唯一索引对 NULL domain 不生效，所以额外用 NOT EXISTS 判断；单连接下这条语句是原子的。
func (r *SQLiteRepo) Insert(ctx context.Context, req shortlink.ShortenRequest, link shortlink.Bitlink) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	domain := nullable(req.Domain)
	res, err := r.db.ExecContext(dbctx, `
		INSERT OR IGNORE INTO shorten (id, link, long_url, domain, group_guid)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM shorten WHERE group_guid = ? AND domain IS ? AND long_url = ?
		)`,
		link.ID, link.Link, req.LongURL, domain, req.GroupGUID,
		req.GroupGUID, domain, req.LongURL,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Keys 遍历所有已缓存的 key，用于预热布隆过滤器。
func (r *SQLiteRepo) Keys(ctx context.Context, fn func(shortlink.ShortenRequest)) error {
	rows, err := r.db.QueryContext(ctx, `SELECT group_guid, COALESCE(domain, ''), long_url FROM shorten`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var req shortlink.ShortenRequest
		if err := rows.Scan(&req.GroupGUID, &req.Domain, &req.LongURL); err != nil {
			return err
		}
		fn(req)
	}
	return rows.Err()
}

func (r *SQLiteRepo) Name() string {
	return "sqlite"
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
