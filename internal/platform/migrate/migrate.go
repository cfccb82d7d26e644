package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

type Options struct {
	// FS 里存放 *.sql 文件，按文件名顺序执行
	FS  fs.FS
	Dir string
}

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
}

// Up 执行尚未执行过的迁移文件，并记录到 schema_migrations。
// 迁移文件本身应当用 IF NOT EXISTS 保持幂等，这样旧版本创建的缓存文件也能直接升级。
func Up(ctx context.Context, db *sql.DB, opts Options) (*Result, error) {
	dir := opts.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}

	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}

	entries, err := listSQLFiles(opts.FS, dir)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, name := range entries {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			return nil, err
		}
		if applied {
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		if err := applyFile(ctx, db, opts.FS, dir, name); err != nil {
			return nil, err
		}
		res.AppliedFiles = append(res.AppliedFiles, name)
	}

	return res, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func listSQLFiles(fsys fs.FS, dir string) ([]string, error) {
	dirEntries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	entries := make([]string, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			entries = append(entries, d.Name())
		}
	}
	sort.Strings(entries)
	return entries, nil
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=?)`, version).Scan(&exists)
	return exists, err
}

func applyFile(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, filename string) error {
	sqlBytes, err := fs.ReadFile(fsys, path.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		filename, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record migration %s: %w", filename, err)
	}

	return tx.Commit()
}
