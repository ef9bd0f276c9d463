package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const migrationTable = "schema_migrations"

// ApplyMigrations 按文件名顺序执行 migrationFS 中的 .sql 文件，每个文件只执行一次
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFS fs.FS, logger *zap.Logger) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		applied, err := applyOne(ctx, pool, file, string(content))
		if err != nil {
			return err
		}
		if applied {
			logger.Info("Migration applied", zap.String("file", file))
		}
	}
	return nil
}

func applyOne(ctx context.Context, pool *pgxpool.Pool, name, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	// 多实例同时启动时串行执行
	if _, err := tx.Exec(ctx, `LOCK TABLE `+migrationTable+` IN EXCLUSIVE MODE`); err != nil {
		return false, fmt.Errorf("lock migration table: %w", err)
	}

	var found int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+migrationTable+` WHERE name = $1`, name).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	if found > 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (name) VALUES ($1)`, name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	return true, nil
}
