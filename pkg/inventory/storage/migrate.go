package storage

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migrations holds the bundled schema files
// 同梱のスキーマファイル
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsFS returns the bundled migrations rooted at their directory
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(Migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// MigrationResult reports one applied or skipped file
type MigrationResult struct {
	Filename string
	Checksum string
	Skipped  bool
}

// Migrate applies every *.sql file in fsys not yet recorded in schema_migrations.
// Each file runs in its own transaction. A recorded file whose checksum changed is an error.
// 未実行のマイグレーションを適用する
func Migrate(ctx context.Context, db *sqlx.DB, fsys fs.FS, logger *zap.Logger) ([]MigrationResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) NOT NULL UNIQUE,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checksum VARCHAR(64) NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("マイグレーション履歴テーブル作成エラー: %w", err)
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("マイグレーションファイル検索エラー: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		logger.Warn("マイグレーションファイルが見つかりません")
		return nil, nil
	}

	var applied []struct {
		Filename string `db:"filename"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &applied, `SELECT filename, checksum FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("実行済みマイグレーション取得エラー: %w", err)
	}
	executed := make(map[string]string, len(applied))
	for _, a := range applied {
		executed[a.Filename] = a.Checksum
	}

	results := make([]MigrationResult, 0, len(files))
	for _, file := range files {
		filename := path.Base(file)
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return results, fmt.Errorf("ファイル読み込みエラー %s: %w", filename, err)
		}
		checksum := Checksum(content)

		if prev, ok := executed[filename]; ok {
			if prev != checksum {
				return results, fmt.Errorf("実行済みマイグレーション %s のチェックサムが一致しません", filename)
			}
			logger.Info("スキップ (実行済み)", zap.String("filename", filename))
			results = append(results, MigrationResult{Filename: filename, Checksum: checksum, Skipped: true})
			continue
		}

		logger.Info("マイグレーション実行中", zap.String("filename", filename))
		if err := applyMigration(ctx, db, filename, string(content), checksum); err != nil {
			return results, err
		}
		results = append(results, MigrationResult{Filename: filename, Checksum: checksum})
		logger.Info("マイグレーション完了", zap.String("filename", filename), zap.String("checksum", checksum))
	}
	return results, nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, filename, content, checksum string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始エラー %s: %w", filename, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("マイグレーション実行エラー %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)`, filename, checksum,
	); err != nil {
		return fmt.Errorf("マイグレーション履歴記録エラー %s: %w", filename, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットエラー %s: %w", filename, err)
	}
	return nil
}

// Checksum returns the hex SHA-256 of a migration file
// マイグレーションファイルのチェックサムを計算
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
