package main

import (
	"context"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/internal/config"
	"github.com/nemonet1337/zaiWarehouse/pkg/inventory/storage"
)

// マイグレーション実行ツール
// 引数でディレクトリを指定しない場合は組み込みのマイグレーションを使う
func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("データベースに接続中",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer db.Close()

	var fsys fs.FS = storage.MigrationsFS()
	source := "embedded"
	if len(os.Args) > 1 {
		dir := os.Args[1]
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logger.Fatal("マイグレーションディレクトリが見つかりません", zap.String("dir", dir))
		}
		fsys, source = os.DirFS(dir), dir
	}

	results, err := storage.Migrate(ctx, db, fsys, logger)
	if err != nil {
		logger.Fatal("マイグレーション実行に失敗しました", zap.String("source", source), zap.Error(err))
	}

	applied := 0
	for _, r := range results {
		if !r.Skipped {
			applied++
		}
	}
	logger.Info("すべてのマイグレーションが完了しました",
		zap.String("source", source),
		zap.Int("applied", applied),
		zap.Int("skipped", len(results)-applied),
	)
}
