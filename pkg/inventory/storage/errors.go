package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

// DefaultLockWait is the default maximum wait for a row lock
const DefaultLockWait = 5 * time.Second

// 一意制約・インデックス名
const (
	constraintMovementReference = "ux_stock_movements_reference"
	constraintOpenAlert         = "ux_alerts_open_threshold"
)

// mapError classifies a driver error into an inventory error kind
// ドライバーエラーを在庫エラー種別へ分類する
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return inventory.NewCancelledError(operation, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return inventory.NewStorageError(operation, "データベース接続が失われました", kindError(inventory.ErrStoreUnavailable, err))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			switch pqErr.Constraint {
			case constraintMovementReference:
				return inventory.NewStorageError(operation, "参照番号が重複しています", kindError(inventory.ErrDuplicateReference, err))
			case constraintOpenAlert:
				return inventory.NewStorageError(operation, "未解決のアラートが存在します", kindError(inventory.ErrDuplicateAlert, err))
			}
			return inventory.NewStorageError(operation, "一意制約に違反しました", err)
		case "23503": // foreign_key_violation
			return inventory.NewStorageError(operation, "参照先が存在しません", kindError(inventory.ErrNotFound, err))
		case "23514": // check_violation
			return inventory.NewStorageError(operation, "チェック制約に違反しました", kindError(inventory.ErrInvalidQuantity, err))
		case "40P01", "40001": // deadlock_detected, serialization_failure
			return inventory.NewStorageError(operation, "デッドロックまたは直列化エラー", kindError(inventory.ErrDeadlock, err))
		case "55P03": // lock_not_available
			return inventory.NewStorageError(operation, "ロック待機がタイムアウトしました", kindError(inventory.ErrLockTimeout, err))
		case "57014": // query_canceled
			return inventory.NewCancelledError(operation, err)
		case "53300", "57P01", "57P02", "57P03": // too_many_connections, admin_shutdown, crash_shutdown, cannot_connect_now
			return inventory.NewStorageError(operation, "データベースが利用できません", kindError(inventory.ErrStoreUnavailable, err))
		}
		if pqErr.Code.Class() == "08" { // connection_exception
			return inventory.NewStorageError(operation, "データベース接続エラー", kindError(inventory.ErrStoreUnavailable, err))
		}
		return inventory.NewStorageError(operation, "データベース操作に失敗しました", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return inventory.NewStorageError(operation, "データベースに到達できません", kindError(inventory.ErrStoreUnavailable, err))
	}
	return inventory.NewStorageError(operation, "データベース操作に失敗しました", err)
}

func kindError(kind, cause error) error {
	return fmt.Errorf("%w: %v", kind, cause)
}
