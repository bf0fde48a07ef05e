package locks

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"SAMS-backend/internal/platform/db"
)

// Row はアイテム1件分のロック欄。Holder 空文字は未ロック扱い。
type Row struct {
	ItemID     int64
	Holder     sql.NullString
	AcquiredAt sql.NullTime
}

// TxStore: 取得判定と書き込みを同一トランザクションで行うための操作群
type TxStore interface {
	// GetForUpdate は対象行を FOR UPDATE で読む。存在しないIDは結果に含まれない。
	GetForUpdate(ctx context.Context, ids []int64) ([]Row, error)
	SetHolder(ctx context.Context, ids []int64, holder string, at time.Time) error
	Clear(ctx context.Context, ids []int64) error
	ClearByHolder(ctx context.Context, holder string) (int64, error)
	ListHeld(ctx context.Context) ([]Row, error)
}

type Store interface {
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

type sqlStore struct{ db *sql.DB }

func NewStore(sqldb *sql.DB) Store { return &sqlStore{db: sqldb} }

func (s *sqlStore) WithTx(ctx context.Context, fn func(tx TxStore) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct{ tx db.DBTX }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *txStore) GetForUpdate(ctx context.Context, ids []int64) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id, locked_by, locked_at FROM items WHERE id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	rows, err := s.tx.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ItemID, &r.Holder, &r.AcquiredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *txStore) SetHolder(ctx context.Context, ids []int64, holder string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE items SET locked_by = ?, locked_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{holder, at}, idArgs(ids)...)
	_, err := s.tx.ExecContext(ctx, q, args...)
	return err
}

func (s *txStore) Clear(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE items SET locked_by = NULL, locked_at = NULL WHERE id IN (` + placeholders(len(ids)) + `)`
	_, err := s.tx.ExecContext(ctx, q, idArgs(ids)...)
	return err
}

func (s *txStore) ClearByHolder(ctx context.Context, holder string) (int64, error) {
	const q = `UPDATE items SET locked_by = NULL, locked_at = NULL WHERE locked_by = ?`
	res, err := s.tx.ExecContext(ctx, q, holder)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *txStore) ListHeld(ctx context.Context) ([]Row, error) {
	const q = `SELECT id, locked_by, locked_at FROM items WHERE locked_by IS NOT NULL AND locked_by != ''`
	rows, err := s.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ItemID, &r.Holder, &r.AcquiredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
