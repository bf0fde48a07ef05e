// Package inventory は棚卸し記録を扱う。アイテムごとの点検履歴を追記し、
// 一覧では最終点検日時を引き当てる。
package inventory

import (
	"context"
	"database/sql"
	"time"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/platform/db"
)

type Check struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	CheckedAt time.Time `json:"checked_at"`
	Checker   string    `json:"checker"`
	Comment   string    `json:"comment"`
}

// ItemStatus は棚卸し画面1行分。アイテムと最終点検。
type ItemStatus struct {
	ItemID      int64      `json:"item_id"`
	Name        string     `json:"name"`
	Manager     string     `json:"manager"`
	Status      string     `json:"status"`
	LastChecked *time.Time `json:"last_checked"`
	LastChecker string     `json:"last_checker"`
}

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	db    *sql.DB
	clock Clock
}

func NewService(sqldb *sql.DB) *Service {
	return &Service{db: sqldb, clock: realClock{}}
}

// RecordCheck は選択されたアイテムへ点検記録を追記する
func (s *Service) RecordCheck(ctx context.Context, actor auth.Actor, itemIDs []int64, comment string) error {
	now := s.clock.Now()
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `INSERT INTO inventory_checks (item_id, checked_at, checker, comment) VALUES (?, ?, ?, ?)`
		for _, id := range itemIDs {
			if _, err := tx.ExecContext(ctx, q, id, now, actor.Username, comment); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListWithLastCheck は最終点検付きの一覧。proper ロールは自分が管理者の
// アイテムだけを見る（棚卸しは管理者単位の作業）。
func (s *Service) ListWithLastCheck(ctx context.Context, actor auth.Actor) ([]ItemStatus, error) {
	q := `
	SELECT i.id, i.name, i.manager, i.status, c.checked_at, COALESCE(c.checker, '')
	FROM items i
	LEFT JOIN inventory_checks c ON c.id = (
		SELECT c2.id FROM inventory_checks c2
		WHERE c2.item_id = i.id
		ORDER BY c2.checked_at DESC, c2.id DESC LIMIT 1
	)`
	var args []any
	if actor.HasRole(auth.RoleProper) && !actor.HasRole(auth.RoleAdmin, auth.RoleManager) {
		q += ` WHERE i.manager = ?`
		args = append(args, actor.Username)
	}
	q += ` ORDER BY i.id`

	var out []ItemStatus
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var st ItemStatus
			if err := rows.Scan(&st.ItemID, &st.Name, &st.Manager, &st.Status, &st.LastChecked, &st.LastChecker); err != nil {
				return err
			}
			out = append(out, st)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Service) ListChecks(ctx context.Context, itemID int64) ([]Check, error) {
	const q = `
	SELECT id, item_id, checked_at, checker, comment
	FROM inventory_checks WHERE item_id = ?
	ORDER BY checked_at DESC, id DESC`
	var out []Check
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, itemID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c Check
			if err := rows.Scan(&c.ID, &c.ItemID, &c.CheckedAt, &c.Checker, &c.Comment); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}
