package items

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"SAMS-backend/internal/platform/db"
	"SAMS-backend/internal/tracking/status"
)

type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) Insert(ctx context.Context, tx db.DBTX, it Item) (int64, error) {
	attrs, err := marshalAttrs(it.Attributes)
	if err != nil {
		return 0, err
	}
	const q = `
	INSERT INTO items
	  (name, category, storage, quantity, manager, approval_group, status, attributes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		it.Name, it.Category, it.Storage, it.Quantity, it.Manager, it.ApprovalGroup,
		it.Status, attrs, it.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Get(ctx context.Context, tx db.DBTX, id int64) (*Item, error) {
	const q = selectItems + ` WHERE i.id = ? GROUP BY i.id`
	row := tx.QueryRowContext(ctx, q,
		status.BranchDisposed, status.BranchTransferred, id)
	li, err := scanListed(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &li.Item, nil
}

// GetForUpdate はステータスとロック欄だけを行ロック付きで読む
func (s *Store) GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (st status.Status, manager string, lockedBy sql.NullString, err error) {
	const q = `SELECT status, manager, locked_by FROM items WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, q, id).Scan(&st, &manager, &lockedBy)
	return
}

const selectItems = `
	SELECT i.id, i.name, i.category, i.storage, i.quantity, i.manager, i.approval_group,
	       i.status, i.locked_by, i.locked_at, i.attributes, i.created_at,
	       COUNT(b.id) AS total_branches,
	       COALESCE(SUM(b.status NOT IN (?, ?)), 0) AS alive
	FROM items i
	LEFT JOIN branches b ON b.item_id = i.id`

func (s *Store) List(ctx context.Context, tx db.DBTX, f ListFilter) ([]ListedItem, error) {
	var (
		conds []string
		args  = []any{status.BranchDisposed, status.BranchTransferred}
	)
	if f.Status != "" {
		conds = append(conds, "i.status = ?")
		args = append(args, f.Status)
	}
	if f.Manager != "" {
		conds = append(conds, "i.manager = ?")
		args = append(args, f.Manager)
	}
	if f.Category != "" {
		conds = append(conds, "i.category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		conds = append(conds, "(i.name LIKE ? OR i.storage LIKE ?)")
		pat := "%" + f.Query + "%"
		args = append(args, pat, pat)
	}

	q := selectItems
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " GROUP BY i.id ORDER BY i.id"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListedItem
	for rows.Next() {
		li, err := scanListed(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *li)
	}
	return out, rows.Err()
}

func scanListed(scan func(dest ...any) error) (*ListedItem, error) {
	var (
		li       ListedItem
		lockedBy sql.NullString
		attrs    sql.NullString
	)
	if err := scan(&li.ID, &li.Name, &li.Category, &li.Storage, &li.Quantity,
		&li.Manager, &li.ApprovalGroup, &li.Status, &lockedBy, &li.LockedAt,
		&attrs, &li.CreatedAt, &li.TotalBranches, &li.LiveCount); err != nil {
		return nil, err
	}
	li.LockedBy = lockedBy.String
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &li.Attributes); err != nil {
			return nil, err
		}
	}
	// 枝番が1本も無い場合は登録数量を実在数とみなす
	if li.TotalBranches == 0 {
		li.LiveCount = li.Quantity
	}
	return &li, nil
}

func (s *Store) UpdateFields(ctx context.Context, tx db.DBTX, id int64, f EditFields) error {
	var (
		sets []string
		args []any
	)
	if f.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *f.Name)
	}
	if f.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *f.Category)
	}
	if f.Storage != nil {
		sets = append(sets, "storage = ?")
		args = append(args, *f.Storage)
	}
	if f.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *f.Quantity)
	}
	if len(f.Attributes) > 0 {
		blob, err := json.Marshal(f.Attributes)
		if err != nil {
			return err
		}
		sets = append(sets, "attributes = JSON_MERGE_PATCH(COALESCE(attributes, '{}'), ?)")
		args = append(args, string(blob))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := tx.ExecContext(ctx, `UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	return err
}

// UpdateManager は対象状態のときだけ管理者を書き換える（直前再検証）
func (s *Store) UpdateManager(ctx context.Context, tx db.DBTX, id int64, manager string) (bool, error) {
	const q = `UPDATE items SET manager = ? WHERE id = ? AND status IN (?, ?)`
	res, err := tx.ExecContext(ctx, q, manager, id, status.InStorage, status.CheckedOut)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) Delete(ctx context.Context, tx db.DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

func marshalAttrs(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
