package branches

import (
	"context"

	"SAMS-backend/internal/platform/db"
	"SAMS-backend/internal/tracking/status"
)

// Store は branches テーブルの読み書き。全メソッドが DBTX を受け取り、
// 呼び出し側（申請ワークフロー）のトランザクション境界に同居する。
type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) ListByItem(ctx context.Context, tx db.DBTX, itemID int64) ([]Branch, error) {
	const q = `
	SELECT id, item_id, branch_no, owner, status, comment, disposal_or_transfer_date
	FROM branches WHERE item_id = ? ORDER BY branch_no`
	rows, err := tx.QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.ItemID, &b.BranchNo, &b.Owner, &b.Status, &b.Comment, &b.DisposalOrTransferDate); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Apply は割り当て計画を反映する。既存行の更新は終端状態を上書きしない
// ガード付き（計画段階で弾いているが、同時実行への防御）。
func (s *Store) Apply(ctx context.Context, tx db.DBTX, itemID int64, plan []Assignment, st status.BranchStatus) error {
	const ins = `
	INSERT INTO branches (item_id, branch_no, owner, status, comment)
	VALUES (?, ?, ?, ?, '')`
	const upd = `
	UPDATE branches SET owner = ?, status = ?
	WHERE item_id = ? AND branch_no = ? AND status NOT IN (?, ?)`

	for _, a := range plan {
		if a.Create {
			if _, err := tx.ExecContext(ctx, ins, itemID, a.BranchNo, a.Owner, st); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, upd, a.Owner, st, itemID, a.BranchNo,
			status.BranchDisposed, status.BranchTransferred); err != nil {
			return err
		}
	}
	return nil
}

// MarkTerminal は明示指定された枝番を破棄/譲渡にする。所有者は空に戻す。
// すでに終端の行は変更しない。
func (s *Store) MarkTerminal(ctx context.Context, tx db.DBTX, itemID int64, branchNos []int,
	st status.BranchStatus, comment, date string) error {
	const q = `
	UPDATE branches
	SET status = ?, comment = ?, owner = '', disposal_or_transfer_date = ?
	WHERE item_id = ? AND branch_no = ? AND status NOT IN (?, ?)`
	for _, no := range branchNos {
		if _, err := tx.ExecContext(ctx, q, st, comment, date, itemID, no,
			status.BranchDisposed, status.BranchTransferred); err != nil {
			return err
		}
	}
	return nil
}

// ReturnAlive は返却承認時に生存枝番を一括で返却済へ戻す
func (s *Store) ReturnAlive(ctx context.Context, tx db.DBTX, itemID int64) error {
	const q = `
	UPDATE branches SET status = ?, owner = ''
	WHERE item_id = ? AND status NOT IN (?, ?)`
	_, err := tx.ExecContext(ctx, q, status.BranchReturned, itemID,
		status.BranchDisposed, status.BranchTransferred)
	return err
}

// CountAlive: 一覧表示用の生存本数
func (s *Store) CountAlive(ctx context.Context, tx db.DBTX, itemID int64) (total, alive int, err error) {
	const q = `
	SELECT COUNT(*), COALESCE(SUM(status NOT IN (?, ?)), 0)
	FROM branches WHERE item_id = ?`
	err = tx.QueryRowContext(ctx, q, status.BranchDisposed, status.BranchTransferred, itemID).
		Scan(&total, &alive)
	return
}

// UpdateOwner は直接の所有者変更（承認不要経路）。終端はガード。
func (s *Store) UpdateOwner(ctx context.Context, tx db.DBTX, itemID int64, branchNo int, owner string) (bool, error) {
	const q = `
	UPDATE branches SET owner = ?
	WHERE item_id = ? AND branch_no = ? AND status NOT IN (?, ?)`
	res, err := tx.ExecContext(ctx, q, owner, itemID, branchNo,
		status.BranchDisposed, status.BranchTransferred)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
