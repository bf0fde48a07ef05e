package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"SAMS-backend/internal/platform/db"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/history"
	"SAMS-backend/internal/tracking/status"
)

// TxStore はワークフロー1操作が1トランザクション内で使う永続化操作の束。
// Service はこの境界の中でアイテム・枝番・申請・履歴を一括更新する。
// テストではメモリ実装に差し替える。
type TxStore interface {
	// items
	GetItemForUpdate(ctx context.Context, itemID int64) (*ItemRow, error)
	SetItemStatus(ctx context.Context, itemID int64, st status.Status) error
	SetItemManager(ctx context.Context, itemID int64, manager string) error
	SetItemApprovalGroup(ctx context.Context, itemID int64, group string) error
	UpdateItemFields(ctx context.Context, itemID int64, fields map[string]any) error
	InsertCheckoutSpan(ctx context.Context, itemID int64, startDate, endDate string) error

	// change_requests
	InsertRequest(ctx context.Context, r ChangeRequest) (int64, error)
	GetRequestForUpdate(ctx context.Context, id int64) (*ChangeRequest, error)
	// ResolveRequest は pending の行だけを to へ更新する（CAS）。
	// 更新できなければ false：すでに解決済み。
	ResolveRequest(ctx context.Context, id int64, to RequestStatus, approver, comment string, at time.Time) (bool, error)
	ListPendingByApprover(ctx context.Context, approver string) ([]ChangeRequest, error)
	ListByApplicant(ctx context.Context, applicant string, statusFilter RequestStatus) ([]ChangeRequest, error)

	// branches
	ListBranches(ctx context.Context, itemID int64) ([]branches.Branch, error)
	ApplyAssignments(ctx context.Context, itemID int64, plan []branches.Assignment, st status.BranchStatus) error
	MarkBranchesTerminal(ctx context.Context, itemID int64, branchNos []int, st status.BranchStatus, comment, date string) error
	ReturnAliveBranches(ctx context.Context, itemID int64) error

	// history
	AppendHistory(ctx context.Context, r history.Record) error
}

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	ReadTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// ===== SQL実装 =====

type sqlStore struct {
	db       *sql.DB
	branches *branches.Store
	history  *history.Store
}

func NewStore(sqldb *sql.DB) Store {
	return &sqlStore{db: sqldb, branches: branches.NewStore(), history: history.NewStore()}
}

func (s *sqlStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &sqlTxStore{tx: tx, branches: s.branches, history: s.history})
	})
}

func (s *sqlStore) ReadTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &sqlTxStore{tx: tx, branches: s.branches, history: s.history})
	})
}

type sqlTxStore struct {
	tx       db.DBTX
	branches *branches.Store
	history  *history.Store
}

// ---------- items ----------

func (s *sqlTxStore) GetItemForUpdate(ctx context.Context, itemID int64) (*ItemRow, error) {
	const q = `
	SELECT id, name, status, manager, approval_group, quantity
	FROM items WHERE id = ? FOR UPDATE`
	var it ItemRow
	err := s.tx.QueryRowContext(ctx, q, itemID).
		Scan(&it.ID, &it.Name, &it.Status, &it.Manager, &it.ApprovalGroup, &it.Quantity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *sqlTxStore) SetItemStatus(ctx context.Context, itemID int64, st status.Status) error {
	_, err := s.tx.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`, st, itemID)
	return err
}

func (s *sqlTxStore) SetItemManager(ctx context.Context, itemID int64, manager string) error {
	_, err := s.tx.ExecContext(ctx, `UPDATE items SET manager = ? WHERE id = ?`, manager, itemID)
	return err
}

func (s *sqlTxStore) SetItemApprovalGroup(ctx context.Context, itemID int64, group string) error {
	_, err := s.tx.ExecContext(ctx, `UPDATE items SET approval_group = ? WHERE id = ?`, group, itemID)
	return err
}

// UpdateItemFields は記述フィールドを反映する。固定カラムは個別UPDATE、
// それ以外は attributes JSON へマージ。status はここでは絶対に書かない。
func (s *sqlTxStore) UpdateItemFields(ctx context.Context, itemID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	extra := map[string]any{}
	for k, v := range fields {
		switch k {
		case "name", "category", "storage", "quantity":
			if _, err := s.tx.ExecContext(ctx, `UPDATE items SET `+k+` = ? WHERE id = ?`, v, itemID); err != nil {
				return err
			}
		case "status":
			// 混入していても無視（明示的な遷移規則のみが status を書く）
		default:
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	blob, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	const q = `UPDATE items SET attributes = JSON_MERGE_PATCH(COALESCE(attributes, '{}'), ?) WHERE id = ?`
	_, err = s.tx.ExecContext(ctx, q, string(blob), itemID)
	return err
}

func (s *sqlTxStore) InsertCheckoutSpan(ctx context.Context, itemID int64, startDate, endDate string) error {
	const q = `INSERT INTO checkout_spans (item_id, start_date, end_date) VALUES (?, ?, ?)`
	_, err := s.tx.ExecContext(ctx, q, itemID, startDate, endDate)
	return err
}

// ---------- change_requests ----------

func (s *sqlTxStore) InsertRequest(ctx context.Context, r ChangeRequest) (int64, error) {
	blob, err := json.Marshal(r.Payload)
	if err != nil {
		return 0, err
	}
	const q = `
	INSERT INTO change_requests
	  (request_ulid, item_id, applicant, applicant_comment, approver, approver_comment,
	   status, payload, original_status, application_datetime)
	VALUES (?, ?, ?, ?, ?, '', ?, ?, ?, ?)`
	res, err := s.tx.ExecContext(ctx, q,
		r.RequestULID, r.ItemID, r.Applicant, r.ApplicantComment, r.Approver,
		r.Status, string(blob), r.OriginalStatus, r.ApplicationDatetime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectRequests = `
	SELECT id, request_ulid, item_id, applicant, applicant_comment, approver, approver_comment,
	       status, payload, original_status, application_datetime, resolution_datetime
	FROM change_requests`

func scanRequest(scan func(dest ...any) error) (*ChangeRequest, error) {
	var r ChangeRequest
	var blob []byte
	if err := scan(&r.ID, &r.RequestULID, &r.ItemID, &r.Applicant, &r.ApplicantComment,
		&r.Approver, &r.ApproverComment, &r.Status, &blob, &r.OriginalStatus,
		&r.ApplicationDatetime, &r.ResolutionDatetime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &r.Payload); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlTxStore) GetRequestForUpdate(ctx context.Context, id int64) (*ChangeRequest, error) {
	row := s.tx.QueryRowContext(ctx, selectRequests+` WHERE id = ? FOR UPDATE`, id)
	r, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlTxStore) ResolveRequest(ctx context.Context, id int64, to RequestStatus, approver, comment string, at time.Time) (bool, error) {
	const q = `
	UPDATE change_requests
	SET status = ?, approver = ?, approver_comment = ?, resolution_datetime = ?
	WHERE id = ? AND status = ?`
	res, err := s.tx.ExecContext(ctx, q, to, approver, comment, at, id, RequestPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqlTxStore) ListPendingByApprover(ctx context.Context, approver string) ([]ChangeRequest, error) {
	const q = selectRequests + ` WHERE approver = ? AND status = ? ORDER BY application_datetime, id`
	return s.queryRequests(ctx, q, approver, RequestPending)
}

func (s *sqlTxStore) ListByApplicant(ctx context.Context, applicant string, statusFilter RequestStatus) ([]ChangeRequest, error) {
	q := selectRequests + ` WHERE applicant = ?`
	args := []any{applicant}
	if statusFilter != "" {
		q += ` AND status = ?`
		args = append(args, statusFilter)
	}
	q += ` ORDER BY application_datetime DESC, id DESC`
	return s.queryRequests(ctx, q, args...)
}

func (s *sqlTxStore) queryRequests(ctx context.Context, q string, args ...any) ([]ChangeRequest, error) {
	rows, err := s.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangeRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ---------- branches / history（既存ストアへ委譲） ----------

func (s *sqlTxStore) ListBranches(ctx context.Context, itemID int64) ([]branches.Branch, error) {
	return s.branches.ListByItem(ctx, s.tx, itemID)
}

func (s *sqlTxStore) ApplyAssignments(ctx context.Context, itemID int64, plan []branches.Assignment, st status.BranchStatus) error {
	return s.branches.Apply(ctx, s.tx, itemID, plan, st)
}

func (s *sqlTxStore) MarkBranchesTerminal(ctx context.Context, itemID int64, branchNos []int, st status.BranchStatus, comment, date string) error {
	return s.branches.MarkTerminal(ctx, s.tx, itemID, branchNos, st, comment, date)
}

func (s *sqlTxStore) ReturnAliveBranches(ctx context.Context, itemID int64) error {
	return s.branches.ReturnAlive(ctx, s.tx, itemID)
}

func (s *sqlTxStore) AppendHistory(ctx context.Context, r history.Record) error {
	return s.history.Insert(ctx, s.tx, r)
}
