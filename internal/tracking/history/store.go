package history

import (
	"context"

	"SAMS-backend/internal/platform/db"
)

// Store は履歴行の追記と参照。Insert は承認トランザクションへ同居できるよう
// DBTX を受け取る（branches.Store と同じ流儀）。
type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) Insert(ctx context.Context, tx db.DBTX, r Record) error {
	const q = `
	INSERT INTO history_records
	  (record_ulid, item_id, applicant, action, applicant_comment,
	   application_datetime, approver, approver_comment, resolution, resolution_datetime)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		r.RecordULID, r.ItemID, r.Applicant, r.Action, r.ApplicantComment,
		r.ApplicationDatetime, r.Approver, r.ApproverComment, r.Resolution, r.ResolutionDatetime)
	return err
}

func (s *Store) ListByItem(ctx context.Context, tx db.DBTX, itemID int64) ([]Record, error) {
	const q = selectRecords + ` WHERE item_id = ? ORDER BY resolution_datetime DESC, id DESC`
	return s.query(ctx, tx, q, itemID)
}

func (s *Store) ListByApplicant(ctx context.Context, tx db.DBTX, applicant string) ([]Record, error) {
	const q = selectRecords + ` WHERE applicant = ? ORDER BY resolution_datetime DESC, id DESC`
	return s.query(ctx, tx, q, applicant)
}

const selectRecords = `
	SELECT id, record_ulid, item_id, applicant, action, applicant_comment,
	       application_datetime, approver, approver_comment, resolution, resolution_datetime
	FROM history_records`

func (s *Store) query(ctx context.Context, tx db.DBTX, q string, args ...any) ([]Record, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RecordULID, &r.ItemID, &r.Applicant, &r.Action,
			&r.ApplicantComment, &r.ApplicationDatetime, &r.Approver, &r.ApproverComment,
			&r.Resolution, &r.ResolutionDatetime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
