package history

import (
	"database/sql"
	"time"
)

// Record は履歴台帳の1行。追記専用で、業務判断には一切使わない。
type Record struct {
	ID                  int64
	RecordULID          string
	ItemID              sql.NullInt64
	Applicant           string
	Action              string
	ApplicantComment    string
	ApplicationDatetime time.Time
	Approver            sql.NullString
	ApproverComment     string
	Resolution          string
	ResolutionDatetime  time.Time
}

// RecordDTO はAPI応答用。NULL許容列はポインタにする。
type RecordDTO struct {
	ID                  int64     `json:"id"`
	RecordULID          string    `json:"record_ulid"`
	ItemID              *int64    `json:"item_id"`
	Applicant           string    `json:"applicant"`
	Action              string    `json:"action"`
	ApplicantComment    string    `json:"applicant_comment"`
	ApplicationDatetime time.Time `json:"application_datetime"`
	Approver            string    `json:"approver"`
	ApproverComment     string    `json:"approver_comment"`
	Resolution          string    `json:"resolution"`
	ResolutionDatetime  time.Time `json:"resolution_datetime"`
}

func toDTOs(rs []Record) []RecordDTO {
	out := make([]RecordDTO, 0, len(rs))
	for _, r := range rs {
		d := RecordDTO{
			ID:                  r.ID,
			RecordULID:          r.RecordULID,
			Applicant:           r.Applicant,
			Action:              r.Action,
			ApplicantComment:    r.ApplicantComment,
			ApplicationDatetime: r.ApplicationDatetime,
			Approver:            r.Approver.String,
			ApproverComment:     r.ApproverComment,
			Resolution:          r.Resolution,
			ResolutionDatetime:  r.ResolutionDatetime,
		}
		if r.ItemID.Valid {
			id := r.ItemID.Int64
			d.ItemID = &id
		}
		out = append(out, d)
	}
	return out
}

// Resolution の定数。承認不要の直接操作は NoApproval を書く。
const (
	ResolutionApproved   = "approved"
	ResolutionRejected   = "rejected"
	ResolutionCancelled  = "cancelled"
	ResolutionNoApproval = "no approval required"
)
