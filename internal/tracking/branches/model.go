package branches

import (
	"database/sql"

	"SAMS-backend/internal/tracking/status"
)

// Branch は item 配下の実体1本（枝番）を表す
type Branch struct {
	ID                     int64
	ItemID                 int64
	BranchNo               int
	Owner                  string
	Status                 status.BranchStatus
	Comment                sql.NullString
	DisposalOrTransferDate sql.NullString
}

// Assignment は所有者を割り当てる枝番の計画1件
type Assignment struct {
	BranchNo int    `json:"branch_no"`
	Owner    string `json:"owner"`
	// Create=true なら新規INSERT、falseなら既存行のUPDATE
	Create bool `json:"create"`
}

// BranchDTO はAPI応答用
type BranchDTO struct {
	ID                     int64               `json:"id"`
	ItemID                 int64               `json:"item_id"`
	BranchNo               int                 `json:"branch_no"`
	Owner                  string              `json:"owner"`
	Status                 status.BranchStatus `json:"status"`
	Comment                string              `json:"comment"`
	DisposalOrTransferDate *string             `json:"disposal_or_transfer_date,omitempty"`
}

func ToDTOs(bs []Branch) []BranchDTO {
	out := make([]BranchDTO, 0, len(bs))
	for _, b := range bs {
		d := BranchDTO{
			ID:       b.ID,
			ItemID:   b.ItemID,
			BranchNo: b.BranchNo,
			Owner:    b.Owner,
			Status:   b.Status,
			Comment:  b.Comment.String,
		}
		if b.DisposalOrTransferDate.Valid {
			v := b.DisposalOrTransferDate.String
			d.DisposalOrTransferDate = &v
		}
		out = append(out, d)
	}
	return out
}
