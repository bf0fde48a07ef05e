package requests

import (
	"database/sql"
	"time"

	"SAMS-backend/internal/tracking/status"
)

// RequestStatus は申請レコード自身の状態（アイテム状態とは別物）
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// ChangeRequest は申請1件。アイテム1件につき1行起票される。
// OriginalStatus は差し戻し・取り下げ時の巻き戻し先。
type ChangeRequest struct {
	ID                  int64
	RequestULID         string
	ItemID              sql.NullInt64
	Applicant           string
	ApplicantComment    string
	Approver            string
	ApproverComment     string
	Status              RequestStatus
	Payload             Payload
	OriginalStatus      status.Status
	ApplicationDatetime time.Time
	ResolutionDatetime  sql.NullTime
}

// ItemRow はワークフローが参照・更新するアイテム側の最小像
type ItemRow struct {
	ID            int64
	Name          string
	Status        status.Status
	Manager       string
	ApprovalGroup string
	Quantity      int
}
