package requests

import (
	"time"

	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/status"
)

// RequestDTO はAPI応答用の表現。NULL許容列はポインタにする。
type RequestDTO struct {
	ID                  int64         `json:"id"`
	RequestULID         string        `json:"request_ulid"`
	ItemID              *int64        `json:"item_id"`
	Applicant           string        `json:"applicant"`
	ApplicantComment    string        `json:"applicant_comment"`
	Approver            string        `json:"approver"`
	ApproverComment     string        `json:"approver_comment"`
	Status              RequestStatus `json:"status"`
	Kind                status.Kind   `json:"kind"`
	Payload             Payload       `json:"payload"`
	OriginalStatus      status.Status `json:"original_status"`
	ApplicationDatetime time.Time     `json:"application_datetime"`
	ResolutionDatetime  *time.Time    `json:"resolution_datetime,omitempty"`
}

type PendingRequestDTO struct {
	RequestDTO
	AssignmentPreview []branches.Assignment `json:"assignment_preview,omitempty"`
	PreviewWarning    string                `json:"preview_warning,omitempty"`
}

func toDTO(r ChangeRequest) RequestDTO {
	d := RequestDTO{
		ID:                  r.ID,
		RequestULID:         r.RequestULID,
		Applicant:           r.Applicant,
		ApplicantComment:    r.ApplicantComment,
		Approver:            r.Approver,
		ApproverComment:     r.ApproverComment,
		Status:              r.Status,
		Kind:                r.Payload.Kind,
		Payload:             r.Payload,
		OriginalStatus:      r.OriginalStatus,
		ApplicationDatetime: r.ApplicationDatetime,
	}
	if r.ItemID.Valid {
		id := r.ItemID.Int64
		d.ItemID = &id
	}
	if r.ResolutionDatetime.Valid {
		t := r.ResolutionDatetime.Time
		d.ResolutionDatetime = &t
	}
	return d
}

func toDTOs(rs []ChangeRequest) []RequestDTO {
	out := make([]RequestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toDTO(r))
	}
	return out
}

func toPendingDTOs(rs []PendingRequest) []PendingRequestDTO {
	out := make([]PendingRequestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, PendingRequestDTO{
			RequestDTO:        toDTO(r.ChangeRequest),
			AssignmentPreview: r.AssignmentPreview,
			PreviewWarning:    r.PreviewWarning,
		})
	}
	return out
}
