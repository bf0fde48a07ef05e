package items

import (
	"time"

	"SAMS-backend/internal/tracking/status"
)

type Item struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Storage       string         `json:"storage"`
	Quantity      int            `json:"quantity"`
	Manager       string         `json:"manager"`
	ApprovalGroup string         `json:"approval_group"`
	Status        status.Status  `json:"status"`
	LockedBy      string         `json:"locked_by,omitempty"`
	LockedAt      *time.Time     `json:"locked_at,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListedItem は一覧1行分。実在数は生存枝番の本数、
// 枝番が1本も無ければ登録数量へフォールバックする。
type ListedItem struct {
	Item
	LiveCount     int `json:"live_count"`
	TotalBranches int `json:"total_branches"`
}

type ListFilter struct {
	Status   status.Status
	Manager  string
	Category string
	Query    string
	Limit    int
	Offset   int
}

// EditFields は一括編集で触れる記述フィールド。nil は「変更しない」。
type EditFields struct {
	Name       *string        `json:"name,omitempty"`
	Category   *string        `json:"category,omitempty"`
	Storage    *string        `json:"storage,omitempty"`
	Quantity   *int           `json:"quantity,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
