package requests

import (
	"fmt"

	"SAMS-backend/internal/tracking/status"
)

// Payload は申請の承認時に反映する内容。kind をタグとするタグ付き共用体で、
// 種別ごとの区画だけが埋まる。JSONそのままを引き回さず、必ずこの型を通す。
type Payload struct {
	Kind status.Kind `json:"kind"`

	// 管理者（入庫系で必須）。承認時に items.manager へ書く。
	Manager string `json:"manager,omitempty"`

	// 承認時に items へ反映する記述フィールド（statusは含めない）
	Fields map[string]any `json:"fields,omitempty"`

	Checkout *CheckoutPayload `json:"checkout,omitempty"`
	Transfer *TransferPayload `json:"transfer,omitempty"`
	Dispose  *DisposePayload  `json:"dispose,omitempty"`
	Return   *ReturnPayload   `json:"return,omitempty"`
}

type CheckoutPayload struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Owners    []string `json:"owners"`
}

type TransferPayload struct {
	// 申請時に選択済みの枝番。割り当てアルゴリズムの出力は使わない。
	BranchNos []int  `json:"branch_nos"`
	Comment   string `json:"comment"`
	Date      string `json:"date"`
}

type DisposePayload struct {
	// "dispose" か "transfer"
	Type      string `json:"type"`
	Date      string `json:"date"`
	Handler   string `json:"handler"`
	Comment   string `json:"comment"`
	BranchNos []int  `json:"branch_nos"`
}

type ReturnPayload struct {
	Date    string `json:"date"`
	Storage string `json:"storage"`
}

const (
	DisposeTypeDispose  = "dispose"
	DisposeTypeTransfer = "transfer"
)

func (k kindSet) has(kind status.Kind) bool {
	_, ok := k[kind]
	return ok
}

type kindSet map[status.Kind]struct{}

var (
	entryKinds = kindSet{
		status.KindEntry: {}, status.KindEntryCheckout: {}, status.KindEntryCheckoutTransfer: {},
	}
	checkoutKinds = kindSet{
		status.KindEntryCheckout: {}, status.KindEntryCheckoutTransfer: {},
		status.KindCheckout: {}, status.KindCheckoutTransfer: {},
	}
	transferKinds = kindSet{
		status.KindEntryCheckoutTransfer: {}, status.KindCheckoutTransfer: {},
	}
)

// Validate は種別ごとの必須区画を検査し、違反を全件返す。
// 最初の1件で打ち切らないこと（画面側で一括表示する）。
func (p Payload) Validate() []string {
	var v []string

	if !p.Kind.Valid() {
		return []string{fmt.Sprintf("unknown request kind %q", p.Kind)}
	}

	if entryKinds.has(p.Kind) && p.Manager == "" {
		v = append(v, "manager is required for entry requests")
	}

	if checkoutKinds.has(p.Kind) {
		if p.Checkout == nil {
			v = append(v, "checkout section is required")
		} else {
			if p.Checkout.StartDate == "" {
				v = append(v, "checkout start date is required")
			}
			if p.Checkout.EndDate == "" {
				v = append(v, "checkout end date is required")
			}
			if len(p.Checkout.Owners) == 0 {
				v = append(v, "at least one owner is required")
			}
			for i, o := range p.Checkout.Owners {
				if o == "" {
					v = append(v, fmt.Sprintf("owner #%d must not be empty", i+1))
				}
			}
		}
	}

	if transferKinds.has(p.Kind) {
		if p.Transfer == nil {
			v = append(v, "transfer section is required")
		} else {
			if len(p.Transfer.BranchNos) == 0 {
				v = append(v, "transfer requires at least one target branch number")
			}
			if p.Transfer.Comment == "" {
				v = append(v, "transfer requires a comment")
			}
		}
	}

	if p.Kind == status.KindDisposeTransfer {
		if p.Dispose == nil {
			v = append(v, "dispose section is required")
		} else {
			if p.Dispose.Type != DisposeTypeDispose && p.Dispose.Type != DisposeTypeTransfer {
				v = append(v, fmt.Sprintf("dispose type must be %q or %q", DisposeTypeDispose, DisposeTypeTransfer))
			}
			if p.Dispose.Date == "" {
				v = append(v, "dispose/transfer date is required")
			}
			if len(p.Dispose.BranchNos) == 0 {
				v = append(v, "dispose/transfer requires at least one target branch number")
			}
		}
	}

	if p.Kind == status.KindReturn && p.Return == nil {
		v = append(v, "return section is required")
	}

	return v
}
