// Package status はアイテムと枝番のライフサイクル状態、および
// 申請種別ごとの遷移可否を定義する。純粋な判定ロジックのみでI/Oは持たない。
package status

// Status はアイテム本体の状態。閉じた集合で、ここに無い値は不正。
type Status string

const (
	PreEntry                       Status = "pre_entry"
	EntryRequested                 Status = "entry_requested"
	EntryCheckoutRequested         Status = "entry_checkout_requested"
	EntryCheckoutTransferRequested Status = "entry_checkout_transfer_requested"
	InStorage                      Status = "in_storage"
	CheckoutRequested              Status = "checkout_requested"
	CheckoutTransferRequested      Status = "checkout_transfer_requested"
	CheckedOut                     Status = "checked_out"
	ReturnRequested                Status = "return_requested"
	DisposeTransferRequested       Status = "dispose_transfer_requested"
)

// BranchStatus は枝番（実体1本）の状態。disposed / transferred は終端。
type BranchStatus string

const (
	BranchInCustody   BranchStatus = "in_custody"
	BranchCheckedOut  BranchStatus = "checked_out"
	BranchReturned    BranchStatus = "returned"
	BranchDisposed    BranchStatus = "disposed"
	BranchTransferred BranchStatus = "transferred"
)

// Terminal: 終端枝番は以後一切更新しない
func (b BranchStatus) Terminal() bool {
	return b == BranchDisposed || b == BranchTransferred
}

// Kind は申請種別。申請ペイロードのタグとしても使う。
type Kind string

const (
	KindEntry                 Kind = "entry"
	KindEntryCheckout         Kind = "entry_checkout"
	KindEntryCheckoutTransfer Kind = "entry_checkout_transfer"
	KindCheckout              Kind = "checkout"
	KindCheckoutTransfer      Kind = "checkout_transfer"
	KindReturn                Kind = "return"
	KindDisposeTransfer       Kind = "dispose_transfer"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEntry, KindEntryCheckout, KindEntryCheckoutTransfer,
		KindCheckout, KindCheckoutTransfer, KindReturn, KindDisposeTransfer:
		return true
	}
	return false
}

// 遷移表：申請種別ごとに「起票できる現在状態」と「起票直後の申請中状態」。
// ここに無い組み合わせは全て拒否する。
var transitions = map[Kind]struct {
	from        []Status
	provisional Status
}{
	KindEntry:                 {from: []Status{PreEntry}, provisional: EntryRequested},
	KindEntryCheckout:         {from: []Status{PreEntry}, provisional: EntryCheckoutRequested},
	KindEntryCheckoutTransfer: {from: []Status{PreEntry}, provisional: EntryCheckoutTransferRequested},
	KindCheckout:              {from: []Status{InStorage, CheckedOut}, provisional: CheckoutRequested},
	KindCheckoutTransfer:      {from: []Status{InStorage, CheckedOut}, provisional: CheckoutTransferRequested},
	KindReturn:                {from: []Status{CheckedOut}, provisional: ReturnRequested},
	KindDisposeTransfer:       {from: []Status{InStorage, CheckedOut}, provisional: DisposeTransferRequested},
}

// CanTransition: current から kind の申請を起票できるか。
func CanTransition(current Status, kind Kind) bool {
	t, ok := transitions[kind]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == current {
			return true
		}
	}
	return false
}

// Provisional: 起票直後にアイテムへ書く「申請中」状態。
// 不正な kind はゼロ値を返す（呼び出し側は事前に CanTransition を通すこと）。
func Provisional(kind Kind) Status {
	return transitions[kind].provisional
}

// KindOfProvisional: 申請中状態から申請種別を逆引きする。
// 承認処理は保存済みペイロードの kind タグを正とするが、
// 整合性チェック用に残している。
func KindOfProvisional(s Status) (Kind, bool) {
	for k, t := range transitions {
		if t.provisional == s {
			return k, true
		}
	}
	return "", false
}

// ApprovalTarget: 承認時にアイテムへ書く状態。
// dispose_transfer のみ「元の状態へ戻す」ため ok=false を返し、
// 呼び出し側が original_status を使う。
func ApprovalTarget(kind Kind) (Status, bool) {
	switch kind {
	case KindEntry, KindReturn:
		return InStorage, true
	case KindEntryCheckout, KindEntryCheckoutTransfer, KindCheckout, KindCheckoutTransfer:
		return CheckedOut, true
	case KindDisposeTransfer:
		return "", false
	}
	return "", false
}

// Pending: 申請中状態（解決は申請の承認/差し戻し/取り下げのみ）
func (s Status) Pending() bool {
	_, ok := KindOfProvisional(s)
	return ok
}

// Editable: 一括編集（ロック経由の直接編集）を許可する状態
func (s Status) Editable() bool {
	switch s {
	case PreEntry, InStorage, CheckedOut:
		return true
	}
	return false
}
