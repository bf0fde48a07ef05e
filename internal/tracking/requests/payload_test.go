package requests

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"SAMS-backend/internal/tracking/status"
)

func TestPayloadValidate_collectsAllViolations(t *testing.T) {
	// 持出申請で期間・所有者が全部欠けている → 1件ずつではなく全件返る
	p := Payload{Kind: status.KindCheckout, Checkout: &CheckoutPayload{}}
	v := p.Validate()
	assert.Len(t, v, 3)
	assert.Contains(t, v, "checkout start date is required")
	assert.Contains(t, v, "checkout end date is required")
	assert.Contains(t, v, "at least one owner is required")
}

func TestPayloadValidate_perKind(t *testing.T) {
	checkout := &CheckoutPayload{StartDate: "2025-04-01", EndDate: "2025-04-30", Owners: []string{"alice"}}
	transfer := &TransferPayload{BranchNos: []int{1}, Comment: "handed to partner", Date: "2025-04-30"}

	cases := []struct {
		name string
		p    Payload
		want []string
	}{
		{"unknown kind", Payload{Kind: "borrow"}, []string{`unknown request kind "borrow"`}},
		{"entry ok", Payload{Kind: status.KindEntry, Manager: "alice"}, nil},
		{"entry missing manager", Payload{Kind: status.KindEntry},
			[]string{"manager is required for entry requests"}},
		{"entry_checkout ok", Payload{Kind: status.KindEntryCheckout, Manager: "alice", Checkout: checkout}, nil},
		{"checkout missing section", Payload{Kind: status.KindCheckout},
			[]string{"checkout section is required"}},
		{"checkout empty owner name", Payload{Kind: status.KindCheckout,
			Checkout: &CheckoutPayload{StartDate: "a", EndDate: "b", Owners: []string{""}}},
			[]string{"owner #1 must not be empty"}},
		{"checkout_transfer ok", Payload{Kind: status.KindCheckoutTransfer, Checkout: checkout, Transfer: transfer}, nil},
		{"checkout_transfer missing transfer", Payload{Kind: status.KindCheckoutTransfer, Checkout: checkout},
			[]string{"transfer section is required"}},
		{"transfer without branches or comment", Payload{Kind: status.KindCheckoutTransfer, Checkout: checkout,
			Transfer: &TransferPayload{Date: "2025-04-30"}},
			[]string{"transfer requires at least one target branch number", "transfer requires a comment"}},
		{"return ok", Payload{Kind: status.KindReturn, Return: &ReturnPayload{Date: "2025-05-01", Storage: "B1"}}, nil},
		{"return missing section", Payload{Kind: status.KindReturn}, []string{"return section is required"}},
		{"dispose ok", Payload{Kind: status.KindDisposeTransfer,
			Dispose: &DisposePayload{Type: DisposeTypeDispose, Date: "2025-05-01", BranchNos: []int{2}}}, nil},
		{"dispose bad type", Payload{Kind: status.KindDisposeTransfer,
			Dispose: &DisposePayload{Type: "discard", Date: "2025-05-01", BranchNos: []int{2}}},
			[]string{`dispose type must be "dispose" or "transfer"`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Validate())
		})
	}
}
