package requests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/status"
)

var (
	applicant = auth.Actor{Username: "bob", Department: "dev", Roles: []string{"partner"}}
	approver  = auth.Actor{Username: "alice", Department: "qa", Roles: []string{"proper"}}
)

func checkoutInput(itemID int64, owners ...string) OpenInput {
	return OpenInput{
		Kind:     status.KindCheckout,
		Approver: "alice",
		Checkout: &CheckoutInput{StartDate: "2025-04-01", EndDate: "2025-04-30"},
		Items:    []OpenItem{{ItemID: itemID, QuantityConfirmed: true, Owners: owners}},
	}
}

// 代表シナリオ：起票→承認→二重承認
func TestWorkflow_checkoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[7] = &ItemRow{ID: 7, Name: "oscilloscope", Status: status.InStorage, Quantity: 1}
	svc, notifier, _ := newTestService(f)

	opened, warnings, err := svc.Open(ctx, applicant, checkoutInput(7, "carol"))
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Empty(t, warnings)

	// 起票直後：暫定状態が書かれ、元状態は申請側に保持される
	assert.Equal(t, status.CheckoutRequested, f.state.items[7].Status)
	req := f.state.requests[opened[0].RequestID]
	assert.Equal(t, status.InStorage, req.OriginalStatus)
	assert.Equal(t, RequestPending, req.Status)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []string{"alice@example.com"}, notifier.sent[0].To)

	// 承認：実体化
	warnings, err = svc.Approve(ctx, approver, opened[0].RequestID, "ok")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, status.CheckedOut, f.state.items[7].Status)
	require.Len(t, f.state.branches[7], 1)
	b := f.state.branches[7][0]
	assert.Equal(t, 1, b.BranchNo)
	assert.Equal(t, "carol", b.Owner)
	assert.Equal(t, status.BranchCheckedOut, b.Status)
	require.Len(t, f.state.spans, 1)
	assert.Equal(t, span{itemID: 7, startDate: "2025-04-01", endDate: "2025-04-30"}, f.state.spans[0])
	require.Len(t, f.state.history, 1)
	assert.Equal(t, "checkout request", f.state.history[0].Action)

	// 二重承認：何も変わらず ALREADY_RESOLVED
	before := f.state.clone()
	_, err = svc.Approve(ctx, approver, opened[0].RequestID, "again")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeAlreadyResolved, api.Code)
	assert.Equal(t, before.items[7], f.state.items[7])
	assert.Equal(t, before.branches[7], f.state.branches[7])
	assert.Len(t, f.state.history, 1)
}

// 起票→差し戻しで起票前の状態へ正確に戻る（合法な全組み合わせ）
func TestWorkflow_openRejectRoundTrip(t *testing.T) {
	cases := []struct {
		from status.Status
		in   OpenInput
	}{
		{status.PreEntry, OpenInput{Kind: status.KindEntry, Approver: "alice", Manager: "alice",
			Items: []OpenItem{{ItemID: 1, QuantityConfirmed: true}}}},
		{status.InStorage, checkoutInput(1, "carol")},
		{status.CheckedOut, checkoutInput(1, "carol")},
		{status.CheckedOut, OpenInput{Kind: status.KindReturn, Approver: "alice",
			Return: &ReturnPayload{Date: "2025-05-01", Storage: "B1"},
			Items:  []OpenItem{{ItemID: 1, QuantityConfirmed: true}}}},
		{status.InStorage, OpenInput{Kind: status.KindDisposeTransfer, Approver: "alice",
			Dispose: &DisposeInput{Type: DisposeTypeDispose, Date: "2025-05-01"},
			Items:   []OpenItem{{ItemID: 1, QuantityConfirmed: true, DisposeBranchNos: []int{1}}}}},
	}
	for _, tc := range cases {
		t.Run(string(tc.in.Kind)+"/"+string(tc.from), func(t *testing.T) {
			ctx := context.Background()
			f := newFakeStore()
			f.state.items[1] = &ItemRow{ID: 1, Name: "probe", Status: tc.from, Quantity: 1}
			svc, _, _ := newTestService(f)

			opened, _, err := svc.Open(ctx, applicant, tc.in)
			require.NoError(t, err)
			require.Len(t, opened, 1)
			require.NotEqual(t, tc.from, f.state.items[1].Status)

			require.NoError(t, svc.Reject(ctx, approver, opened[0].RequestID, "no"))
			assert.Equal(t, tc.from, f.state.items[1].Status)
			assert.Equal(t, RequestRejected, f.state.requests[opened[0].RequestID].Status)
		})
	}
}

func TestOpen_validationCollectsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Status: status.PreEntry}
	svc, _, _ := newTestService(f)

	in := OpenInput{
		Kind:     status.KindEntryCheckout,
		Manager:  "mallory", // custodian ではない
		Checkout: &CheckoutInput{},
		Items:    []OpenItem{{ItemID: 1}}, // 数量未確認・所有者なし
	}
	_, _, err := svc.Open(ctx, applicant, in)

	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeInvalidArgument, api.Code)
	assert.Contains(t, api.Violations, "approver must be set")
	assert.Contains(t, api.Violations, `manager "mallory" is not a valid custodian`)
	assert.Contains(t, api.Violations, "item #1: quantity check must be acknowledged")
	assert.Contains(t, api.Violations, "item #1: checkout start date is required")
	assert.Contains(t, api.Violations, "item #1: at least one owner is required")
	assert.GreaterOrEqual(t, len(api.Violations), 5)

	// 検査失敗では何も変更しない
	assert.Equal(t, status.PreEntry, f.state.items[1].Status)
	assert.Empty(t, f.state.requests)
}

func TestOpen_invalidTransition(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Status: status.PreEntry}
	svc, _, _ := newTestService(f)

	// pre_entry からの持出は遷移表に無い
	_, _, err := svc.Open(ctx, applicant, checkoutInput(1, "carol"))
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeInvalidTransition, api.Code)
	assert.Equal(t, status.PreEntry, f.state.items[1].Status)
}

func TestOpen_skipsItemWithPendingRequest(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Name: "scope", Status: status.InStorage}
	f.state.items[2] = &ItemRow{ID: 2, Name: "probe", Status: status.CheckoutRequested}
	svc, _, _ := newTestService(f)

	in := checkoutInput(1, "carol")
	in.Items = append(in.Items, OpenItem{ItemID: 2, QuantityConfirmed: true, Owners: []string{"carol"}})

	opened, warnings, err := svc.Open(ctx, applicant, in)
	require.NoError(t, err)
	assert.Len(t, opened, 1)
	assert.Equal(t, int64(1), opened[0].ItemID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "item 2")
	assert.Equal(t, status.CheckoutRequested, f.state.items[2].Status)
}

// 一括承認の部分失敗：枝番不足のアイテムだけスキップして残りは通す
func TestApproveBatch_insufficientBranchesSkips(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Name: "scope", Status: status.InStorage}
	f.state.items[2] = &ItemRow{ID: 2, Name: "probe", Status: status.InStorage}
	// item 2 は生存1本のみ（1本は譲渡済）
	f.state.branches[2] = []branches.Branch{
		{ItemID: 2, BranchNo: 1, Status: status.BranchTransferred},
		{ItemID: 2, BranchNo: 2, Status: status.BranchReturned},
	}
	svc, _, _ := newTestService(f)

	in := checkoutInput(1, "carol")
	in.Items = append(in.Items, OpenItem{ItemID: 2, QuantityConfirmed: true, Owners: []string{"carol", "dave"}})
	opened, _, err := svc.Open(ctx, applicant, in)
	require.NoError(t, err)
	require.Len(t, opened, 2)

	warnings, err := svc.ApproveBatch(ctx, approver, []int64{opened[0].RequestID, opened[1].RequestID}, "ok")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "request")

	// item 1 は承認済み、item 2 は手つかずのまま pending
	assert.Equal(t, status.CheckedOut, f.state.items[1].Status)
	assert.Equal(t, status.CheckoutRequested, f.state.items[2].Status)
	assert.Equal(t, RequestPending, f.state.requests[opened[1].RequestID].Status)
	assert.Equal(t, status.BranchTransferred, f.state.branches[2][0].Status)
	assert.Equal(t, status.BranchReturned, f.state.branches[2][1].Status)
}

// 破棄承認：指定枝番のみ終端へ、既存の終端は不変、アイテムは元状態へ戻る
func TestApprove_disposeTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[3] = &ItemRow{ID: 3, Name: "jig", Status: status.InStorage}
	f.state.branches[3] = []branches.Branch{
		{ItemID: 3, BranchNo: 1, Owner: "", Status: status.BranchTransferred},
		{ItemID: 3, BranchNo: 2, Owner: "carol", Status: status.BranchInCustody},
		{ItemID: 3, BranchNo: 3, Owner: "dave", Status: status.BranchInCustody},
	}
	svc, _, _ := newTestService(f)

	in := OpenInput{
		Kind:     status.KindDisposeTransfer,
		Approver: "alice",
		Dispose:  &DisposeInput{Type: DisposeTypeDispose, Date: "2025-05-01", Handler: "vendor"},
		Items:    []OpenItem{{ItemID: 3, QuantityConfirmed: true, DisposeBranchNos: []int{2}}},
	}
	opened, _, err := svc.Open(ctx, applicant, in)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, approver, opened[0].RequestID, "ok")
	require.NoError(t, err)

	assert.Equal(t, status.InStorage, f.state.items[3].Status) // 元の状態へ復帰
	assert.Equal(t, status.BranchTransferred, f.state.branches[3][0].Status)
	assert.Equal(t, status.BranchDisposed, f.state.branches[3][1].Status)
	assert.Equal(t, "", f.state.branches[3][1].Owner)
	assert.Equal(t, status.BranchInCustody, f.state.branches[3][2].Status)
	assert.Equal(t, "dave", f.state.branches[3][2].Owner)
}

// 返却承認：生存枝番を一括返却、アイテムは入庫へ
func TestApprove_return(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[4] = &ItemRow{ID: 4, Name: "meter", Status: status.CheckedOut}
	f.state.branches[4] = []branches.Branch{
		{ItemID: 4, BranchNo: 1, Owner: "carol", Status: status.BranchCheckedOut},
		{ItemID: 4, BranchNo: 2, Owner: "", Status: status.BranchDisposed},
	}
	svc, _, _ := newTestService(f)

	in := OpenInput{
		Kind:     status.KindReturn,
		Approver: "alice",
		Return:   &ReturnPayload{Date: "2025-05-01", Storage: "B1"},
		Items:    []OpenItem{{ItemID: 4, QuantityConfirmed: true}},
	}
	opened, _, err := svc.Open(ctx, applicant, in)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, approver, opened[0].RequestID, "ok")
	require.NoError(t, err)

	assert.Equal(t, status.InStorage, f.state.items[4].Status)
	assert.Equal(t, status.BranchReturned, f.state.branches[4][0].Status)
	assert.Equal(t, "", f.state.branches[4][0].Owner)
	assert.Equal(t, status.BranchDisposed, f.state.branches[4][1].Status)
}

// 入庫承認：承認者の部署が承認グループとして残る
func TestApprove_entrySetsApprovalGroup(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[5] = &ItemRow{ID: 5, Name: "sensor", Status: status.PreEntry}
	svc, _, _ := newTestService(f)

	in := OpenInput{
		Kind: status.KindEntry, Approver: "alice", Manager: "dave",
		Items: []OpenItem{{ItemID: 5, QuantityConfirmed: true}},
	}
	opened, _, err := svc.Open(ctx, applicant, in)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, approver, opened[0].RequestID, "ok")
	require.NoError(t, err)

	assert.Equal(t, status.InStorage, f.state.items[5].Status)
	assert.Equal(t, "dave", f.state.items[5].Manager)
	assert.Equal(t, "qa", f.state.items[5].ApprovalGroup)
}

func TestCancel_rules(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Name: "scope", Status: status.InStorage}
	svc, _, _ := newTestService(f)

	opened, _, err := svc.Open(ctx, applicant, checkoutInput(1, "carol"))
	require.NoError(t, err)
	id := opened[0].RequestID

	// 申請者以外は取り下げ不可
	err = svc.Cancel(ctx, approver, id, "mine now")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeForbidden, api.Code)
	assert.Equal(t, RequestPending, f.state.requests[id].Status)

	// 本人は取り下げでき、状態が戻る
	require.NoError(t, svc.Cancel(ctx, applicant, id, "changed my mind"))
	assert.Equal(t, RequestCancelled, f.state.requests[id].Status)
	assert.Equal(t, status.InStorage, f.state.items[1].Status)

	// 承認済みの申請は取り下げ不可（何も変更しない）
	opened, _, err = svc.Open(ctx, applicant, checkoutInput(1, "carol"))
	require.NoError(t, err)
	id = opened[0].RequestID
	_, err = svc.Approve(ctx, approver, id, "ok")
	require.NoError(t, err)

	before := f.state.clone()
	err = svc.Cancel(ctx, applicant, id, "too late")
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeInvalidState, api.Code)
	assert.Equal(t, before.items[1], f.state.items[1])
	assert.Equal(t, before.requests[id].Status, f.state.requests[id].Status)
}

func TestListPendingForApprover_withPreview(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.state.items[1] = &ItemRow{ID: 1, Name: "scope", Status: status.InStorage}
	f.state.branches[1] = []branches.Branch{
		{ItemID: 1, BranchNo: 1, Status: status.BranchTransferred},
		{ItemID: 1, BranchNo: 2, Status: status.BranchReturned},
		{ItemID: 1, BranchNo: 5, Status: status.BranchReturned},
	}
	svc, _, _ := newTestService(f)

	_, _, err := svc.Open(ctx, applicant, checkoutInput(1, "carol", "dave"))
	require.NoError(t, err)

	pending, err := svc.ListPendingForApprover(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	// 終端の1番は飛ばし、生存の 2,5 が割り当て候補になる
	require.Len(t, pending[0].AssignmentPreview, 2)
	assert.Equal(t, 2, pending[0].AssignmentPreview[0].BranchNo)
	assert.Equal(t, "carol", pending[0].AssignmentPreview[0].Owner)
	assert.Equal(t, 5, pending[0].AssignmentPreview[1].BranchNo)
	assert.Equal(t, "dave", pending[0].AssignmentPreview[1].Owner)

	none, err := svc.ListPendingForApprover(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, none)
}
