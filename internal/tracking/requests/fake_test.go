package requests

import (
	"context"
	"fmt"
	"time"

	"SAMS-backend/internal/platform/notify"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/history"
	"SAMS-backend/internal/tracking/status"
)

// テスト用のメモリ実装。InTx はコピーの上で fn を実行し、
// 成功時のみ反映する（SQL実装のロールバックに相当）。

type span struct {
	itemID    int64
	startDate string
	endDate   string
}

type fakeState struct {
	items     map[int64]*ItemRow
	branches  map[int64][]branches.Branch
	requests  map[int64]*ChangeRequest
	nextReqID int64
	spans     []span
	history   []history.Record
}

func newFakeState() *fakeState {
	return &fakeState{
		items:     map[int64]*ItemRow{},
		branches:  map[int64][]branches.Branch{},
		requests:  map[int64]*ChangeRequest{},
		nextReqID: 1,
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.nextReqID = s.nextReqID
	for id, it := range s.items {
		cp := *it
		c.items[id] = &cp
	}
	for id, bs := range s.branches {
		c.branches[id] = append([]branches.Branch(nil), bs...)
	}
	for id, r := range s.requests {
		cp := *r
		c.requests[id] = &cp
	}
	c.spans = append([]span(nil), s.spans...)
	c.history = append([]history.Record(nil), s.history...)
	return c
}

type fakeStore struct{ state *fakeState }

func newFakeStore() *fakeStore { return &fakeStore{state: newFakeState()} }

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	work := f.state.clone()
	if err := fn(ctx, &fakeTx{s: work}); err != nil {
		return err
	}
	f.state = work
	return nil
}

func (f *fakeStore) ReadTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return fn(ctx, &fakeTx{s: f.state})
}

type fakeTx struct{ s *fakeState }

func (t *fakeTx) GetItemForUpdate(_ context.Context, itemID int64) (*ItemRow, error) {
	it, ok := t.s.items[itemID]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (t *fakeTx) SetItemStatus(_ context.Context, itemID int64, st status.Status) error {
	t.s.items[itemID].Status = st
	return nil
}

func (t *fakeTx) SetItemManager(_ context.Context, itemID int64, manager string) error {
	t.s.items[itemID].Manager = manager
	return nil
}

func (t *fakeTx) SetItemApprovalGroup(_ context.Context, itemID int64, group string) error {
	t.s.items[itemID].ApprovalGroup = group
	return nil
}

func (t *fakeTx) UpdateItemFields(_ context.Context, itemID int64, fields map[string]any) error {
	it := t.s.items[itemID]
	if v, ok := fields["name"].(string); ok {
		it.Name = v
	}
	if v, ok := fields["quantity"].(int); ok {
		it.Quantity = v
	}
	return nil
}

func (t *fakeTx) InsertCheckoutSpan(_ context.Context, itemID int64, startDate, endDate string) error {
	t.s.spans = append(t.s.spans, span{itemID: itemID, startDate: startDate, endDate: endDate})
	return nil
}

func (t *fakeTx) InsertRequest(_ context.Context, r ChangeRequest) (int64, error) {
	r.ID = t.s.nextReqID
	t.s.nextReqID++
	t.s.requests[r.ID] = &r
	return r.ID, nil
}

func (t *fakeTx) GetRequestForUpdate(_ context.Context, id int64) (*ChangeRequest, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (t *fakeTx) ResolveRequest(_ context.Context, id int64, to RequestStatus, approver, comment string, at time.Time) (bool, error) {
	r, ok := t.s.requests[id]
	if !ok || r.Status != RequestPending {
		return false, nil
	}
	r.Status = to
	r.Approver = approver
	r.ApproverComment = comment
	r.ResolutionDatetime.Time = at
	r.ResolutionDatetime.Valid = true
	return true, nil
}

func (t *fakeTx) ListPendingByApprover(_ context.Context, approver string) ([]ChangeRequest, error) {
	var out []ChangeRequest
	for id := int64(1); id < t.s.nextReqID; id++ {
		if r, ok := t.s.requests[id]; ok && r.Approver == approver && r.Status == RequestPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (t *fakeTx) ListByApplicant(_ context.Context, applicant string, statusFilter RequestStatus) ([]ChangeRequest, error) {
	var out []ChangeRequest
	for id := int64(1); id < t.s.nextReqID; id++ {
		r, ok := t.s.requests[id]
		if !ok || r.Applicant != applicant {
			continue
		}
		if statusFilter != "" && r.Status != statusFilter {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (t *fakeTx) ListBranches(_ context.Context, itemID int64) ([]branches.Branch, error) {
	return append([]branches.Branch(nil), t.s.branches[itemID]...), nil
}

func (t *fakeTx) ApplyAssignments(_ context.Context, itemID int64, plan []branches.Assignment, st status.BranchStatus) error {
	for _, a := range plan {
		if a.Create {
			t.s.branches[itemID] = append(t.s.branches[itemID], branches.Branch{
				ItemID: itemID, BranchNo: a.BranchNo, Owner: a.Owner, Status: st,
			})
			continue
		}
		for i, b := range t.s.branches[itemID] {
			if b.BranchNo == a.BranchNo && !b.Status.Terminal() {
				t.s.branches[itemID][i].Owner = a.Owner
				t.s.branches[itemID][i].Status = st
			}
		}
	}
	return nil
}

func (t *fakeTx) MarkBranchesTerminal(_ context.Context, itemID int64, branchNos []int, st status.BranchStatus, comment, date string) error {
	for _, no := range branchNos {
		for i, b := range t.s.branches[itemID] {
			if b.BranchNo == no && !b.Status.Terminal() {
				t.s.branches[itemID][i].Status = st
				t.s.branches[itemID][i].Owner = ""
			}
		}
	}
	return nil
}

func (t *fakeTx) ReturnAliveBranches(_ context.Context, itemID int64) error {
	for i, b := range t.s.branches[itemID] {
		if !b.Status.Terminal() {
			t.s.branches[itemID][i].Status = status.BranchReturned
			t.s.branches[itemID][i].Owner = ""
		}
	}
	return nil
}

func (t *fakeTx) AppendHistory(_ context.Context, r history.Record) error {
	t.s.history = append(t.s.history, r)
	return nil
}

// ---------- 協力オブジェクト ----------

type fakeDirectory struct{ custodians map[string]bool }

func (d *fakeDirectory) IsCustodian(_ context.Context, username string) (bool, error) {
	return d.custodians[username], nil
}

func (d *fakeDirectory) EmailsFor(_ context.Context, usernames []string) ([]string, error) {
	var out []string
	for _, u := range usernames {
		if u != "" {
			out = append(out, u+"@example.com")
		}
	}
	return out, nil
}

type fakeNotifier struct{ sent []notify.Message }

func (n *fakeNotifier) Send(_ context.Context, m notify.Message) error {
	n.sent = append(n.sent, m)
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct{ n int }

func (g *seqIDGen) New() (string, error) {
	g.n++
	return fmt.Sprintf("01TEST%010d", g.n), nil
}

func newTestService(f *fakeStore) (*Service, *fakeNotifier, *fakeClock) {
	n := &fakeNotifier{}
	clk := &fakeClock{now: time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)}
	svc := &Service{
		store:    f,
		dir:      &fakeDirectory{custodians: map[string]bool{"alice": true, "dave": true}},
		notifier: n,
		clock:    clk,
		id:       &seqIDGen{},
	}
	return svc, n, clk
}
