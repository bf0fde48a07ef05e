package requests

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/platform/notify"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/history"
	"SAMS-backend/internal/tracking/status"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Directory はユーザー台帳への参照（auth.Service が満たす）
type Directory interface {
	IsCustodian(ctx context.Context, username string) (bool, error)
	EmailsFor(ctx context.Context, usernames []string) ([]string, error)
}

// ===== Service本体 =====

type Service struct {
	store    Store
	dir      Directory
	notifier notify.Notifier
	clock    Clock
	id       IDGen
}

func NewService(store Store, dir Directory, notifier notify.Notifier) *Service {
	return &Service{store: store, dir: dir, notifier: notifier, clock: realClock{}, id: ulidGen{}}
}

// ===== 起票 =====

// OpenItem は起票対象のアイテム1件分の指定
type OpenItem struct {
	ItemID            int64    `json:"item_id"`
	QuantityConfirmed bool     `json:"quantity_confirmed"`
	Owners            []string `json:"owners,omitempty"`
	TransferBranchNos []int    `json:"transfer_branch_nos,omitempty"`
	DisposeBranchNos  []int    `json:"dispose_branch_nos,omitempty"`
}

type OpenInput struct {
	Kind             status.Kind    `json:"kind"`
	Approver         string         `json:"approver"`
	ApplicantComment string         `json:"applicant_comment"`
	Manager          string         `json:"manager,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
	Checkout         *CheckoutInput `json:"checkout,omitempty"`
	Transfer         *TransferInput `json:"transfer,omitempty"`
	Dispose          *DisposeInput  `json:"dispose,omitempty"`
	Return           *ReturnPayload `json:"return,omitempty"`
	Items            []OpenItem     `json:"items"`
}

type CheckoutInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type TransferInput struct {
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

type DisposeInput struct {
	Type    string `json:"type"`
	Date    string `json:"date"`
	Handler string `json:"handler"`
	Comment string `json:"comment"`
}

type Opened struct {
	RequestID   int64  `json:"request_id"`
	RequestULID string `json:"request_ulid"`
	ItemID      int64  `json:"item_id"`
}

// buildPayload は item 1件分の保存用ペイロードを組み立てる
func (in OpenInput) buildPayload(it OpenItem) Payload {
	p := Payload{Kind: in.Kind, Manager: in.Manager, Fields: in.Fields, Return: in.Return}
	if in.Checkout != nil {
		p.Checkout = &CheckoutPayload{
			StartDate: in.Checkout.StartDate,
			EndDate:   in.Checkout.EndDate,
			Owners:    it.Owners,
		}
	}
	if in.Transfer != nil {
		p.Transfer = &TransferPayload{
			BranchNos: it.TransferBranchNos,
			Comment:   in.Transfer.Comment,
			Date:      in.Transfer.Date,
		}
	}
	if in.Dispose != nil {
		p.Dispose = &DisposePayload{
			Type:      in.Dispose.Type,
			Date:      in.Dispose.Date,
			Handler:   in.Dispose.Handler,
			Comment:   in.Dispose.Comment,
			BranchNos: it.DisposeBranchNos,
		}
	}
	return p
}

// validateOpen は全違反を集める。途中で打ち切らない。
func (s *Service) validateOpen(ctx context.Context, in OpenInput) ([]string, error) {
	var v []string

	if !in.Kind.Valid() {
		return []string{fmt.Sprintf("unknown request kind %q", in.Kind)}, nil
	}
	if in.Approver == "" {
		v = append(v, "approver must be set")
	}
	if len(in.Items) == 0 {
		v = append(v, "at least one item is required")
	}
	if entryKinds.has(in.Kind) && in.Manager != "" {
		ok, err := s.dir.IsCustodian(ctx, in.Manager)
		if err != nil {
			return nil, err
		}
		if !ok {
			v = append(v, fmt.Sprintf("manager %q is not a valid custodian", in.Manager))
		}
	}
	for i, it := range in.Items {
		if !it.QuantityConfirmed {
			v = append(v, fmt.Sprintf("item #%d: quantity check must be acknowledged", i+1))
		}
	}
	for i, it := range in.Items {
		for _, pv := range in.buildPayload(it).Validate() {
			v = append(v, fmt.Sprintf("item #%d: %s", i+1, pv))
		}
	}
	return v, nil
}

// Open はアイテムごとに申請を起票し、暫定（申請中）状態を即時に書く。
// 検査に1件でも落ちれば何も変更しない。起票中に他者が状態を変えた
// アイテムは警告付きでスキップし、残りは続行する。
func (s *Service) Open(ctx context.Context, actor auth.Actor, in OpenInput) ([]Opened, []string, error) {
	violations, err := s.validateOpen(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		return nil, nil, NewValidationError(violations)
	}

	var (
		opened   []Opened
		warnings []string
	)
	provisional := status.Provisional(in.Kind)
	now := s.clock.Now()

	err = s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, it := range in.Items {
			item, err := tx.GetItemForUpdate(ctx, it.ItemID)
			if err != nil {
				return err
			}
			if item == nil {
				return NewNotFoundError(fmt.Sprintf("item %d not found", it.ItemID))
			}
			if !status.CanTransition(item.Status, in.Kind) {
				if item.Status.Pending() {
					// 別の申請が先行して状態を変えた：このアイテムだけ見送る
					warnings = append(warnings,
						fmt.Sprintf("item %d (%s) skipped: already has a pending request", item.ID, item.Name))
					continue
				}
				return NewInvalidTransitionError(
					fmt.Sprintf("item %d: cannot open %s request from status %q", item.ID, in.Kind, item.Status))
			}

			uid, err := s.id.New()
			if err != nil {
				return err
			}
			req := ChangeRequest{
				RequestULID:         uid,
				ItemID:              sql.NullInt64{Int64: item.ID, Valid: true},
				Applicant:           actor.Username,
				ApplicantComment:    in.ApplicantComment,
				Approver:            in.Approver,
				Status:              RequestPending,
				Payload:             in.buildPayload(it),
				OriginalStatus:      item.Status,
				ApplicationDatetime: now,
			}
			id, err := tx.InsertRequest(ctx, req)
			if err != nil {
				return err
			}
			if err := tx.SetItemStatus(ctx, item.ID, provisional); err != nil {
				return err
			}
			opened = append(opened, Opened{RequestID: id, RequestULID: uid, ItemID: item.ID})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(opened) > 0 {
		if w := s.notifyOpened(ctx, actor, in, len(opened)); w != "" {
			warnings = append(warnings, w)
		}
	}
	return opened, warnings, nil
}

// 通知はベストエフォート。失敗は警告として返すだけで処理は巻き戻さない。
func (s *Service) notifyOpened(ctx context.Context, actor auth.Actor, in OpenInput, count int) string {
	to, err := s.dir.EmailsFor(ctx, []string{in.Approver})
	if err != nil || len(to) == 0 {
		return "approval notification skipped: approver address unknown"
	}
	m := notify.Message{
		To:      to,
		Subject: fmt.Sprintf("[SAMS] %s request from %s", in.Kind, actor.Username),
		Body:    fmt.Sprintf("%s opened %d %s request(s). Please review.", actor.Username, count, in.Kind),
	}
	if err := s.notifier.Send(ctx, m); err != nil {
		log.Printf("[WARN] notify failed: %v", err)
		return "approval notification could not be sent"
	}
	return ""
}

// ===== 承認 =====

// Approve は申請1件を承認し、種別ごとの反映をひとつのトランザクションで行う。
// 申請の pending→approved はCAS：すでに解決済みなら ALREADY_RESOLVED を返し、
// 何も変更しない（二重承認の防止）。
func (s *Service) Approve(ctx context.Context, actor auth.Actor, requestID int64, comment string) ([]string, error) {
	var (
		warnings []string
		resolved *ChangeRequest
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
		}
		resolved = req

		ok, err := tx.ResolveRequest(ctx, requestID, RequestApproved, actor.Username, comment, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return NewAlreadyResolvedError()
		}

		if !req.ItemID.Valid {
			// アイテムが先に削除されている（FKはSET NULL）：記録だけ残す
			warnings = append(warnings, fmt.Sprintf("request %d: item no longer exists, nothing materialized", requestID))
			return s.appendResolutionHistory(ctx, tx, req, actor, comment, history.ResolutionApproved)
		}
		itemID := req.ItemID.Int64

		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			warnings = append(warnings, fmt.Sprintf("request %d: item %d no longer exists", requestID, itemID))
			return s.appendResolutionHistory(ctx, tx, req, actor, comment, history.ResolutionApproved)
		}

		if err := s.materialize(ctx, tx, actor, req, item); err != nil {
			return err
		}
		return s.appendResolutionHistory(ctx, tx, req, actor, comment, history.ResolutionApproved)
	})
	if err != nil {
		return nil, err
	}

	s.notifyResolved(ctx, actor, "approved", resolved)
	return warnings, nil
}

// materialize は承認時の種別ごとの反映。ワークフローの心臓部。
func (s *Service) materialize(ctx context.Context, tx TxStore, actor auth.Actor, req *ChangeRequest, item *ItemRow) error {
	p := req.Payload
	itemID := item.ID

	// 記述フィールドの反映（status は含めない）
	if err := tx.UpdateItemFields(ctx, itemID, p.Fields); err != nil {
		return err
	}
	if p.Manager != "" {
		if err := tx.SetItemManager(ctx, itemID, p.Manager); err != nil {
			return err
		}
	}
	// 入庫系は承認者の部署を承認グループとして記録する
	if entryKinds.has(p.Kind) && actor.Department != "" {
		if err := tx.SetItemApprovalGroup(ctx, itemID, actor.Department); err != nil {
			return err
		}
	}

	// 持出を伴う種別：枝番割り当てと持出期間の記録
	if checkoutKinds.has(p.Kind) {
		existing, err := tx.ListBranches(ctx, itemID)
		if err != nil {
			return err
		}
		plan, err := branches.Plan(itemID, existing, p.Checkout.Owners)
		if err != nil {
			var insuf *branches.InsufficientError
			if errors.As(err, &insuf) {
				return NewInsufficientBranchesError(insuf.Error())
			}
			return err
		}
		if err := tx.ApplyAssignments(ctx, itemID, plan, status.BranchCheckedOut); err != nil {
			return err
		}
		if err := tx.InsertCheckoutSpan(ctx, itemID, p.Checkout.StartDate, p.Checkout.EndDate); err != nil {
			return err
		}
	}

	// 譲渡を伴う種別：申請時に選択済みの枝番を終端にする
	if transferKinds.has(p.Kind) {
		if err := tx.MarkBranchesTerminal(ctx, itemID, p.Transfer.BranchNos,
			status.BranchTransferred, p.Transfer.Comment, p.Transfer.Date); err != nil {
			return err
		}
	}

	switch p.Kind {
	case status.KindReturn:
		if err := tx.ReturnAliveBranches(ctx, itemID); err != nil {
			return err
		}
	case status.KindDisposeTransfer:
		terminal := status.BranchDisposed
		if p.Dispose.Type == DisposeTypeTransfer {
			terminal = status.BranchTransferred
		}
		note := p.Dispose.Comment
		if p.Dispose.Handler != "" {
			note = fmt.Sprintf("%s (handler: %s)", note, p.Dispose.Handler)
		}
		if err := tx.MarkBranchesTerminal(ctx, itemID, p.Dispose.BranchNos, terminal, note, p.Dispose.Date); err != nil {
			return err
		}
	}

	// アイテム状態の確定。dispose_transfer だけは元の状態へ戻す
	// （終端化は枝番にのみ作用する）。
	target, ok := status.ApprovalTarget(p.Kind)
	if !ok {
		target = req.OriginalStatus
	}
	return tx.SetItemStatus(ctx, itemID, target)
}

// ApproveBatch は複数申請の一括承認。枝番不足はそのアイテムだけ
// 警告にして残りを続行する（部分失敗、全or無ではない）。
func (s *Service) ApproveBatch(ctx context.Context, actor auth.Actor, requestIDs []int64, comment string) ([]string, error) {
	var warnings []string
	for _, id := range requestIDs {
		w, err := s.Approve(ctx, actor, id, comment)
		if err != nil {
			var api *APIError
			if errors.As(err, &api) &&
				(api.Code == CodeInsufficientBranches || api.Code == CodeAlreadyResolved) {
				warnings = append(warnings, fmt.Sprintf("request %d skipped: %s", id, api.Message))
				continue
			}
			return warnings, err
		}
		warnings = append(warnings, w...)
	}
	return warnings, nil
}

// ===== 差し戻し・取り下げ =====

// Reject は申請を差し戻し、アイテム状態を起票前へ戻す
func (s *Service) Reject(ctx context.Context, actor auth.Actor, requestID int64, comment string) error {
	req, err := s.resolveAndRestore(ctx, requestID, RequestRejected, actor, comment, history.ResolutionRejected, nil)
	if err != nil {
		return err
	}
	s.notifyResolved(ctx, actor, "rejected", req)
	return nil
}

// Cancel は申請者本人のみ、pending の間だけ取り下げできる
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, requestID int64, comment string) error {
	guard := func(req *ChangeRequest) error {
		if req.Applicant != actor.Username {
			return NewForbiddenError("only the applicant may cancel a request")
		}
		return nil
	}
	_, err := s.resolveAndRestore(ctx, requestID, RequestCancelled, actor, comment, history.ResolutionCancelled, guard)
	return err
}

func (s *Service) resolveAndRestore(ctx context.Context, requestID int64, to RequestStatus,
	actor auth.Actor, comment, resolution string, guard func(*ChangeRequest) error) (*ChangeRequest, error) {
	var resolved *ChangeRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
		}
		resolved = req
		if guard != nil {
			if err := guard(req); err != nil {
				return err
			}
		}
		if req.Status != RequestPending {
			if to == RequestCancelled {
				return NewInvalidStateError("only pending requests can be cancelled")
			}
			return NewAlreadyResolvedError()
		}

		ok, err := tx.ResolveRequest(ctx, requestID, to, actor.Username, comment, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return NewAlreadyResolvedError()
		}

		if req.ItemID.Valid {
			if err := tx.SetItemStatus(ctx, req.ItemID.Int64, req.OriginalStatus); err != nil {
				return err
			}
		}
		return s.appendResolutionHistory(ctx, tx, req, actor, comment, resolution)
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ===== 履歴・通知の共通処理 =====

func actionLabel(k status.Kind) string {
	switch k {
	case status.KindEntry:
		return "entry request"
	case status.KindEntryCheckout:
		return "entry + checkout request"
	case status.KindEntryCheckoutTransfer:
		return "entry + checkout + transfer request"
	case status.KindCheckout:
		return "checkout request"
	case status.KindCheckoutTransfer:
		return "checkout + transfer request"
	case status.KindReturn:
		return "return request"
	case status.KindDisposeTransfer:
		return "dispose/transfer request"
	}
	return string(k)
}

func (s *Service) appendResolutionHistory(ctx context.Context, tx TxStore, req *ChangeRequest,
	actor auth.Actor, comment, resolution string) error {
	uid, err := s.id.New()
	if err != nil {
		return err
	}
	return tx.AppendHistory(ctx, history.Record{
		RecordULID:          uid,
		ItemID:              req.ItemID,
		Applicant:           req.Applicant,
		Action:              actionLabel(req.Payload.Kind),
		ApplicantComment:    req.ApplicantComment,
		ApplicationDatetime: req.ApplicationDatetime,
		Approver:            sql.NullString{String: actor.Username, Valid: true},
		ApproverComment:     comment,
		Resolution:          resolution,
		ResolutionDatetime:  s.clock.Now(),
	})
}

func (s *Service) notifyResolved(ctx context.Context, actor auth.Actor, outcome string, req *ChangeRequest) {
	// 宛先は申請者。失敗してもログのみ。
	if req == nil {
		return
	}
	to, err := s.dir.EmailsFor(ctx, []string{req.Applicant})
	if err != nil || len(to) == 0 {
		return
	}
	err = s.notifier.Send(ctx, notify.Message{
		To:      to,
		Subject: fmt.Sprintf("[SAMS] request %s", outcome),
		Body:    fmt.Sprintf("Your %s was %s by %s.", actionLabel(req.Payload.Kind), outcome, actor.Username),
	})
	if err != nil {
		log.Printf("[WARN] notify failed: %v", err)
	}
}

// ===== 一覧 =====

// PendingRequest は承認画面1行分。持出系は枝番割り当てのプレビュー付き。
type PendingRequest struct {
	ChangeRequest
	AssignmentPreview []branches.Assignment `json:"assignment_preview,omitempty"`
	PreviewWarning    string                `json:"preview_warning,omitempty"`
}

func (s *Service) ListPendingForApprover(ctx context.Context, approver string) ([]PendingRequest, error) {
	var out []PendingRequest
	err := s.store.ReadTx(ctx, func(ctx context.Context, tx TxStore) error {
		reqs, err := tx.ListPendingByApprover(ctx, approver)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			pr := PendingRequest{ChangeRequest: r}
			if checkoutKinds.has(r.Payload.Kind) && r.ItemID.Valid {
				existing, err := tx.ListBranches(ctx, r.ItemID.Int64)
				if err != nil {
					return err
				}
				plan, err := branches.Plan(r.ItemID.Int64, existing, r.Payload.Checkout.Owners)
				if err != nil {
					pr.PreviewWarning = err.Error()
				} else {
					pr.AssignmentPreview = plan
				}
			}
			out = append(out, pr)
		}
		return nil
	})
	return out, err
}

func (s *Service) ListByApplicant(ctx context.Context, applicant string, statusFilter RequestStatus) ([]ChangeRequest, error) {
	var out []ChangeRequest
	err := s.store.ReadTx(ctx, func(ctx context.Context, tx TxStore) (e error) {
		out, e = tx.ListByApplicant(ctx, applicant, statusFilter)
		return
	})
	return out, err
}
