package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/platform/db"
	"SAMS-backend/internal/platform/notify"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/history"
	"SAMS-backend/internal/tracking/locks"
	"SAMS-backend/internal/tracking/status"
)

// ErrItemNotFound は対象アイテム不在。ハンドラ側で 404 に振り分ける。
var ErrItemNotFound = errors.New("item not found")

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Directory はユーザー台帳への参照（auth.Service が満たす）
type Directory interface {
	IsCustodian(ctx context.Context, username string) (bool, error)
	EmailsFor(ctx context.Context, usernames []string) ([]string, error)
}

type Service struct {
	db       *sql.DB
	store    *Store
	branches *branches.Store
	locks    *locks.Service
	history  *history.Service
	dir      Directory
	notifier notify.Notifier
	clock    Clock
}

func NewService(sqldb *sql.DB, lockSvc *locks.Service, histSvc *history.Service,
	dir Directory, notifier notify.Notifier) *Service {
	return &Service{
		db:       sqldb,
		store:    NewStore(),
		branches: branches.NewStore(),
		locks:    lockSvc,
		history:  histSvc,
		dir:      dir,
		notifier: notifier,
		clock:    realClock{},
	}
}

// ===== 登録 =====

type CreateInput struct {
	Name       string         `json:"name" binding:"required"`
	Category   string         `json:"category"`
	Storage    string         `json:"storage"`
	Quantity   int            `json:"quantity"`
	Manager    string         `json:"manager"`
	Attributes map[string]any `json:"attributes"`
}

// Create は未入庫（pre_entry）でアイテムを登録する。
// 管理者未指定なら登録者本人。
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (int64, error) {
	manager := in.Manager
	if manager == "" {
		manager = actor.Username
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}
	var id int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) (e error) {
		id, e = s.store.Insert(ctx, tx, Item{
			Name:       in.Name,
			Category:   in.Category,
			Storage:    in.Storage,
			Quantity:   qty,
			Manager:    manager,
			Status:     status.PreEntry,
			Attributes: in.Attributes,
			CreatedAt:  s.clock.Now(),
		})
		return
	})
	return id, err
}

// ===== 一覧 =====

// List は一覧を返す。先に期限切れロックを掃除する（失敗はログのみ）。
func (s *Service) List(ctx context.Context, f ListFilter) ([]ListedItem, error) {
	if _, err := s.locks.SweepExpired(ctx); err != nil {
		log.Printf("[WARN] lock sweep failed: %v", err)
	}
	var out []ListedItem
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) (e error) {
		out, e = s.store.List(ctx, tx, f)
		return
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	var out *Item
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) (e error) {
		out, e = s.store.Get(ctx, tx, id)
		return
	})
	return out, err
}

func (s *Service) ListBranches(ctx context.Context, itemID int64) ([]branches.Branch, error) {
	var out []branches.Branch
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) (e error) {
		out, e = s.branches.ListByItem(ctx, tx, itemID)
		return
	})
	return out, err
}

// ===== 一括編集（ロック必須の直接編集） =====

type EditItem struct {
	ItemID int64      `json:"item_id"`
	Fields EditFields `json:"fields"`
}

// BulkEdit はロック保持者本人による記述フィールドの一括更新。
// 編集可能状態（pre_entry / in_storage / checked_out）以外と、
// 他者ロック中の行はスキップして警告する。確定後はロックを解放する。
func (s *Service) BulkEdit(ctx context.Context, actor auth.Actor, edits []EditItem) ([]string, error) {
	var (
		warnings []string
		ids      []int64
	)
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, e := range edits {
			st, _, lockedBy, err := s.store.GetForUpdate(ctx, tx, e.ItemID)
			if err == sql.ErrNoRows {
				warnings = append(warnings, fmt.Sprintf("item %d not found", e.ItemID))
				continue
			}
			if err != nil {
				return err
			}
			if lockedBy.Valid && lockedBy.String != "" && lockedBy.String != actor.Username {
				warnings = append(warnings, fmt.Sprintf("item %d skipped: locked by %s", e.ItemID, lockedBy.String))
				continue
			}
			if !st.Editable() {
				warnings = append(warnings, fmt.Sprintf("item %d skipped: status %q is not editable", e.ItemID, st))
				continue
			}
			if err := s.store.UpdateFields(ctx, tx, e.ItemID, e.Fields); err != nil {
				return err
			}
			ids = append(ids, e.ItemID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.locks.Release(ctx, ids); err != nil {
		log.Printf("[WARN] lock release failed: %v", err)
	}
	return warnings, nil
}

// CancelEdit は編集を確定せずロックだけ返す
func (s *Service) CancelEdit(ctx context.Context, actor auth.Actor) (int64, error) {
	return s.locks.ReleaseMine(ctx, actor.Username)
}

// ===== 管理者・所有者の直接変更（承認不要経路） =====

// BulkChangeManager は入庫中・持出中のアイテムの管理者を付け替える。
// 状態は書き込み直前に再検証する。
func (s *Service) BulkChangeManager(ctx context.Context, actor auth.Actor, itemIDs []int64, newManager string) ([]string, error) {
	ok, err := s.dir.IsCustodian(ctx, newManager)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("manager %q is not a valid custodian", newManager)
	}

	var warnings []string
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, id := range itemIDs {
			changed, err := s.store.UpdateManager(ctx, tx, id, newManager)
			if err != nil {
				return err
			}
			if !changed {
				warnings = append(warnings, fmt.Sprintf("item %d skipped: not in storage or checked out", id))
			}
		}
		return nil
	})
	return warnings, err
}

// ChangeOwner は持出中アイテムの枝番所有者を直接変更する。
// 終端枝番は対象外。履歴には「承認不要」として残し、管理者へ通知する。
func (s *Service) ChangeOwner(ctx context.Context, actor auth.Actor, itemID int64, branchNo int, newOwner string) error {
	var manager string
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		st, m, _, err := s.store.GetForUpdate(ctx, tx, itemID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
		}
		if err != nil {
			return err
		}
		if st != status.CheckedOut {
			return fmt.Errorf("item %d: owner change requires checked_out status (now %q)", itemID, st)
		}
		manager = m

		changed, err := s.branches.UpdateOwner(ctx, tx, itemID, branchNo, newOwner)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("item %d branch %d: not found or already disposed/transferred", itemID, branchNo)
		}

		return s.history.AppendTx(ctx, tx, history.Entry{
			ItemID:     itemID,
			Applicant:  actor.Username,
			Action:     "owner change",
			Approver:   actor.Username,
			Resolution: history.ResolutionNoApproval,
		})
	})
	if err != nil {
		return err
	}

	// 通知はベストエフォート
	if to, nerr := s.dir.EmailsFor(ctx, []string{manager}); nerr == nil && len(to) > 0 {
		nerr = s.notifier.Send(ctx, notify.Message{
			To:      to,
			Subject: "[SAMS] owner changed",
			Body:    fmt.Sprintf("%s changed the owner of item %d branch %d to %s.", actor.Username, itemID, branchNo, newOwner),
		})
		if nerr != nil {
			log.Printf("[WARN] notify failed: %v", nerr)
		}
	}
	return nil
}

// ===== 削除 =====

// DeletePreEntry は自分名義の未入庫アイテムだけ消せる
func (s *Service) DeletePreEntry(ctx context.Context, actor auth.Actor, itemIDs []int64) ([]string, error) {
	var warnings []string
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, id := range itemIDs {
			st, manager, _, err := s.store.GetForUpdate(ctx, tx, id)
			if err == sql.ErrNoRows {
				warnings = append(warnings, fmt.Sprintf("item %d not found", id))
				continue
			}
			if err != nil {
				return err
			}
			if st != status.PreEntry {
				warnings = append(warnings, fmt.Sprintf("item %d skipped: not pre_entry", id))
				continue
			}
			if manager != actor.Username {
				warnings = append(warnings, fmt.Sprintf("item %d skipped: not yours", id))
				continue
			}
			if err := s.store.Delete(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return warnings, err
}

// DeleteSelected は admin / manager 用の任意削除。
// 申請・履歴側の item_id はFKで NULL になり、記録自体は残る。
func (s *Service) DeleteSelected(ctx context.Context, actor auth.Actor, itemIDs []int64) error {
	if !actor.HasRole(auth.RoleAdmin, auth.RoleManager) {
		return fmt.Errorf("forbidden: admin or manager role required")
	}
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, id := range itemIDs {
			if err := s.store.Delete(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}
