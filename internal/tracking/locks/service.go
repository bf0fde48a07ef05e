package locks

import (
	"context"
	"log"
	"sort"
	"time"
)

// Clock: テストで固定時刻を注入するための抽象
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service は編集ロックの取得・解放・期限切れ掃除を担う。
// ロックは助言的（advisory）で、期限は TTL 経過で自動失効する。
type Service struct {
	store Store
	clock Clock
	ttl   time.Duration
}

func NewService(store Store, ttlMinutes int) *Service {
	return &Service{store: store, clock: realClock{}, ttl: time.Duration(ttlMinutes) * time.Minute}
}

func (s *Service) expired(r Row, now time.Time) bool {
	if !r.Holder.Valid || r.Holder.String == "" {
		return true
	}
	if !r.AcquiredAt.Valid {
		return true
	}
	return now.Sub(r.AcquiredAt.Time) >= s.ttl
}

// Acquire は全件取得できる場合のみロックする（all-or-nothing）。
// 1件でも他者が保持していれば何も変更せず、妨げたIDを返す。
// 自分がすでに保持している行は再取得扱いで時刻を更新する。
func (s *Service) Acquire(ctx context.Context, ids []int64, holder string) (ok bool, blocked []int64, err error) {
	if len(ids) == 0 {
		return true, nil, nil
	}
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		rows, err := tx.GetForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, r := range rows {
			if s.expired(r, now) || r.Holder.String == holder {
				continue
			}
			blocked = append(blocked, r.ItemID)
		}
		if len(blocked) > 0 {
			sort.Slice(blocked, func(i, j int) bool { return blocked[i] < blocked[j] })
			return nil
		}
		ok = true
		return tx.SetHolder(ctx, ids, holder, now)
	})
	if err != nil {
		return false, nil, err
	}
	return ok, blocked, nil
}

// Release は指定行のロックを無条件に外す。未ロックでもエラーにしない。
func (s *Service) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.store.WithTx(ctx, func(tx TxStore) error {
		return tx.Clear(ctx, ids)
	})
}

// ReleaseMine は保持者のロックを全て外す（編集画面の確定・中断時）
func (s *Service) ReleaseMine(ctx context.Context, holder string) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx TxStore) (e error) {
		n, e = tx.ClearByHolder(ctx, holder)
		return
	})
	return n, err
}

// SweepExpired は TTL を過ぎたロックを一括解放する。一覧取得時に呼ばれる。
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	var swept []int64
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		rows, err := tx.ListHeld(ctx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, r := range rows {
			if s.expired(r, now) {
				swept = append(swept, r.ItemID)
			}
		}
		return tx.Clear(ctx, swept)
	})
	if err != nil {
		return 0, err
	}
	if len(swept) > 0 {
		log.Printf("locks: swept %d expired lock(s)", len(swept))
	}
	return int64(len(swept)), nil
}
