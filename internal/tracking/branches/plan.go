package branches

import (
	"fmt"
	"sort"
)

// InsufficientError: 生きている枝番より所有者が多く、割り当てできない。
// 一括承認では該当アイテムだけスキップして残りを続行する（致命ではない）。
type InsufficientError struct {
	ItemID int64
	Alive  int
	Owners int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("item %d: owners (%d) exceed alive branches (%d)", e.ItemID, e.Owners, e.Alive)
}

// Plan は所有者リストを枝番へ割り当てる計画を返す。
//
//  1. 既存枝番が1本も無ければ 1..len(owners) を新規作成
//  2. あれば生きている枝番（破棄・譲渡以外）へ昇順に1対1で割り当てる。
//     終端番号は絶対に再利用しない。
//  3. 所有者が生存枝番より多ければ InsufficientError（何も変更しない）
//
// 破棄・譲渡のマーキングは申請時に選択された明示的な枝番へ直接行うもので、
// この割り当ての対象外。
func Plan(itemID int64, existing []Branch, owners []string) ([]Assignment, error) {
	if len(owners) == 0 {
		return nil, nil
	}

	if len(existing) == 0 {
		out := make([]Assignment, 0, len(owners))
		for i, owner := range owners {
			out = append(out, Assignment{BranchNo: i + 1, Owner: owner, Create: true})
		}
		return out, nil
	}

	var alive []int
	for _, b := range existing {
		if !b.Status.Terminal() {
			alive = append(alive, b.BranchNo)
		}
	}
	sort.Ints(alive)

	if len(owners) > len(alive) {
		return nil, &InsufficientError{ItemID: itemID, Alive: len(alive), Owners: len(owners)}
	}

	out := make([]Assignment, 0, len(owners))
	for i, owner := range owners {
		out = append(out, Assignment{BranchNo: alive[i], Owner: owner})
	}
	return out, nil
}
