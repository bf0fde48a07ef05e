package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"SAMS-backend/internal/platform/db"
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

// ===== Service本体 =====

type Service struct {
	db    *sql.DB
	store *Store
	clock Clock
	id    IDGen
}

func NewService(sqldb *sql.DB) *Service {
	return &Service{db: sqldb, store: NewStore(), clock: realClock{}, id: ulidGen{}}
}

// Entry は追記する1件分の入力。時刻とULIDはサービス側で補完する。
type Entry struct {
	ItemID              int64
	Applicant           string
	Action              string
	ApplicantComment    string
	ApplicationDatetime time.Time
	Approver            string
	ApproverComment     string
	Resolution          string
}

// Build は Entry を永続化用 Record に整える。承認トランザクションの中から
// store.Insert と組み合わせて使う。
func (s *Service) Build(e Entry) (Record, error) {
	uid, err := s.id.New()
	if err != nil {
		return Record{}, err
	}
	now := s.clock.Now()
	applied := e.ApplicationDatetime
	if applied.IsZero() {
		applied = now
	}
	r := Record{
		RecordULID:          uid,
		ItemID:              sql.NullInt64{Int64: e.ItemID, Valid: e.ItemID != 0},
		Applicant:           e.Applicant,
		Action:              e.Action,
		ApplicantComment:    e.ApplicantComment,
		ApplicationDatetime: applied,
		ApproverComment:     e.ApproverComment,
		Resolution:          e.Resolution,
		ResolutionDatetime:  now,
	}
	if e.Approver != "" {
		r.Approver = sql.NullString{String: e.Approver, Valid: true}
	}
	return r, nil
}

// Append は単独トランザクションで1件追記する（直接操作の履歴用）
func (s *Service) Append(ctx context.Context, e Entry) error {
	r, err := s.Build(e)
	if err != nil {
		return err
	}
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return s.store.Insert(ctx, tx, r)
	})
}

// AppendTx は呼び出し側のトランザクションへ追記を同居させる
func (s *Service) AppendTx(ctx context.Context, tx db.DBTX, e Entry) error {
	r, err := s.Build(e)
	if err != nil {
		return err
	}
	return s.store.Insert(ctx, tx, r)
}

func (s *Service) ListByItem(ctx context.Context, itemID int64) ([]Record, error) {
	var out []Record
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) (e error) {
		out, e = s.store.ListByItem(ctx, tx, itemID)
		return
	})
	return out, err
}

func (s *Service) ListByApplicant(ctx context.Context, applicant string) ([]Record, error) {
	var out []Record
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) (e error) {
		out, e = s.store.ListByApplicant(ctx, tx, applicant)
		return
	})
	return out, err
}
