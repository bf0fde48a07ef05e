package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

type Service struct {
	store    AccountStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(db *sql.DB, secret []byte, tokenTTL time.Duration) *Service {
	return &Service{store: NewStore(db), secret: secret, tokenTTL: tokenTTL}
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", errors.New("authentication failed")
	}
	if acct.Disabled {
		return "", errors.New("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("authentication failed")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        acct.Username,
		"roles":      acct.Roles,
		"department": acct.Department,
		"exp":        time.Now().Add(s.tokenTTL).Unix(),
	})

	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, a *Account, password string) error {
	exists, err := s.store.GetByUsername(ctx, a.Username)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return s.store.Create(ctx, a)
}

// ===== ディレクトリ参照（コア層から利用） =====

// IsCustodian: 管理者欄に指定できるのは proper ロール保持者のみ
func (s *Service) IsCustodian(ctx context.Context, username string) (bool, error) {
	users, err := s.store.ListUsernamesByRole(ctx, RoleProper)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u == username {
			return true, nil
		}
	}
	return false, nil
}

// EmailsFor: 通知宛先の解決。メール未登録ユーザーは黙って落とす。
func (s *Service) EmailsFor(ctx context.Context, usernames []string) ([]string, error) {
	profiles, err := s.store.GetProfiles(ctx, dedup(usernames))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, p := range profiles {
		if p.Email == "" {
			continue
		}
		if _, dup := seen[p.Email]; dup {
			continue
		}
		seen[p.Email] = struct{}{}
		out = append(out, p.Email)
	}
	return out, nil
}

func dedup(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
