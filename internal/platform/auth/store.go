package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	Department   string
	Realname     string
	Roles        []string
	Disabled     bool
}

// Profile は通知宛先や表示名解決に使う公開プロフィール
type Profile struct {
	Username   string
	Email      string
	Department string
	Realname   string
}

type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	ListUsernamesByRole(ctx context.Context, role string) ([]string, error)
	GetProfiles(ctx context.Context, usernames []string) (map[string]Profile, error)
}

// SQLは schema/schema.sql の users / user_roles と厳密に一致させる
// （store_test.go がDDLとの列名ずれを検査する）。
const (
	queryAccountByUsername = `
SELECT id, username, password_hash, email, department, realname, disabled
FROM users
WHERE username = ?
LIMIT 1`

	queryRolesByUser = `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`

	insertUser = `
INSERT INTO users (username, password_hash, email, department, realname, disabled)
VALUES (?, ?, ?, ?, ?, 0)`

	insertUserRole = `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`

	queryUsernamesByRole = `
SELECT u.username
FROM users u
JOIN user_roles r ON r.user_id = u.id
WHERE r.role = ? AND u.disabled = 0
ORDER BY u.username`

	queryProfilesBase = `SELECT username, email, department, realname FROM users WHERE username IN `
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore {
	return &Store{db: db}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, error) {
	var a Account
	var disabledInt int
	err := s.db.QueryRowContext(ctx, queryAccountByUsername, username).Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Email,
		&a.Department,
		&a.Realname,
		&disabledInt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Disabled = disabledInt != 0

	rows, err := s.db.QueryContext(ctx, queryRolesByUser, a.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		a.Roles = append(a.Roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	res, err := s.db.ExecContext(ctx, insertUser,
		a.Username, a.PasswordHash, a.Email, a.Department, a.Realname)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	for _, r := range a.Roles {
		if _, err := s.db.ExecContext(ctx, insertUserRole, a.ID, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListUsernamesByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryUsernamesByRole, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetProfiles(ctx context.Context, usernames []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	ph := strings.Repeat("?,", len(usernames))
	ph = ph[:len(ph)-1]
	q := queryProfilesBase + `(` + ph + `)`
	args := make([]any, len(usernames))
	for i, u := range usernames {
		args[i] = u
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Username, &p.Email, &p.Department, &p.Realname); err != nil {
			return nil, err
		}
		out[p.Username] = p
	}
	return out, rows.Err()
}
