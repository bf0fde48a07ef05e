package auth

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DDLの CREATE TABLE ブロックから列名を取り出す。
// 列定義行は小文字で始まり、PRIMARY KEY 等の制約行は大文字なので弾ける。
func ddlColumns(t *testing.T, ddl []byte, table string) map[string]bool {
	t.Helper()
	blockRe := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\) ENGINE`)
	m := blockRe.FindSubmatch(ddl)
	require.NotNil(t, m, "table %s not found in schema.sql", table)

	cols := map[string]bool{}
	colRe := regexp.MustCompile(`(?m)^\s*([a-z][a-z_]*)\s`)
	for _, cm := range colRe.FindAllSubmatch(m[1], -1) {
		cols[string(cm[1])] = true
	}
	require.NotEmpty(t, cols, "no columns parsed for table %s", table)
	return cols
}

// ストアの各クエリが schema.sql に実在する列だけを参照することを検査する。
// SQLキーワードは大文字で書く規約なので、小文字識別子＝列・表・別名。
func TestStoreQueries_matchSchemaDDL(t *testing.T) {
	ddl, err := os.ReadFile(filepath.Join("..", "..", "..", "schema", "schema.sql"))
	require.NoError(t, err)

	users := ddlColumns(t, ddl, "users")
	userRoles := ddlColumns(t, ddl, "user_roles")

	merged := map[string]bool{}
	for c := range users {
		merged[c] = true
	}
	for c := range userRoles {
		merged[c] = true
	}

	// 表名とエイリアスは列ではないので許可リストに入れる
	names := map[string]bool{"users": true, "user_roles": true, "u": true, "r": true}

	cases := []struct {
		name  string
		query string
		cols  map[string]bool
	}{
		{"account by username", queryAccountByUsername, users},
		{"roles by user", queryRolesByUser, userRoles},
		{"insert user", insertUser, users},
		{"insert user role", insertUserRole, userRoles},
		{"usernames by role", queryUsernamesByRole, merged},
		{"profiles", queryProfilesBase, users},
	}

	identRe := regexp.MustCompile(`\b[a-z][a-z_]*\b`)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, ident := range identRe.FindAllString(tc.query, -1) {
				if names[ident] {
					continue
				}
				assert.True(t, tc.cols[ident],
					"query references %q, which is not a column in schema.sql", ident)
			}
		})
	}
}

// 列の順序と数がスキャン先と食い違っていないかの最低限の確認
func TestStoreQueries_selectColumnCounts(t *testing.T) {
	// queryAccountByUsername は Account の7項目を読む
	sel := regexp.MustCompile(`(?s)SELECT (.*?)\nFROM`).FindStringSubmatch(queryAccountByUsername)
	require.NotNil(t, sel)
	assert.Len(t, regexp.MustCompile(`[a-z_]+`).FindAllString(sel[1], -1), 7)

	// insertUser は5つのバインドと disabled=0 の固定値
	assert.Equal(t, 5, len(regexp.MustCompile(`\?`).FindAllString(insertUser, -1)))
}
