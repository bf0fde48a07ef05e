package auth

import "github.com/gin-gonic/gin"

// ロールは固定4種（DB側の user_roles.role と一致させる）
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleProper  = "proper"
	RolePartner = "partner"
)

const ctxActorKey = "actor"

// Actor は操作主体。コア層はグローバルやセッションを見ず、必ずこれを引数で受け取る。
type Actor struct {
	Username   string
	Department string
	Roles      []string
}

func (a Actor) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, r := range a.Roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

// ActorFrom は RequireAuth が詰めた Actor を取り出す。
// 認証ミドルウェアを通らない経路で呼んだら ok=false。
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, exists := c.Get(ctxActorKey)
	if !exists {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}
