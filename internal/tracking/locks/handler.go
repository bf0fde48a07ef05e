package locks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"SAMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/locks/acquire", h.Acquire)
	r.POST("/locks/release", h.Release)
	r.POST("/locks/release_mine", h.ReleaseMine)
}

type acquireRequest struct {
	ItemIDs []int64 `json:"item_ids" binding:"required"`
}

type acquireResponse struct {
	Acquired bool    `json:"acquired"`
	Blocked  []int64 `json:"blocked_item_ids,omitempty"`
}

func (h *Handler) Acquire(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	acquired, blocked, err := h.svc.Acquire(c.Request.Context(), req.ItemIDs, actor.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{"code": "LOCK_CONFLICT", "message": "some items are locked by another user"},
			"blocked_item_ids": blocked,
		})
		return
	}
	c.JSON(http.StatusOK, acquireResponse{Acquired: true})
}

func (h *Handler) Release(c *gin.Context) {
	var req acquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	if err := h.svc.Release(c.Request.Context(), req.ItemIDs); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (h *Handler) ReleaseMine(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	n, err := h.svc.ReleaseMine(c.Request.Context(), actor.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"released_count": n})
}

type errorDTO struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}
