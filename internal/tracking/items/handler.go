package items

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SAMS-backend/internal/platform/auth"
	"SAMS-backend/internal/tracking/branches"
	"SAMS-backend/internal/tracking/status"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/items", h.Create)
	r.GET("/items", h.List)
	r.GET("/items/export", h.ExportCSV)
	r.GET("/items/:item_id", h.Get)
	r.GET("/items/:item_id/branches", h.ListBranches)
	r.POST("/items/bulk_edit", h.BulkEdit)
	r.POST("/items/bulk_edit/cancel", h.CancelEdit)
	r.POST("/items/change_manager", h.BulkChangeManager)
	r.POST("/items/:item_id/branches/:branch_no/owner", h.ChangeOwner)
	r.POST("/items/delete_pre_entry", h.DeletePreEntry)
	r.POST("/items/delete", h.DeleteSelected)
}

func actorOr401(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
	}
	return actor, ok
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	id, err := h.svc.Create(c.Request.Context(), actor, in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item_id": id})
}

func filterFromQuery(c *gin.Context) ListFilter {
	return ListFilter{
		Status:   status.Status(c.Query("status")),
		Manager:  c.Query("manager"),
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Limit:    parseIntDefault(c.Query("limit"), 100),
		Offset:   parseIntDefault(c.Query("offset"), 0),
	}
}

func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

func (h *Handler) ExportCSV(c *gin.Context) {
	blob, err := h.svc.ExportCSV(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="items.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=Shift_JIS", blob)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid item id"))
		return
	}
	it, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	if it == nil {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "item not found"))
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *Handler) ListBranches(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid item id"))
		return
	}
	bs, err := h.svc.ListBranches(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches.ToDTOs(bs)})
}

func (h *Handler) BulkEdit(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	var req struct {
		Edits []EditItem `json:"edits" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	warnings, err := h.svc.BulkEdit(c.Request.Context(), actor, req.Edits)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

func (h *Handler) CancelEdit(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	n, err := h.svc.CancelEdit(c.Request.Context(), actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"released_count": n})
}

func (h *Handler) BulkChangeManager(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	var req struct {
		ItemIDs    []int64 `json:"item_ids" binding:"required"`
		NewManager string  `json:"new_manager" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	warnings, err := h.svc.BulkChangeManager(c.Request.Context(), actor, req.ItemIDs, req.NewManager)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

func (h *Handler) ChangeOwner(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid item id"))
		return
	}
	branchNo, err := strconv.Atoi(c.Param("branch_no"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid branch number"))
		return
	}
	var req struct {
		NewOwner string `json:"new_owner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	if err := h.svc.ChangeOwner(c.Request.Context(), actor, itemID, branchNo, req.NewOwner); err != nil {
		ownerChangeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": true})
}

// 対象不在は 404、それ以外（状態・枝番の不整合）は 409
func ownerChangeError(c *gin.Context, err error) {
	if errors.Is(err, ErrItemNotFound) {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", err.Error()))
		return
	}
	c.JSON(http.StatusConflict, errorBody("INVALID_STATE", err.Error()))
}

func (h *Handler) DeletePreEntry(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	var req struct {
		ItemIDs []int64 `json:"item_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	warnings, err := h.svc.DeletePreEntry(c.Request.Context(), actor, req.ItemIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

func (h *Handler) DeleteSelected(c *gin.Context) {
	actor, ok := actorOr401(c)
	if !ok {
		return
	}
	var req struct {
		ItemIDs []int64 `json:"item_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "invalid json"))
		return
	}
	if err := h.svc.DeleteSelected(c.Request.Context(), actor, req.ItemIDs); err != nil {
		c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
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
