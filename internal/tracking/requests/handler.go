package requests

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SAMS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/requests", h.Open)
	r.POST("/requests/:request_id/approve", h.Approve)
	r.POST("/requests/approve_batch", h.ApproveBatch)
	r.POST("/requests/:request_id/reject", h.Reject)
	r.POST("/requests/:request_id/cancel", h.Cancel)
	r.GET("/requests/pending", h.ListPending)
	r.GET("/requests/mine", h.ListMine)
}

func (h *Handler) Open(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	var in OpenInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	opened, warnings, err := h.svc.Open(c.Request.Context(), actor, in)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"opened": opened, "warnings": warnings})
}

type resolveRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) Approve(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	id, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid request id"))
		return
	}
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	warnings, err := h.svc.Approve(c.Request.Context(), actor, id, req.Comment)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": true, "warnings": warnings})
}

type approveBatchRequest struct {
	RequestIDs []int64 `json:"request_ids" binding:"required"`
	Comment    string  `json:"comment"`
}

func (h *Handler) ApproveBatch(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	var req approveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	warnings, err := h.svc.ApproveBatch(c.Request.Context(), actor, req.RequestIDs, req.Comment)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings})
}

func (h *Handler) Reject(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	id, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid request id"))
		return
	}
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.svc.Reject(c.Request.Context(), actor, id, req.Comment); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": true})
}

func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	id, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid request id"))
		return
	}
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.svc.Cancel(c.Request.Context(), actor, id, req.Comment); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) ListPending(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	reqs, err := h.svc.ListPendingForApprover(c.Request.Context(), actor.Username)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": toPendingDTOs(reqs)})
}

func (h *Handler) ListMine(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "login required"))
		return
	}
	reqs, err := h.svc.ListByApplicant(c.Request.Context(), actor.Username, RequestStatus(c.Query("status")))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": toDTOs(reqs)})
}

// ---------- helpers ----------

type errorDTO struct {
	Error struct {
		Code       string   `json:"code"`
		Message    string   `json:"message"`
		Violations []string `json:"violations,omitempty"`
	} `json:"error"`
}

func errorBody(code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		e := errorBody(api.Code, api.Message)
		e.Error.Violations = api.Violations
		return e
	}
	return errorBody(CodeInternal, err.Error())
}
