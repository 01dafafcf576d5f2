package call

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/service/call"
	"voicelink-backend/pkg/response"
)

// Handler handles HTTP requests for the call lifecycle
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// CreateRequest represents call creation request body
type CreateRequest struct {
	CalleeID string `json:"calleeId" binding:"required"`
}

// Create starts a new call to another user
// POST /v1/calls
func (h *Handler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "calleeId required")
		return
	}

	calleeID, err := uuid.Parse(req.CalleeID)
	if err != nil {
		response.ValidationError(c, "invalid calleeId")
		return
	}

	newCall, err := h.callService.Create(c.Request.Context(), userID, calleeID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"call": newCall,
	})
}

// Get returns a single call
// GET /v1/calls/:id
func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid call id")
		return
	}

	found, err := h.callService.Get(c.Request.Context(), callID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call": found,
	})
}

// End terminates a call
// POST /v1/calls/:id/end
func (h *Handler) End(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "invalid call id")
		return
	}

	if err := h.callService.End(c.Request.Context(), callID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "call ended",
	})
}

// History returns the user's call history, newest first
// GET /v1/calls
func (h *Handler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	calls, err := h.callService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
	})
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}
