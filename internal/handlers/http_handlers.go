package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"drops/internal/services"
	"drops/internal/vault"
)

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	service *services.DropService
	vault   *vault.Vault
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.DropService, v *vault.Vault) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		vault:   v,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/drops", h.CreateDrop)
	router.GET("/drops/:id", h.GetDrop)
	router.POST("/drops/:id/join", h.JoinDrop)
	router.POST("/drops/:id/select", h.TriggerSelection)
	router.POST("/drops/:id/cancel", h.CancelDrop)
	router.GET("/drops/:id/participants", h.GetParticipants)
	router.GET("/drops/:id/members/:address", h.CheckMembership)
	router.GET("/drops/:id/requests", h.GetRequests)
	router.GET("/drops/:id/events", h.GetEvents)
	router.PUT("/admin/fee", h.UpdateFee)
	router.POST("/admin/withdraw", h.Withdraw)
	router.GET("/accounts/:address", h.GetAccount)
	router.POST("/accounts/:address/credit", h.CreditAccount)
}

type createDropRequest struct {
	Host              string `json:"host" binding:"required"`
	EntryFee          uint64 `json:"entryFee"`
	RewardAmount      uint64 `json:"rewardAmount"`
	MaxParticipants   int    `json:"maxParticipants" binding:"required"`
	NumWinners        int    `json:"numWinners" binding:"required"`
	IsPaidEntry       bool   `json:"isPaidEntry"`
	IsManualSelection bool   `json:"isManualSelection"`
	SuppliedValue     uint64 `json:"suppliedValue"`
}

// CreateDrop handles POST /drops.
func (h *HTTPHandler) CreateDrop(c *gin.Context) {
	var req createDropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.service.CreateDrop(req.Host, req.EntryFee, req.RewardAmount, req.MaxParticipants, req.NumWinners, req.IsPaidEntry, req.IsManualSelection, req.SuppliedValue)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dropId": id})
}

// GetDrop handles GET /drops/:id.
func (h *HTTPHandler) GetDrop(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	drop, err := h.service.GetDrop(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, drop)
}

type joinDropRequest struct {
	Address       string `json:"address" binding:"required"`
	Name          string `json:"name"`
	SuppliedValue uint64 `json:"suppliedValue"`
}

// JoinDrop handles POST /drops/:id/join.
func (h *HTTPHandler) JoinDrop(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	var req joinDropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.JoinDrop(id, req.Address, req.Name, req.SuppliedValue); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": true})
}

type callerRequest struct {
	Caller string `json:"caller" binding:"required"`
}

// TriggerSelection handles POST /drops/:id/select.
func (h *HTTPHandler) TriggerSelection(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.TriggerSelection(id, req.Caller); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selectionRequested": true})
}

// CancelDrop handles POST /drops/:id/cancel.
func (h *HTTPHandler) CancelDrop(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.CancelDrop(id, req.Caller); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// GetParticipants handles GET /drops/:id/participants.
func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	participants, err := h.service.Participants(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// CheckMembership handles GET /drops/:id/members/:address.
func (h *HTTPHandler) CheckMembership(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	member, err := h.service.IsParticipant(id, c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

// GetRequests handles GET /drops/:id/requests.
func (h *HTTPHandler) GetRequests(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	requests, err := h.service.Requests(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetEvents handles GET /drops/:id/events.
func (h *HTTPHandler) GetEvents(c *gin.Context) {
	id, ok := h.dropID(c)
	if !ok {
		return
	}
	events, err := h.service.Events(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type updateFeeRequest struct {
	Caller string `json:"caller" binding:"required"`
	FeeBps int    `json:"feeBps"`
}

// UpdateFee handles PUT /admin/fee.
func (h *HTTPHandler) UpdateFee(c *gin.Context) {
	var req updateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdatePlatformFee(req.Caller, req.FeeBps); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feeBps": req.FeeBps})
}

type withdrawRequest struct {
	Caller      string `json:"caller" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

// Withdraw handles POST /admin/withdraw.
func (h *HTTPHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := h.service.WithdrawExcess(req.Caller, req.Destination)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": amount})
}

// GetAccount handles GET /accounts/:address.
func (h *HTTPHandler) GetAccount(c *gin.Context) {
	addr := c.Param("address")
	c.JSON(http.StatusOK, gin.H{"address": addr, "balance": h.vault.Balance(addr)})
}

type creditRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// CreditAccount handles POST /accounts/:address/credit, the demo faucet.
func (h *HTTPHandler) CreditAccount(c *gin.Context) {
	addr := c.Param("address")
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.vault.Credit(addr, req.Amount)
	c.JSON(http.StatusOK, gin.H{"address": addr, "balance": h.vault.Balance(addr)})
}

func (h *HTTPHandler) dropID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drop id"})
		return 0, false
	}
	return id, true
}

// fail maps an engine error to an HTTP status by taxonomy category.
func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch services.Categorize(err) {
	case services.CategoryValidation:
		status = http.StatusBadRequest
	case services.CategoryUnauthorized:
		status = http.StatusForbidden
	case services.CategoryNotFound:
		status = http.StatusNotFound
	case services.CategoryConflict:
		status = http.StatusConflict
	case services.CategoryTransfer:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("unclassified error: %v", err)
	}
	resp := gin.H{"error": err.Error()}
	if hint := retryHint(status); hint != "" {
		resp["retryAfter"] = hint
	}
	c.JSON(status, resp)
}

// retryHint tells clients whether the rejection is transient. Busy-drop
// conflicts clear as soon as the in-flight operation finishes.
func retryHint(status int) string {
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return time.Second.String()
	}
	return ""
}
