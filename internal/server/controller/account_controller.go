package controller

import (
	"fms/internal/ledger"
	"fms/pkg/errors"
	"fms/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CreditRequest is the body of POST /api/v1/accounts/:user/credits.
type CreditRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// AccountResponse describes a balance.
type AccountResponse struct {
	User    string  `json:"user"`
	Credits float64 `json:"credits"`
}

// UsageResponse is a usage report.
type UsageResponse struct {
	User    string               `json:"user"`
	Records []ledger.UsageRecord `json:"records"`
	Total   float64              `json:"total"`
}

// AccountController exposes balances and usage logs.
type AccountController struct {
	accounts *ledger.Accounts
}

// NewAccountController creates a new controller.
func NewAccountController(accounts *ledger.Accounts) *AccountController {
	return &AccountController{accounts: accounts}
}

// Get returns the balance of a user.
func (h *AccountController) Get(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	response.Success(c, AccountResponse{User: l.User(), Credits: l.Balance()})
}

// AddCredits tops up a balance.
func (h *AccountController) AddCredits(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	if err := l.Credit(c.Request.Context(), req.Amount); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, AccountResponse{User: l.User(), Credits: l.Balance()})
}

// Usage returns the usage log with its total.
func (h *AccountController) Usage(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	records, total, err := l.Usage(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if records == nil {
		records = []ledger.UsageRecord{}
	}
	response.Success(c, UsageResponse{User: l.User(), Records: records, Total: total})
}

// ClearUsage deletes the usage log after payment.
func (h *AccountController) ClearUsage(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	archive, err := l.ClearUsage(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"user": l.User(), "archive": archive})
}

func (h *AccountController) ledger(c *gin.Context) (*ledger.Ledger, bool) {
	if h.accounts == nil {
		response.Error(c, errors.New(errors.LedgerNotConfigured))
		return nil, false
	}
	l, err := h.accounts.Get(c.Request.Context(), c.Param("user"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return l, true
}
