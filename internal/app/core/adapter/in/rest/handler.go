package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// AccountCommander 寫入操作 (usecase.BalanceEngine)
type AccountCommander interface {
	CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error)
	UpdateAccount(ctx context.Context, id int64, upd usecase.AccountUpdate) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error)
	Transfer(ctx context.Context, fromIBAN, toIBAN string, amount decimal.Decimal) (*domain.Receipt, error)
}

// AccountQuerier 唯讀查詢 (usecase.QueryService)
type AccountQuerier interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	ListAccounts(ctx context.Context, page, pageSize int) (*domain.Paginated[domain.Account], error)
	ListTransactions(ctx context.Context, q usecase.TransactionQuery) (*domain.Paginated[domain.Transaction], error)
}

type Handler struct {
	commands AccountCommander
	queries  AccountQuerier
	logger   *slog.Logger
}

func NewHandler(commands AccountCommander, queries AccountQuerier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		commands: commands,
		queries:  queries,
		logger:   logger,
	}
}

// accountID 解析路徑上的 :id，不是正整數時回 404
func accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Status: domain.ErrAccountNotFound.Error()})
		return 0, false
	}
	return id, true
}

// bindJSON 解析 JSON 並驗證，失敗時已寫出回應
// fill 在驗證前執行，用來放入路徑參數
func bindJSON(c *gin.Context, req any, fill ...func()) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondBadRequest(c, "malformed request body: "+err.Error())
		return false
	}
	for _, f := range fill {
		f()
	}
	if errs := dto.ValidateRequest(req); errs != nil {
		respondValidation(c, errs)
		return false
	}
	return true
}

// CreateAccount POST /api/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req dto.CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}
	acc, err := h.commands.CreateAccount(c.Request.Context(), req.IBAN, balance)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewAccountResponse(acc))
}

// ListAccounts GET /api/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	var req dto.ListAccountsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	if errs := dto.ValidateRequest(&req); errs != nil {
		respondValidation(c, errs)
		return
	}
	page, err := h.queries.ListAccounts(c.Request.Context(), req.Page, req.PageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(c, page, dto.NewAccountList(page)))
}

// GetAccount GET /api/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	acc, err := h.queries.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAccountResponse(acc))
}

// UpdateAccount PUT / PATCH /api/accounts/:id
func (h *Handler) UpdateAccount(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req dto.UpdateAccountRequest
	if !bindJSON(c, &req, func() { req.AccountID = id }) {
		return
	}
	// PUT 需要完整欄位
	if c.Request.Method == http.MethodPut && (req.IBAN == nil || req.Balance == nil) {
		respondValidation(c, missingFields(req))
		return
	}
	acc, err := h.commands.UpdateAccount(c.Request.Context(), id, usecase.AccountUpdate{
		IBAN:    req.IBAN,
		Balance: req.Balance,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAccountResponse(acc))
}

func missingFields(req dto.UpdateAccountRequest) []dto.FieldError {
	var errs []dto.FieldError
	if req.IBAN == nil {
		errs = append(errs, dto.FieldError{Field: "iban", Message: "This field is required.", Type: "required"})
	}
	if req.Balance == nil {
		errs = append(errs, dto.FieldError{Field: "balance", Message: "This field is required.", Type: "required"})
	}
	return errs
}

// DeleteAccount DELETE /api/accounts/:id
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	if err := h.commands.DeleteAccount(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Deposit POST /api/accounts/:id/deposit
func (h *Handler) Deposit(c *gin.Context) {
	h.movement(c, "deposit successful", h.commands.Deposit)
}

// Withdraw POST /api/accounts/:id/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	h.movement(c, "withdrawal successful", h.commands.Withdraw)
}

func (h *Handler) movement(c *gin.Context, status string,
	call func(context.Context, int64, decimal.Decimal) (*domain.Receipt, error)) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !bindJSON(c, &req, func() { req.AccountID = id }) {
		return
	}
	receipt, err := call(c.Request.Context(), id, *req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReceiptResponse(status, receipt))
}

// Transfer POST /api/accounts/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	receipt, err := h.commands.Transfer(c.Request.Context(), req.FromIBAN, req.ToIBAN, *req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReceiptResponse("transfer successful", receipt))
}

// ListTransactions GET /api/accounts/:id/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req dto.ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	req.AccountID = id
	if errs := dto.ValidateRequest(&req); errs != nil {
		respondValidation(c, errs)
		return
	}
	start, end := req.Dates()
	page, err := h.queries.ListTransactions(c.Request.Context(), usecase.TransactionQuery{
		AccountID: id,
		Type:      req.TransactionType,
		StartDate: start,
		EndDate:   end,
		Ordering:  req.Ordering,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(c, page, dto.NewTransactionList(page)))
}
