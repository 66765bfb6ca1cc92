// Package dto 是 HTTP 與 gRPC 共用的請求 / 回應結構
package dto

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// DateLayout start_date / end_date 的格式
const DateLayout = "2006-01-02"

type CreateAccountRequest struct {
	IBAN    string           `json:"iban" validate:"required,iban"`
	Balance *decimal.Decimal `json:"balance"`
}

// UpdateAccountRequest PUT / PATCH 共用，沒給的欄位不修改
type UpdateAccountRequest struct {
	AccountID int64            `json:"account_id" validate:"gt=0"`
	IBAN      *string          `json:"iban" validate:"omitempty,iban"`
	Balance   *decimal.Decimal `json:"balance"`
}

type AccountIDRequest struct {
	AccountID int64 `json:"account_id" validate:"gt=0"`
}

// AmountRequest 存款 / 提款
type AmountRequest struct {
	AccountID int64            `json:"account_id" validate:"gt=0"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
}

type TransferRequest struct {
	FromIBAN string           `json:"from_iban" validate:"required,iban"`
	ToIBAN   string           `json:"to_iban" validate:"required,iban"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
}

type ListAccountsRequest struct {
	Page     int `json:"page" form:"page" validate:"gte=0"`
	PageSize int `json:"page_size" form:"page_size" validate:"gte=0"`
}

type ListTransactionsRequest struct {
	AccountID       int64  `json:"account_id" form:"-" validate:"gt=0"`
	TransactionType string `json:"transaction_type" form:"transaction_type"`
	StartDate       string `json:"start_date" form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string `json:"end_date" form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Ordering        string `json:"ordering" form:"ordering"`
	Page            int    `json:"page" form:"page" validate:"gte=0"`
	PageSize        int    `json:"page_size" form:"page_size" validate:"gte=0"`
}

// Dates 解析日期，格式已由 validator 檢查過
func (r *ListTransactionsRequest) Dates() (start, end *time.Time) {
	if t, err := time.Parse(DateLayout, r.StartDate); err == nil {
		start = &t
	}
	if t, err := time.Parse(DateLayout, r.EndDate); err == nil {
		end = &t
	}
	return start, end
}

type AccountResponse struct {
	ID        int64     `json:"id"`
	IBAN      string    `json:"iban"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionResponse ID 以字串輸出，snowflake ID 超過 JavaScript 安全整數範圍
type TransactionResponse struct {
	ID              string    `json:"id"`
	Account         int64     `json:"account"`
	Date            time.Time `json:"date"`
	Amount          string    `json:"amount"`
	TransactionType string    `json:"transaction_type"`
}

type ReceiptResponse struct {
	Status       string                `json:"status"`
	Accounts     []AccountResponse     `json:"accounts"`
	Transactions []TransactionResponse `json:"transactions"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse 錯誤回應，Details 只有驗證錯誤才有
type ErrorResponse struct {
	Status  string       `json:"status"`
	Details []FieldError `json:"details,omitempty"`
}

// PageResponse 分頁回應；連結沒有時為 null (第一頁沒有 first/previous，最後一頁沒有 last/next)
type PageResponse[T any] struct {
	Count    int     `json:"count"`
	Page     int     `json:"page"`
	NumPages int     `json:"num_pages"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	First    *string `json:"first"`
	Last     *string `json:"last"`
	Results  []T     `json:"results"`
}

func NewAccountResponse(acc *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        acc.ID,
		IBAN:      acc.IBAN,
		Balance:   domain.FormatAmount(acc.Balance),
		CreatedAt: acc.CreatedAt,
		UpdatedAt: acc.UpdatedAt,
	}
}

func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              strconv.FormatInt(t.ID, 10),
		Account:         t.AccountID,
		Date:            t.Date,
		Amount:          domain.FormatAmount(t.Amount),
		TransactionType: t.Type.Code(),
	}
}

func NewReceiptResponse(status string, r *domain.Receipt) ReceiptResponse {
	out := ReceiptResponse{
		Status:       status,
		Accounts:     make([]AccountResponse, 0, len(r.Accounts)),
		Transactions: make([]TransactionResponse, 0, len(r.Transactions)),
	}
	for i := range r.Accounts {
		out.Accounts = append(out.Accounts, NewAccountResponse(&r.Accounts[i]))
	}
	for i := range r.Transactions {
		out.Transactions = append(out.Transactions, NewTransactionResponse(&r.Transactions[i]))
	}
	return out
}

func NewAccountList(p *domain.Paginated[domain.Account]) []AccountResponse {
	out := make([]AccountResponse, 0, len(p.Items))
	for i := range p.Items {
		out = append(out, NewAccountResponse(&p.Items[i]))
	}
	return out
}

func NewTransactionList(p *domain.Paginated[domain.Transaction]) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(p.Items))
	for i := range p.Items {
		out = append(out, NewTransactionResponse(&p.Items[i]))
	}
	return out
}
