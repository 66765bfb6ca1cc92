package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// ---- mock implementations ----

type mockCommander struct {
	createFn   func(iban string, balance decimal.Decimal) (*domain.Account, error)
	updateFn   func(id int64, upd usecase.AccountUpdate) (*domain.Account, error)
	deleteFn   func(id int64) error
	depositFn  func(id int64, amount decimal.Decimal) (*domain.Receipt, error)
	withdrawFn func(id int64, amount decimal.Decimal) (*domain.Receipt, error)
	transferFn func(from, to string, amount decimal.Decimal) (*domain.Receipt, error)
}

func (m *mockCommander) CreateAccount(_ context.Context, iban string, balance decimal.Decimal) (*domain.Account, error) {
	if m.createFn != nil {
		return m.createFn(iban, balance)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockCommander) UpdateAccount(_ context.Context, id int64, upd usecase.AccountUpdate) (*domain.Account, error) {
	if m.updateFn != nil {
		return m.updateFn(id, upd)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockCommander) DeleteAccount(_ context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(id)
	}
	return fmt.Errorf("not configured")
}
func (m *mockCommander) Deposit(_ context.Context, id int64, amount decimal.Decimal) (*domain.Receipt, error) {
	if m.depositFn != nil {
		return m.depositFn(id, amount)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockCommander) Withdraw(_ context.Context, id int64, amount decimal.Decimal) (*domain.Receipt, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(id, amount)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockCommander) Transfer(_ context.Context, from, to string, amount decimal.Decimal) (*domain.Receipt, error) {
	if m.transferFn != nil {
		return m.transferFn(from, to, amount)
	}
	return nil, fmt.Errorf("not configured")
}

type mockQuerier struct {
	getFn          func(id int64) (*domain.Account, error)
	listFn         func(page, size int) (*domain.Paginated[domain.Account], error)
	transactionsFn func(q usecase.TransactionQuery) (*domain.Paginated[domain.Transaction], error)
}

func (m *mockQuerier) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	if m.getFn != nil {
		return m.getFn(id)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockQuerier) ListAccounts(_ context.Context, page, size int) (*domain.Paginated[domain.Account], error) {
	if m.listFn != nil {
		return m.listFn(page, size)
	}
	return nil, fmt.Errorf("not configured")
}
func (m *mockQuerier) ListTransactions(_ context.Context, q usecase.TransactionQuery) (*domain.Paginated[domain.Transaction], error) {
	if m.transactionsFn != nil {
		return m.transactionsFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// ---- helpers ----

func newTestRouter(cmds AccountCommander, qrys AccountQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(NewHandler(cmds, qrys, logger), logger)
}

func doRequest(router *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return v
}

// ---- test data ----

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func testAccount(id int64, iban, balance string) *domain.Account {
	return domain.NewAccount(id, iban, decimal.RequireFromString(balance), testNow)
}

func testReceipt(acc *domain.Account, amount string, typ domain.TransactionType) *domain.Receipt {
	return &domain.Receipt{
		Accounts: []domain.Account{*acc},
		Transactions: []domain.Transaction{{
			ID: 1790000000000000001, AccountID: acc.ID, Date: testNow,
			Amount: decimal.RequireFromString(amount), Type: typ,
		}},
	}
}

// ---- CreateAccount ----

func TestCreateAccount(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createFn   func(string, decimal.Decimal) (*domain.Account, error)
		wantStatus int
		wantField  string
	}{
		{
			name: "success",
			body: `{"iban":"US64SVBKUS6S3300958879","balance":"1500.00"}`,
			createFn: func(iban string, balance decimal.Decimal) (*domain.Account, error) {
				return testAccount(1, iban, balance.String()), nil
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid iban",
			body:       `{"iban":"INVALIDIBAN","balance":"10"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "iban",
		},
		{
			name:       "missing iban",
			body:       `{"balance":"10"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "iban",
		},
		{
			name:       "malformed json",
			body:       `{"iban":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate iban",
			body: `{"iban":"US64SVBKUS6S3300958879"}`,
			createFn: func(string, decimal.Decimal) (*domain.Account, error) {
				return nil, domain.NewValidationError("iban", domain.ErrIBANAlreadyExists.Error(), domain.ErrIBANAlreadyExists)
			},
			wantStatus: http.StatusBadRequest,
			wantField:  "iban",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCommander{createFn: tt.createFn}, &mockQuerier{})
			w := doRequest(router, http.MethodPost, "/api/accounts", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusCreated {
				resp := decodeBody[dto.AccountResponse](t, w)
				if resp.Balance != "1500.00" || resp.IBAN != "US64SVBKUS6S3300958879" {
					t.Fatalf("unexpected response %+v", resp)
				}
			}
			if tt.wantField != "" {
				resp := decodeBody[dto.ErrorResponse](t, w)
				if len(resp.Details) == 0 || resp.Details[0].Field != tt.wantField {
					t.Fatalf("expected error on %q, got %+v", tt.wantField, resp)
				}
			}
		})
	}
}

// ---- GetAccount ----

func TestGetAccount(t *testing.T) {
	q := &mockQuerier{getFn: func(id int64) (*domain.Account, error) {
		if id == 1 {
			return testAccount(1, "DE89370400440532013000", "10"), nil
		}
		return nil, domain.ErrAccountNotFound
	}}
	router := newTestRouter(&mockCommander{}, q)

	tests := []struct {
		url        string
		wantStatus int
	}{
		{"/api/accounts/1", http.StatusOK},
		{"/api/accounts/2", http.StatusNotFound},
		{"/api/accounts/abc", http.StatusNotFound},
		{"/api/accounts/-1", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := doRequest(router, http.MethodGet, tt.url, "")
		if w.Code != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.url, w.Code, tt.wantStatus)
		}
	}

	w := doRequest(router, http.MethodGet, "/api/accounts/1", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id header")
	}
	if resp := decodeBody[dto.AccountResponse](t, w); resp.Balance != "10.00" {
		t.Errorf("balance = %q", resp.Balance)
	}
}

// ---- UpdateAccount ----

func TestUpdateAccount(t *testing.T) {
	var got usecase.AccountUpdate
	cmds := &mockCommander{updateFn: func(id int64, upd usecase.AccountUpdate) (*domain.Account, error) {
		got = upd
		return testAccount(id, "GB82WEST12345698765432", "20"), nil
	}}
	router := newTestRouter(cmds, &mockQuerier{})

	w := doRequest(router, http.MethodPatch, "/api/accounts/3", `{"iban":"GB82WEST12345698765432"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d: %s", w.Code, w.Body.String())
	}
	if got.IBAN == nil || *got.IBAN != "GB82WEST12345698765432" || got.Balance != nil {
		t.Fatalf("unexpected update %+v", got)
	}

	w = doRequest(router, http.MethodPut, "/api/accounts/3", `{"iban":"GB82WEST12345698765432"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("PUT without balance = %d", w.Code)
	}
	if resp := decodeBody[dto.ErrorResponse](t, w); len(resp.Details) != 1 || resp.Details[0].Field != "balance" {
		t.Fatalf("unexpected errors %+v", resp)
	}

	w = doRequest(router, http.MethodPatch, "/api/accounts/3", `{"iban":"bad"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("PATCH invalid iban = %d", w.Code)
	}
}

// ---- DeleteAccount ----

func TestDeleteAccount(t *testing.T) {
	cmds := &mockCommander{deleteFn: func(id int64) error {
		if id == 1 {
			return nil
		}
		return domain.ErrAccountNotFound
	}}
	router := newTestRouter(cmds, &mockQuerier{})

	if w := doRequest(router, http.MethodDelete, "/api/accounts/1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if w := doRequest(router, http.MethodDelete, "/api/accounts/2", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

// ---- Deposit / Withdraw ----

func TestDepositAndWithdraw(t *testing.T) {
	acc := testAccount(1, "US64SVBKUS6S3300958879", "2250")
	cmds := &mockCommander{
		depositFn: func(id int64, amount decimal.Decimal) (*domain.Receipt, error) {
			if !amount.IsPositive() {
				return nil, domain.ErrInvalidAmount
			}
			return testReceipt(acc, amount.String(), domain.TransactionTypeDeposit), nil
		},
		withdrawFn: func(id int64, amount decimal.Decimal) (*domain.Receipt, error) {
			return nil, domain.ErrInsufficientFunds
		},
	}
	router := newTestRouter(cmds, &mockQuerier{})

	tests := []struct {
		name           string
		url            string
		body           string
		wantStatus     int
		wantStatusText string
	}{
		{"deposit", "/api/accounts/1/deposit", `{"amount":"750.00"}`, http.StatusOK, "deposit successful"},
		{"deposit numeric amount", "/api/accounts/1/deposit", `{"amount":750}`, http.StatusOK, "deposit successful"},
		{"negative deposit", "/api/accounts/1/deposit", `{"amount":"-500.00"}`, http.StatusBadRequest, domain.ErrInvalidAmount.Error()},
		{"missing amount", "/api/accounts/1/deposit", `{}`, http.StatusBadRequest, "invalid request data"},
		{"non numeric amount", "/api/accounts/1/deposit", `{"amount":"abc"}`, http.StatusBadRequest, ""},
		{"insufficient funds", "/api/accounts/1/withdraw", `{"amount":"2000.00"}`, http.StatusBadRequest, domain.ErrInsufficientFunds.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, tt.url, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatusText == "" {
				return
			}
			if resp := decodeBody[dto.StatusResponse](t, w); resp.Status != tt.wantStatusText {
				t.Fatalf("status text = %q, want %q", resp.Status, tt.wantStatusText)
			}
		})
	}

	w := doRequest(router, http.MethodPost, "/api/accounts/1/deposit", `{"amount":"750.00"}`)
	resp := decodeBody[dto.ReceiptResponse](t, w)
	if len(resp.Transactions) != 1 || resp.Transactions[0].ID != "1790000000000000001" || resp.Transactions[0].TransactionType != "D" {
		t.Fatalf("unexpected receipt %+v", resp)
	}
}

// ---- Transfer ----

func TestTransfer(t *testing.T) {
	cmds := &mockCommander{transferFn: func(from, to string, amount decimal.Decimal) (*domain.Receipt, error) {
		if from == to {
			return nil, domain.ErrSameAccount
		}
		if to == "GB82WEST12345698765432" {
			return nil, domain.ErrAccountNotFound
		}
		a := testAccount(1, from, "1000")
		b := testAccount(2, to, "800")
		return &domain.Receipt{
			Accounts: []domain.Account{*a, *b},
			Transactions: []domain.Transaction{
				{ID: 10, AccountID: 1, Date: testNow, Amount: amount.Neg(), Type: domain.TransactionTypeTransfer},
				{ID: 11, AccountID: 2, Date: testNow, Amount: amount, Type: domain.TransactionTypeTransfer},
			},
		}, nil
	}}
	router := newTestRouter(cmds, &mockQuerier{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"success", `{"from_iban":"US64SVBKUS6S3300958879","to_iban":"DE89370400440532013000","amount":"500.00"}`, http.StatusOK},
		{"same account", `{"from_iban":"US64SVBKUS6S3300958879","to_iban":"US64SVBKUS6S3300958879","amount":"5"}`, http.StatusBadRequest},
		{"unknown destination", `{"from_iban":"US64SVBKUS6S3300958879","to_iban":"GB82WEST12345698765432","amount":"5"}`, http.StatusNotFound},
		{"invalid iban", `{"from_iban":"nope","to_iban":"DE89370400440532013000","amount":"5"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/accounts/transfer", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	w := doRequest(router, http.MethodPost, "/api/accounts/transfer", tests[0].body)
	resp := decodeBody[dto.ReceiptResponse](t, w)
	if resp.Status != "transfer successful" || len(resp.Transactions) != 2 || resp.Transactions[0].Amount != "-500.00" {
		t.Fatalf("unexpected receipt %+v", resp)
	}
}

// ---- listing ----

func TestListTransactions(t *testing.T) {
	var got usecase.TransactionQuery
	q := &mockQuerier{transactionsFn: func(query usecase.TransactionQuery) (*domain.Paginated[domain.Transaction], error) {
		got = query
		if query.Page > 2 {
			return nil, domain.ErrPageOutOfRange
		}
		return &domain.Paginated[domain.Transaction]{
			Items: []domain.Transaction{{ID: 5, AccountID: query.AccountID, Date: testNow, Amount: decimal.NewFromInt(3), Type: domain.TransactionTypeDeposit}},
			Count: 2, Page: query.Page, PageSize: 1, NumPages: 2,
		}, nil
	}}
	router := newTestRouter(&mockCommander{}, q)

	w := doRequest(router, http.MethodGet, "/api/accounts/7/transactions?transaction_type=D&start_date=2024-01-01&end_date=2024-01-31&ordering=-amount&page=1&page_size=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got.AccountID != 7 || got.Type != "D" || got.Ordering != "-amount" || got.PageSize != 1 {
		t.Fatalf("unexpected query %+v", got)
	}
	if got.StartDate == nil || got.StartDate.Format(dto.DateLayout) != "2024-01-01" || got.EndDate == nil {
		t.Fatalf("dates not parsed: %+v", got)
	}

	resp := decodeBody[dto.PageResponse[dto.TransactionResponse]](t, w)
	if resp.Count != 2 || resp.NumPages != 2 || resp.Previous != nil || resp.Next == nil {
		t.Fatalf("unexpected page %+v", resp)
	}
	if !strings.Contains(*resp.Next, "page=2") || !strings.Contains(*resp.Next, "transaction_type=D") {
		t.Fatalf("next link = %s", *resp.Next)
	}
	// 第一頁沒有 first，最後一頁連結指向第 2 頁
	if resp.First != nil || resp.Last == nil {
		t.Fatalf("first/last = %v %v", resp.First, resp.Last)
	}
	if !strings.HasPrefix(*resp.Last, "http://") || !strings.Contains(*resp.Last, "page=2") {
		t.Fatalf("last link = %s", *resp.Last)
	}

	w = doRequest(router, http.MethodGet, "/api/accounts/7/transactions?page=2&page_size=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("page 2 status = %d", w.Code)
	}
	resp = decodeBody[dto.PageResponse[dto.TransactionResponse]](t, w)
	if resp.Next != nil || resp.Last != nil || resp.Previous == nil || resp.First == nil {
		t.Fatalf("unexpected links on last page %+v", resp)
	}
	if !strings.Contains(*resp.First, "page=1") {
		t.Fatalf("first link = %s", *resp.First)
	}

	if w := doRequest(router, http.MethodGet, "/api/accounts/7/transactions?start_date=01-01-2024", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/accounts/7/transactions?page=3", ""); w.Code != http.StatusNotFound {
		t.Fatalf("out of range status = %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/accounts/7/transactions?page=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("non numeric page status = %d", w.Code)
	}
}

func TestListAccounts(t *testing.T) {
	q := &mockQuerier{listFn: func(page, size int) (*domain.Paginated[domain.Account], error) {
		return &domain.Paginated[domain.Account]{
			Items: []domain.Account{*testAccount(1, "DE89370400440532013000", "1")},
			Count: 1, Page: 1, PageSize: 10, NumPages: 1,
		}, nil
	}}
	router := newTestRouter(&mockCommander{}, q)

	w := doRequest(router, http.MethodGet, "/api/accounts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeBody[dto.PageResponse[dto.AccountResponse]](t, w)
	if len(resp.Results) != 1 || resp.Next != nil || resp.Previous != nil {
		t.Fatalf("unexpected page %+v", resp)
	}
	// 只有一頁時四個連結都是 null
	if resp.First != nil || resp.Last != nil {
		t.Fatalf("single page must not carry first/last: %v %v", resp.First, resp.Last)
	}
	if !strings.Contains(w.Body.String(), `"first":null`) || !strings.Contains(w.Body.String(), `"last":null`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestPageLinkScheme(t *testing.T) {
	q := &mockQuerier{listFn: func(page, size int) (*domain.Paginated[domain.Account], error) {
		return &domain.Paginated[domain.Account]{Count: 2, Page: 1, PageSize: 1, NumPages: 2}, nil
	}}
	router := newTestRouter(&mockCommander{}, q)

	tests := []struct {
		proto string
		want  string
	}{
		{"", "http://"},
		{"https", "https://"},
		{"HTTPS", "https://"},
		{"javascript", "http://"},
		{"ftp", "http://"},
	}
	for _, tt := range tests {
		t.Run(tt.proto, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			resp := decodeBody[dto.PageResponse[dto.AccountResponse]](t, w)
			if resp.Next == nil || !strings.HasPrefix(*resp.Next, tt.want) {
				t.Fatalf("next = %v, want prefix %s", resp.Next, tt.want)
			}
		})
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	q := &mockQuerier{getFn: func(int64) (*domain.Account, error) {
		return nil, errors.New("connection refused")
	}}
	router := newTestRouter(&mockCommander{}, q)

	w := doRequest(router, http.MethodGet, "/api/accounts/1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&mockCommander{}, &mockQuerier{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("status = %d, request id = %q", w.Code, w.Header().Get(RequestIDHeader))
	}
}
