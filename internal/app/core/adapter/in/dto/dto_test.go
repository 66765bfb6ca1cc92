package dto

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func TestValidateRequest(t *testing.T) {
	amount := decimal.NewFromInt(5)
	badIBAN := "xx"

	tests := []struct {
		name       string
		req        any
		wantFields []string
	}{
		{"valid create", &CreateAccountRequest{IBAN: "DE89370400440532013000"}, nil},
		{"create bad iban", &CreateAccountRequest{IBAN: "DE89"}, []string{"iban"}},
		{"create missing iban", &CreateAccountRequest{}, []string{"iban"}},
		{"amount missing", &AmountRequest{AccountID: 1}, []string{"amount"}},
		{"amount bad id", &AmountRequest{Amount: &amount}, []string{"account_id"}},
		{"transfer", &TransferRequest{FromIBAN: "bad", ToIBAN: "DE89370400440532013000"}, []string{"from_iban", "amount"}},
		{"update optional iban", &UpdateAccountRequest{AccountID: 1}, nil},
		{"update bad iban", &UpdateAccountRequest{AccountID: 1, IBAN: &badIBAN}, []string{"iban"}},
		{"list bad date", &ListTransactionsRequest{AccountID: 1, StartDate: "2024/01/01"}, []string{"start_date"}},
		{"list negative page", &ListAccountsRequest{Page: -1}, []string{"page"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRequest(tt.req)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("got %+v, want fields %v", errs, tt.wantFields)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("error %d on %q, want %q", i, errs[i].Field, field)
				}
				if errs[i].Message == "" {
					t.Errorf("error %d has no message", i)
				}
			}
		})
	}
}

func TestSummary(t *testing.T) {
	got := Summary([]FieldError{
		{Field: "iban", Message: "Invalid IBAN format."},
		{Field: "amount", Message: "This field is required."},
	})
	if got != "iban: Invalid IBAN format.; amount: This field is required." {
		t.Fatalf("Summary = %q", got)
	}
}

func TestListTransactionsRequestDates(t *testing.T) {
	req := ListTransactionsRequest{StartDate: "2024-02-29"}
	start, end := req.Dates()
	if start == nil || !start.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if end != nil {
		t.Fatalf("end = %v, want nil", end)
	}
}

func TestResponsesUseTwoDecimals(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	receipt := &domain.Receipt{
		Accounts: []domain.Account{*domain.NewAccount(3, "DE89370400440532013000", decimal.NewFromInt(7), now)},
		Transactions: []domain.Transaction{{
			ID: 1800000000000000123, AccountID: 3, Date: now,
			Amount: decimal.RequireFromString("-2.5"), Type: domain.TransactionTypeWithdrawal,
		}},
	}
	raw, err := json.Marshal(NewReceiptResponse("withdrawal successful", receipt))
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, want := range []string{
		`"balance":"7.00"`,
		`"amount":"-2.50"`,
		`"id":"1800000000000000123"`,
		`"transaction_type":"W"`,
		`"account":3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response %s missing %s", body, want)
		}
	}
}

func TestMustRegisterPanicsOnError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a rejected validation tag")
		}
	}()
	mustRegister(validator.New(), "", func(validator.FieldLevel) bool { return true })
}

func TestIBANTagIsRegistered(t *testing.T) {
	type req struct {
		IBAN string `json:"iban" validate:"iban"`
	}
	if errs := ValidateRequest(req{IBAN: "DE89370400440532013000"}); errs != nil {
		t.Fatalf("valid iban rejected: %+v", errs)
	}
	errs := ValidateRequest(req{IBAN: "de89"})
	if len(errs) != 1 || errs[0].Field != "iban" || errs[0].Type != "iban" {
		t.Fatalf("unexpected errors %+v", errs)
	}
}
