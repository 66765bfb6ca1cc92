package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 銀行帳戶
//
// Balance 是交易紀錄金額總和的快取值，只能在交易單元內更新。
type Account struct {
	ID        int64           `json:"id"`
	IBAN      string          `json:"iban"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewAccount 建立帳戶快照
func NewAccount(id int64, iban string, balance decimal.Decimal, now time.Time) *Account {
	return &Account{
		ID:        id,
		IBAN:      iban,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Deposit 存款
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	balance := a.Balance.Add(amount)
	if err := CheckBalance(balance); err != nil {
		return err
	}
	a.Balance = balance
	return nil
}

// Withdraw 提款，餘額剛好等於金額時允許提到 0
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}
