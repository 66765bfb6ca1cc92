package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 交易類型
// 為了節省記憶體，使用 uint8
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdrawal TransactionType = 2
	// 轉帳
	TransactionTypeTransfer TransactionType = 3
)

// Code 單字元代碼，對外 API 與資料庫都使用它
func (t TransactionType) Code() string {
	switch t {
	case TransactionTypeDeposit:
		return "D"
	case TransactionTypeWithdrawal:
		return "W"
	case TransactionTypeTransfer:
		return "T"
	default:
		return ""
	}
}

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "Deposit"
	case TransactionTypeWithdrawal:
		return "Withdrawal"
	case TransactionTypeTransfer:
		return "Transfer"
	default:
		return fmt.Sprintf("TransactionType(%d)", uint8(t))
	}
}

func (t TransactionType) Valid() bool {
	return t >= TransactionTypeDeposit && t <= TransactionTypeTransfer
}

// ParseTransactionType 接受 "D"/"W"/"T" 或完整名稱，不分大小寫
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "DEPOSIT":
		return TransactionTypeDeposit, nil
	case "W", "WITHDRAWAL", "WITHDRAW":
		return TransactionTypeWithdrawal, nil
	case "T", "TRANSFER":
		return TransactionTypeTransfer, nil
	}
	return 0, NewValidationError("transaction_type", fmt.Sprintf("select a valid choice, %q is not one of the available choices", s), nil)
}

func (t TransactionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid transaction type %d", uint8(t))
	}
	return []byte(t.Code()), nil
}

func (t *TransactionType) UnmarshalText(text []byte) error {
	parsed, err := ParseTransactionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Transaction 單一帳戶上的一筆不可變交易紀錄
//
// Amount 帶正負號：正數為入帳，負數為出帳。
// 一筆轉帳會產生兩筆 Transaction，彼此沒有關聯欄位。
type Transaction struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"transaction_type"`
}

// Movement 一次資金異動的意圖 (尚未寫入帳本)
type Movement struct {
	From   int64
	To     int64
	Amount decimal.Decimal
	Type   TransactionType
}

// GetLockIDs 回傳需要鎖定的帳號 ID，並確保順序以避免死鎖
func (m *Movement) GetLockIDs() []int64 {
	switch m.Type {
	case TransactionTypeTransfer:
		return LockOrder(m.From, m.To)
	case TransactionTypeDeposit:
		return LockOrder(m.To)
	case TransactionTypeWithdrawal:
		return LockOrder(m.From)
	}
	return nil
}

// LockOrder 由小到大排序並去除重複，所有交易單元都以這個順序取鎖
func LockOrder(ids ...int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Receipt 一個交易單元提交後的結果快照
type Receipt struct {
	Accounts     []Account
	Transactions []Transaction
}

// Account 依 ID 取得收據中的帳戶
func (r *Receipt) Account(id int64) (Account, bool) {
	for _, acc := range r.Accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return Account{}, false
}
