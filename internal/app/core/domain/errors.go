package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金額必須為正數
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrIBANAlreadyExists IBAN 已被其他帳戶使用
	ErrIBANAlreadyExists = errors.New("account with this iban already exists")

	// ErrSameAccount 轉出與轉入為同一帳戶
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrPageOutOfRange 分頁超出範圍
	ErrPageOutOfRange = errors.New("invalid page")

	// ErrValidation 所有欄位驗證錯誤的共同祖先，搭配 errors.Is 使用
	ErrValidation = errors.New("validation failed")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerClosed 帳本已停止接收請求
	ErrLedgerClosed = errors.New("ledger closed")

	// ErrAccountNotLocked 在交易單元中存取未鎖定的帳戶
	ErrAccountNotLocked = errors.New("account not locked in unit")
)

// ValidationError 描述單一欄位的驗證失敗
//
// errors.Is(err, ErrValidation) 永遠成立；若有 Err，Unwrap 會回傳它。
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// NewValidationError 建立欄位驗證錯誤
func NewValidationError(field, reason string, cause error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: cause}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
