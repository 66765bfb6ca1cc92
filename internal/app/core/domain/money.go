package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 金額一律使用定點小數：總長 15 位，其中小數 2 位
const (
	AmountScale int32 = 2
	MaxDigits   int32 = 15
)

// maxMagnitude 10^13，餘額與金額的絕對值必須小於它
var maxMagnitude = decimal.New(1, MaxDigits-AmountScale)

// NormalizeAmount 檢查並正規化一筆交易金額
//
// 參數:
//
//	amount: 使用者輸入的金額
//
// 回傳:
//
//	decimal.Decimal: 以銀行家捨入法取到小數 2 位後的金額
//	error: ErrInvalidAmount (<= 0 或捨入後為 0) 或超出位數的 *ValidationError
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	rounded := amount.RoundBank(AmountScale)
	if !rounded.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if rounded.GreaterThanOrEqual(maxMagnitude) {
		return decimal.Zero, NewValidationError("amount", digitsReason(), nil)
	}
	return rounded, nil
}

// NormalizeBalance 檢查並正規化帳戶餘額 (開戶或直接修改時使用)
func NormalizeBalance(balance decimal.Decimal) (decimal.Decimal, error) {
	rounded := balance.RoundBank(AmountScale)
	if err := CheckBalance(rounded); err != nil {
		return decimal.Zero, err
	}
	return rounded, nil
}

// CheckBalance 確認餘額非負且沒有超出欄位位數
func CheckBalance(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return NewValidationError("balance", "ensure this value is greater than or equal to 0", nil)
	}
	if balance.GreaterThanOrEqual(maxMagnitude) {
		return NewValidationError("balance", digitsReason(), nil)
	}
	return nil
}

func digitsReason() string {
	return fmt.Sprintf("ensure that there are no more than %d digits in total", MaxDigits)
}

// FormatAmount 以固定小數 2 位輸出，例如 "1500.00"
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
