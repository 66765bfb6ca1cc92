package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	IBANMinLength = 5
	IBANMaxLength = 34
)

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{1,30}$`)

// IsValidIBAN 只檢查格式：兩碼國別、兩碼檢查碼、1~30 碼英數
func IsValidIBAN(iban string) bool {
	if len(iban) < IBANMinLength || len(iban) > IBANMaxLength {
		return false
	}
	return ibanPattern.MatchString(iban)
}

// ValidateIBAN 與 IsValidIBAN 相同，但回傳 *ValidationError
func ValidateIBAN(iban string) error {
	if !IsValidIBAN(iban) {
		return NewValidationError("iban", "invalid IBAN format", nil)
	}
	return nil
}

// GenerateIBAN 依 ISO 13616 mod-97 計算檢查碼並組出完整 IBAN
//
// 參數:
//
//	country: 兩碼國別 (例如 "DE")
//	bban: 國內帳號部分，只允許 A-Z 0-9
//
// 回傳:
//
//	string: 完整 IBAN
//	error: 參數格式錯誤
func GenerateIBAN(country, bban string) (string, error) {
	country = strings.ToUpper(country)
	bban = strings.ToUpper(bban)
	if len(country) != 2 || bban == "" {
		return "", fmt.Errorf("invalid iban parts %q %q", country, bban)
	}
	numeric, err := ibanDigits(bban + country + "00")
	if err != nil {
		return "", err
	}
	n, _ := new(big.Int).SetString(numeric, 10)
	check := 98 - new(big.Int).Mod(n, big.NewInt(97)).Int64()
	iban := fmt.Sprintf("%s%02d%s", country, check, bban)
	if err := ValidateIBAN(iban); err != nil {
		return "", err
	}
	return iban, nil
}

// ibanDigits 把英文字母轉成 10~35 的數字字串
func ibanDigits(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			fmt.Fprintf(&b, "%d", r-'A'+10)
		default:
			return "", fmt.Errorf("invalid iban character %q", r)
		}
	}
	return b.String(), nil
}
