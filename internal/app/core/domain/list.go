package domain

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// OrderField 交易列表可排序的欄位
type OrderField string

const (
	OrderByID              OrderField = "id"
	OrderByDate            OrderField = "date"
	OrderByAmount          OrderField = "amount"
	OrderByTransactionType OrderField = "transaction_type"
)

// DefaultOrdering 預設依日期由新到舊
const DefaultOrdering = "-date"

// Ordering 排序欄位與方向，相同值時以 ID 同方向排序
type Ordering struct {
	Field OrderField
	Desc  bool
}

// ParseOrdering 解析 "date"、"-amount" 這類字串，空字串使用 DefaultOrdering
func ParseOrdering(s string) (Ordering, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultOrdering
	}
	o := Ordering{}
	if strings.HasPrefix(s, "-") {
		o.Desc = true
		s = s[1:]
	}
	switch f := OrderField(s); f {
	case OrderByID, OrderByDate, OrderByAmount, OrderByTransactionType:
		o.Field = f
	default:
		return Ordering{}, NewValidationError("ordering", fmt.Sprintf("unknown ordering field %q", s), nil)
	}
	return o, nil
}

func (o Ordering) String() string {
	if o.Desc {
		return "-" + string(o.Field)
	}
	return string(o.Field)
}

// Compare 依排序設定比較兩筆交易，回傳值同 cmp.Compare
func (o Ordering) Compare(a, b Transaction) int {
	var c int
	switch o.Field {
	case OrderByDate:
		c = a.Date.Compare(b.Date)
	case OrderByAmount:
		c = a.Amount.Cmp(b.Amount)
	case OrderByTransactionType:
		c = strings.Compare(a.Type.Code(), b.Type.Code())
	}
	if c == 0 {
		c = cmp.Compare(a.ID, b.ID)
	}
	if o.Desc {
		return -c
	}
	return c
}

// TransactionFilter 帳本層的交易查詢條件
//
// Since 包含，Until 不包含；兩者皆可為 nil。
type TransactionFilter struct {
	AccountID int64
	Type      *TransactionType
	Since     *time.Time
	Until     *time.Time
	Ordering  Ordering
	Offset    int
	Limit     int
}

// Match 檢查交易是否符合類型與時間條件 (不含帳戶)
func (f *TransactionFilter) Match(t Transaction) bool {
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	if f.Since != nil && t.Date.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !t.Date.Before(*f.Until) {
		return false
	}
	return true
}

// Page 帳本層的查詢結果：單頁資料與符合條件的總數
type Page[T any] struct {
	Items []T
	Total int
}

// Paginated 對外的分頁結果
type Paginated[T any] struct {
	Items    []T
	Count    int
	Page     int
	PageSize int
	NumPages int
}

func (p *Paginated[T]) HasNext() bool {
	return p.Page < p.NumPages
}

func (p *Paginated[T]) HasPrevious() bool {
	return p.Page > 1
}
