package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是帳務儲存層的介面
//
// 所有會改變餘額的操作都必須透過 Atomic 在單一交易單元中完成。
type Ledger interface {
	// CreateAccount 開戶；balance > 0 時同時寫入一筆開戶存款紀錄
	CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error)
	// GetAccount 依 ID 取得帳戶
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// GetAccountByIBAN 依 IBAN 取得帳戶
	GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error)
	// DeleteAccount 刪除帳戶與其所有交易紀錄
	DeleteAccount(ctx context.Context, id int64) error
	// Atomic 依序鎖定 ids 後執行 fn，fn 回傳 nil 才提交
	Atomic(ctx context.Context, ids []int64, fn func(Unit) error) error
	// ListAccounts 依 ID 遞增列出帳戶
	ListAccounts(ctx context.Context, offset, limit int) (domain.Page[domain.Account], error)
	// ListTransactions 列出單一帳戶的交易紀錄
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error)
}

// Unit 交易單元，只在 Ledger.Atomic 的 callback 內有效
//
// 只能存取 Atomic 鎖定的帳戶，寫入在 callback 成功回傳後才對其他讀者可見。
type Unit interface {
	Account(id int64) (domain.Account, error)
	UpdateAccountBalance(id int64, balance decimal.Decimal) error
	UpdateAccountIBAN(id int64, iban string) error
	AppendTransaction(id int64, amount decimal.Decimal, typ domain.TransactionType) (domain.Transaction, error)
}

// AccountCache 帳戶讀取快取
//
// Get 未命中時回傳目前版本號，讀完帳本後帶著它呼叫 Fill；
// 期間若有 Invalidate (寫入已提交)，Fill 必須放棄寫入，避免舊資料蓋回快取。
type AccountCache interface {
	Get(ctx context.Context, id int64) (account *domain.Account, version int64, ok bool)
	Fill(ctx context.Context, account *domain.Account, version int64)
	Invalidate(ctx context.Context, ids ...int64)
}

// EventPublisher 提交後的事件發佈
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, int64) (*domain.Account, int64, bool) { return nil, -1, false }
func (nopCache) Fill(context.Context, *domain.Account, int64)             {}
func (nopCache) Invalidate(context.Context, ...int64)                     {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
