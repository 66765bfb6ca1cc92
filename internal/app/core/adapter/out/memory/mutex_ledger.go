package memory

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// MutexLedger 是一個使用帳戶層級 Mutex 實現的帳本
//
// 結構:
//
//	store: 帳戶與交易資料
//	locks: 帳戶 ID 對應的 Mutex，交易單元依 ID 由小到大取鎖
//
// 不同帳戶的交易單元可以並行，只有提交時短暫持有 store 的寫鎖。
type MutexLedger struct {
	store *store
	locks sync.Map // map[int64]*sync.Mutex
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 表示只存在記憶體
//	node: 交易 ID 產生器
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(w *wal.WAL, node *snowflake.Node) (*MutexLedger, error) {
	s, err := newStore(w, node)
	if err != nil {
		return nil, err
	}
	return &MutexLedger{store: s}, nil
}

// lock 依序鎖定帳戶，回傳解鎖函式
func (m *MutexLedger) lock(ids []int64) func() {
	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// CreateAccount 開戶
func (m *MutexLedger) CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.createAccount(iban, balance)
}

// GetAccount 取得指定帳戶的當前狀態
//
// 參數:
//
//	ctx: 上下文
//	id: 帳戶 ID
//
// 回傳:
//
//	*domain.Account: 帳戶快照
//	error: 查詢錯誤 (如帳戶不存在)
func (m *MutexLedger) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return m.store.getAccount(id)
}

func (m *MutexLedger) GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return m.store.getAccountByIBAN(iban)
}

// DeleteAccount 刪除帳戶，會等待該帳戶上進行中的交易單元
func (m *MutexLedger) DeleteAccount(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.lock([]int64{id})
	defer unlock()
	if err := m.store.deleteAccount(id); err != nil {
		return err
	}
	// 帳戶 ID 不會重複使用，還在等這把鎖的單元拿到後只會得到 ErrAccountNotFound
	m.locks.Delete(id)
	return nil
}

// Atomic 執行一個交易單元
//
// 參數:
//
//	ctx: 上下文
//	ids: 需要鎖定的帳戶 ID
//	fn: 交易邏輯，回傳錯誤時不提交任何寫入
//
// 回傳:
//
//	error: fn 的錯誤或提交錯誤
func (m *MutexLedger) Atomic(ctx context.Context, ids []int64, fn func(usecase.Unit) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids = domain.LockOrder(ids...)
	unlock := m.lock(ids)
	defer unlock()

	u := m.store.newUnit(ids)
	if err := fn(u); err != nil {
		return err
	}
	return u.commit()
}

func (m *MutexLedger) ListAccounts(ctx context.Context, offset, limit int) (domain.Page[domain.Account], error) {
	return m.store.listAccounts(offset, limit), nil
}

func (m *MutexLedger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	return m.store.listTransactions(filter)
}

var _ usecase.Ledger = (*MutexLedger)(nil)
