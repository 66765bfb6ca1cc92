package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// request 寫入請求包裝 channel，讓呼叫端可以等待結果
type request struct {
	run    func() error
	result chan error // 讓呼叫端等這個 channel
}

// LMAXLedger 單一寫入者的帳本
//
// 所有寫入 (開戶、刪除、交易單元) 都排進同一條輸送帶，由 run loop 依序執行，
// 因此不需要帳戶層級的鎖；讀取直接走 store 的讀鎖。
// 必須先呼叫 Start，否則寫入會回傳 domain.ErrLedgerClosed。
type LMAXLedger struct {
	store *store
	// 輸送帶 負責接收寫入
	requests chan *request
	// Pool 減少 GC 壓力
	requestPool sync.Pool

	started atomic.Bool
	stopped chan struct{}
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 表示只存在記憶體
//	node: 交易 ID 產生器
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 初始化錯誤
func NewLMAXLedger(w *wal.WAL, node *snowflake.Node) (*LMAXLedger, error) {
	// 在啟動前先恢復資料
	s, err := newStore(w, node)
	if err != nil {
		return nil, err
	}
	return &LMAXLedger{
		store:    s,
		requests: make(chan *request, 1000), // Buffer 1000
		requestPool: sync.Pool{
			New: func() any {
				return &request{
					result: make(chan error, 1),
				}
			},
		},
		stopped: make(chan struct{}),
	}, nil
}

// Start 啟動核心引擎 (非同步)，ctx 結束時處理完剩餘請求後停止
func (l *LMAXLedger) Start(ctx context.Context) {
	if l.started.Swap(true) {
		return
	}
	go l.run(ctx)
}

// Done 在 run loop 結束後關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.stopped
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			req.result <- req.run()
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.requests:
			req.result <- req.run()
		default:
			return
		}
	}
}

// submit 把寫入放上輸送帶並等待結果
//
// Submit(等待) -> Channel -> Run Loop (核心) -> WAL -> Map Update -> Result Channel -> Submit(收到結果)
func (l *LMAXLedger) submit(ctx context.Context, run func() error) error {
	if !l.started.Load() {
		return domain.ErrLedgerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 1. 放入輸送帶 (使用 sync.Pool 減少 GC)
	req := l.requestPool.Get().(*request)
	req.run = run
	select {
	case l.requests <- req:
	case <-l.stopped:
		l.release(req)
		return domain.ErrLedgerClosed
	case <-ctx.Done():
		l.release(req)
		return ctx.Err()
	}

	// 2. 已進入輸送帶就一定要等結果，否則呼叫端會誤判交易沒有發生
	select {
	case err := <-req.result:
		l.release(req)
		return err
	case <-l.stopped:
		select {
		case err := <-req.result:
			l.release(req)
			return err
		default:
			// loop 停止後才進入輸送帶，不會被執行
			return domain.ErrLedgerClosed
		}
	}
}

func (l *LMAXLedger) release(req *request) {
	req.run = nil
	l.requestPool.Put(req)
}

func (l *LMAXLedger) CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error) {
	var acc *domain.Account
	err := l.submit(ctx, func() error {
		var err error
		acc, err = l.store.createAccount(iban, balance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetAccount 取得指定帳戶的當前狀態
func (l *LMAXLedger) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return l.store.getAccount(id)
}

func (l *LMAXLedger) GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return l.store.getAccountByIBAN(iban)
}

func (l *LMAXLedger) DeleteAccount(ctx context.Context, id int64) error {
	return l.submit(ctx, func() error {
		return l.store.deleteAccount(id)
	})
}

// Atomic 在 run loop 上執行交易單元，同一時間只有一個單元在跑
func (l *LMAXLedger) Atomic(ctx context.Context, ids []int64, fn func(usecase.Unit) error) error {
	ids = domain.LockOrder(ids...)
	return l.submit(ctx, func() error {
		u := l.store.newUnit(ids)
		if err := fn(u); err != nil {
			return err
		}
		return u.commit()
	})
}

func (l *LMAXLedger) ListAccounts(ctx context.Context, offset, limit int) (domain.Page[domain.Account], error) {
	return l.store.listAccounts(offset, limit), nil
}

func (l *LMAXLedger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	return l.store.listTransactions(filter)
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
