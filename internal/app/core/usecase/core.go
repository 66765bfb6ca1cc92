package usecase

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// BalanceEngine 是核心業務邏輯層，負責所有會改變餘額的操作
//
// 每個操作都是一個交易單元：回傳錯誤時帳本完全不變。
// 快取失效與事件發佈在提交後執行，失敗只記錄 log。
type BalanceEngine struct {
	ledger Ledger
	cache  AccountCache
	events EventPublisher
	logger *slog.Logger
}

// EngineOption 定義了 BalanceEngine 的配置選項函數
type EngineOption func(*BalanceEngine)

// WithAccountCache 設定提交後要失效的帳戶快取
func WithAccountCache(cache AccountCache) EngineOption {
	return func(e *BalanceEngine) {
		e.cache = cache
	}
}

// WithEventPublisher 設定提交後的事件發佈者
func WithEventPublisher(p EventPublisher) EngineOption {
	return func(e *BalanceEngine) {
		e.events = p
	}
}

// WithLogger 設定 logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *BalanceEngine) {
		e.logger = logger
	}
}

func NewBalanceEngine(ledger Ledger, opts ...EngineOption) *BalanceEngine {
	e := &BalanceEngine{
		ledger: ledger,
		cache:  nopCache{},
		events: nopPublisher{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AccountUpdate 帳戶修改內容，nil 欄位表示不修改
type AccountUpdate struct {
	IBAN    *string
	Balance *decimal.Decimal
}

// CreateAccount 開戶
//
// 參數:
//
//	ctx: 上下文
//	iban: 帳戶 IBAN
//	balance: 開戶餘額，大於 0 時會記錄一筆存款
//
// 回傳:
//
//	*domain.Account: 新帳戶
//	error: *domain.ValidationError (IBAN 格式、重複、餘額)
func (e *BalanceEngine) CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error) {
	if err := domain.ValidateIBAN(iban); err != nil {
		return nil, err
	}
	balance, err := domain.NormalizeBalance(balance)
	if err != nil {
		return nil, err
	}
	acc, err := e.ledger.CreateAccount(ctx, iban, balance)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, domain.EventAccountCreated, domain.NewAccountEvent(*acc))
	return acc, nil
}

// UpdateAccount 修改 IBAN 或餘額
//
// 餘額的差額會以一筆存款 (增加) 或提款 (減少) 記錄，維持餘額等於交易總和。
func (e *BalanceEngine) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (*domain.Account, error) {
	if upd.IBAN != nil {
		if err := domain.ValidateIBAN(*upd.IBAN); err != nil {
			return nil, err
		}
	}
	var target decimal.Decimal
	if upd.Balance != nil {
		b, err := domain.NormalizeBalance(*upd.Balance)
		if err != nil {
			return nil, err
		}
		target = b
	}

	receipt := &domain.Receipt{}
	err := e.ledger.Atomic(ctx, []int64{id}, func(u Unit) error {
		acc, err := u.Account(id)
		if err != nil {
			return err
		}
		if upd.IBAN != nil && *upd.IBAN != acc.IBAN {
			if err := u.UpdateAccountIBAN(id, *upd.IBAN); err != nil {
				return err
			}
		}
		if upd.Balance != nil {
			diff := target.Sub(acc.Balance)
			switch diff.Sign() {
			case 1:
				if err := credit(u, id, diff, domain.TransactionTypeDeposit, receipt); err != nil {
					return err
				}
			case -1:
				if err := debit(u, id, diff.Neg(), domain.TransactionTypeWithdrawal, receipt); err != nil {
					return err
				}
			}
		}
		updated, err := u.Account(id)
		if err != nil {
			return err
		}
		receipt.Accounts = []domain.Account{updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, receipt)
	updated := receipt.Accounts[0]
	e.publish(ctx, domain.EventAccountUpdated, domain.NewAccountEvent(updated))
	return &updated, nil
}

// DeleteAccount 刪除帳戶 (連同交易紀錄)
func (e *BalanceEngine) DeleteAccount(ctx context.Context, id int64) error {
	if err := e.ledger.DeleteAccount(ctx, id); err != nil {
		return err
	}
	sctx := context.WithoutCancel(ctx)
	e.cache.Invalidate(sctx, id)
	e.publish(sctx, domain.EventAccountDeleted, domain.AccountEvent{AccountID: id})
	return nil
}

// Deposit 存款
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	amount: 金額，必須為正數
//
// 回傳:
//
//	*domain.Receipt: 更新後的帳戶與新增的交易紀錄
//	error: ErrInvalidAmount / ErrAccountNotFound
func (e *BalanceEngine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error) {
	amount, err := domain.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	return e.post(ctx, &domain.Movement{To: accountID, Amount: amount, Type: domain.TransactionTypeDeposit})
}

// Withdraw 提款
//
// 回傳:
//
//	error: ErrInvalidAmount / ErrAccountNotFound / ErrInsufficientFunds
func (e *BalanceEngine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error) {
	amount, err := domain.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	return e.post(ctx, &domain.Movement{From: accountID, Amount: amount, Type: domain.TransactionTypeWithdrawal})
}

// Transfer 轉帳，兩個帳戶在同一個交易單元中更新
//
// 回傳:
//
//	error: ErrInvalidAmount / ErrAccountNotFound / ErrSameAccount / ErrInsufficientFunds
func (e *BalanceEngine) Transfer(ctx context.Context, fromIBAN, toIBAN string, amount decimal.Decimal) (*domain.Receipt, error) {
	amount, err := domain.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	from, err := e.ledger.GetAccountByIBAN(ctx, fromIBAN)
	if err != nil {
		return nil, err
	}
	to, err := e.ledger.GetAccountByIBAN(ctx, toIBAN)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return nil, domain.ErrSameAccount
	}
	return e.post(ctx, &domain.Movement{From: from.ID, To: to.ID, Amount: amount, Type: domain.TransactionTypeTransfer})
}

// post 在單一交易單元中執行一次資金異動
func (e *BalanceEngine) post(ctx context.Context, mv *domain.Movement) (*domain.Receipt, error) {
	receipt := &domain.Receipt{}
	err := e.ledger.Atomic(ctx, mv.GetLockIDs(), func(u Unit) error {
		switch mv.Type {
		case domain.TransactionTypeDeposit:
			return credit(u, mv.To, mv.Amount, mv.Type, receipt)
		case domain.TransactionTypeWithdrawal:
			return debit(u, mv.From, mv.Amount, mv.Type, receipt)
		case domain.TransactionTypeTransfer:
			// 兩個帳戶都要先確認存在，避免只扣款不入帳
			if _, err := u.Account(mv.To); err != nil {
				return err
			}
			if err := debit(u, mv.From, mv.Amount, mv.Type, receipt); err != nil {
				return err
			}
			return credit(u, mv.To, mv.Amount, mv.Type, receipt)
		}
		return domain.NewValidationError("transaction_type", "unsupported transaction type", nil)
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, receipt)
	return receipt, nil
}

func credit(u Unit, id int64, amount decimal.Decimal, typ domain.TransactionType, r *domain.Receipt) error {
	acc, err := u.Account(id)
	if err != nil {
		return err
	}
	if err := acc.Deposit(amount); err != nil {
		return err
	}
	return apply(u, acc, amount, typ, r)
}

func debit(u Unit, id int64, amount decimal.Decimal, typ domain.TransactionType, r *domain.Receipt) error {
	acc, err := u.Account(id)
	if err != nil {
		return err
	}
	if err := acc.Withdraw(amount); err != nil {
		return err
	}
	return apply(u, acc, amount.Neg(), typ, r)
}

// apply 寫入新餘額與對應的交易紀錄
func apply(u Unit, acc domain.Account, signed decimal.Decimal, typ domain.TransactionType, r *domain.Receipt) error {
	if err := u.UpdateAccountBalance(acc.ID, acc.Balance); err != nil {
		return err
	}
	tran, err := u.AppendTransaction(acc.ID, signed, typ)
	if err != nil {
		return err
	}
	updated, err := u.Account(acc.ID)
	if err != nil {
		return err
	}
	r.Accounts = append(r.Accounts, updated)
	r.Transactions = append(r.Transactions, tran)
	return nil
}

// afterCommit 快取失效與事件發佈，不影響已提交的結果
func (e *BalanceEngine) afterCommit(ctx context.Context, r *domain.Receipt) {
	ctx = context.WithoutCancel(ctx)
	ids := make([]int64, 0, len(r.Accounts))
	balances := make(map[int64]decimal.Decimal, len(r.Accounts))
	for _, acc := range r.Accounts {
		ids = append(ids, acc.ID)
		balances[acc.ID] = acc.Balance
	}
	e.cache.Invalidate(ctx, ids...)
	for _, tran := range r.Transactions {
		e.publish(ctx, domain.EventTransactionPosted, domain.TransactionEvent{
			TransactionID:   strconv.FormatInt(tran.ID, 10),
			AccountID:       tran.AccountID,
			Amount:          domain.FormatAmount(tran.Amount),
			TransactionType: tran.Type.Code(),
			Balance:         domain.FormatAmount(balances[tran.AccountID]),
		})
	}
}

func (e *BalanceEngine) publish(ctx context.Context, eventType string, data any) {
	if err := e.events.Publish(context.WithoutCancel(ctx), eventType, data); err != nil {
		e.logger.Warn("failed to publish event", slog.String("event", eventType), slog.Any("error", err))
	}
}
