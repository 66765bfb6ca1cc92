package memory

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

const (
	opCreate = "create"
	opDelete = "delete"
	opCommit = "commit"
)

// walRecord WAL 中的一筆紀錄，對應一個已提交的操作
//
// Accounts 是操作後的帳戶完整狀態，重放時直接覆蓋，不重新計算。
type walRecord struct {
	Op           string               `json:"op"`
	AccountID    int64                `json:"account_id,omitempty"`
	Accounts     []domain.Account     `json:"accounts,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
}

// store MutexLedger 與 LMAXLedger 共用的記憶體狀態
//
// 結構:
//
//	accounts: 帳戶資料 Map
//	byIBAN: IBAN 對帳戶 ID 的索引
//	transactions: 每個帳戶依寫入順序排列的交易紀錄
//	mu: 保護以上三個 Map；帳戶層級的互斥由呼叫端負責
//	wal: Write-Ahead Log 實例 (可為 nil)
type store struct {
	mu           sync.RWMutex
	accounts     map[int64]*domain.Account
	byIBAN       map[string]int64
	transactions map[int64][]domain.Transaction
	lastID       int64

	wal  *wal.WAL
	node *snowflake.Node
	now  func() time.Time
}

// newStore 建立記憶體狀態並從 WAL 恢復
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 表示不落地
//	node: 交易 ID 產生器
//
// 回傳:
//
//	*store: 恢復完成的狀態
//	error: WAL 讀取或重放錯誤
func newStore(w *wal.WAL, node *snowflake.Node) (*store, error) {
	s := &store{
		accounts:     make(map[int64]*domain.Account),
		byIBAN:       make(map[string]int64),
		transactions: make(map[int64][]domain.Transaction),
		wal:          w,
		node:         node,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 newStore 呼叫，無需 Lock (單執行緒)
func (s *store) recoverFromWAL() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		return s.apply(&rec)
	})
}

// persist 先寫 WAL 再套用到記憶體，呼叫前必須持有寫鎖
func (s *store) persist(rec *walRecord) error {
	if s.wal != nil {
		if _, err := s.wal.Write(rec); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}
	return s.apply(rec)
}

// apply 套用一筆紀錄 (不寫入 WAL)
func (s *store) apply(rec *walRecord) error {
	switch rec.Op {
	case opCreate:
		for i := range rec.Accounts {
			acc := rec.Accounts[i]
			s.accounts[acc.ID] = &acc
			s.byIBAN[acc.IBAN] = acc.ID
			s.lastID = max(s.lastID, acc.ID)
		}
	case opDelete:
		acc, ok := s.accounts[rec.AccountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		delete(s.byIBAN, acc.IBAN)
		delete(s.accounts, rec.AccountID)
		delete(s.transactions, rec.AccountID)
	case opCommit:
		for _, acc := range rec.Accounts {
			current, ok := s.accounts[acc.ID]
			if !ok {
				return domain.ErrAccountNotFound
			}
			if current.IBAN != acc.IBAN {
				delete(s.byIBAN, current.IBAN)
				s.byIBAN[acc.IBAN] = acc.ID
			}
			*current = acc
		}
	default:
		return fmt.Errorf("unknown wal op %q", rec.Op)
	}
	for _, tran := range rec.Transactions {
		s.transactions[tran.AccountID] = append(s.transactions[tran.AccountID], tran)
	}
	return nil
}

func (s *store) createAccount(iban string, balance decimal.Decimal) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIBAN[iban]; ok {
		return nil, ibanTaken()
	}

	now := s.now()
	acc := domain.NewAccount(s.lastID+1, iban, balance, now)
	rec := &walRecord{Op: opCreate, Accounts: []domain.Account{*acc}}
	// 開戶餘額記為一筆存款，讓餘額等於交易總和
	if balance.IsPositive() {
		rec.Transactions = append(rec.Transactions, domain.Transaction{
			ID:        s.node.Generate().Int64(),
			AccountID: acc.ID,
			Date:      now,
			Amount:    balance,
			Type:      domain.TransactionTypeDeposit,
		})
	}
	if err := s.persist(rec); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *store) getAccount(id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (s *store) getAccountByIBAN(iban string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIBAN[iban]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *store) deleteAccount(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	return s.persist(&walRecord{Op: opDelete, AccountID: id})
}

func (s *store) listAccounts(offset, limit int) domain.Page[domain.Account] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	page := domain.Page[domain.Account]{Total: len(ids), Items: []domain.Account{}}
	for _, id := range window(ids, offset, limit) {
		page.Items = append(page.Items, *s.accounts[id])
	}
	return page
}

func (s *store) listTransactions(filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[filter.AccountID]; !ok {
		return domain.Page[domain.Transaction]{}, domain.ErrAccountNotFound
	}

	matched := make([]domain.Transaction, 0)
	for _, tran := range s.transactions[filter.AccountID] {
		if filter.Match(tran) {
			matched = append(matched, tran)
		}
	}
	slices.SortFunc(matched, filter.Ordering.Compare)
	items := window(matched, filter.Offset, filter.Limit)
	return domain.Page[domain.Transaction]{Items: slices.Clone(items), Total: len(matched)}, nil
}

// window 取 items[offset : offset+limit]，limit <= 0 表示不限
func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[max(offset, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func ibanTaken() error {
	return domain.NewValidationError("iban", domain.ErrIBANAlreadyExists.Error(), domain.ErrIBANAlreadyExists)
}

// unit 交易單元的暫存區，commit 前其他讀者看不到任何寫入
type unit struct {
	s      *store
	locked map[int64]struct{}
	staged map[int64]*domain.Account
	order  []int64
	trans  []domain.Transaction
	now    time.Time
}

func (s *store) newUnit(ids []int64) *unit {
	locked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		locked[id] = struct{}{}
	}
	return &unit{
		s:      s,
		locked: locked,
		staged: make(map[int64]*domain.Account, len(ids)),
		now:    s.now(),
	}
}

func (u *unit) Account(id int64) (domain.Account, error) {
	if _, ok := u.locked[id]; !ok {
		return domain.Account{}, fmt.Errorf("%w: %d", domain.ErrAccountNotLocked, id)
	}
	if acc, ok := u.staged[id]; ok {
		return *acc, nil
	}
	acc, err := u.s.getAccount(id)
	if err != nil {
		return domain.Account{}, err
	}
	return *acc, nil
}

func (u *unit) stage(id int64) (*domain.Account, error) {
	if acc, ok := u.staged[id]; ok {
		return acc, nil
	}
	acc, err := u.Account(id)
	if err != nil {
		return nil, err
	}
	u.staged[id] = &acc
	u.order = append(u.order, id)
	return &acc, nil
}

func (u *unit) UpdateAccountBalance(id int64, balance decimal.Decimal) error {
	if err := domain.CheckBalance(balance); err != nil {
		return err
	}
	acc, err := u.stage(id)
	if err != nil {
		return err
	}
	acc.Balance = balance
	acc.UpdatedAt = u.now
	return nil
}

func (u *unit) UpdateAccountIBAN(id int64, iban string) error {
	if err := domain.ValidateIBAN(iban); err != nil {
		return err
	}
	if owner, err := u.s.getAccountByIBAN(iban); err == nil && owner.ID != id {
		return ibanTaken()
	}
	acc, err := u.stage(id)
	if err != nil {
		return err
	}
	acc.IBAN = iban
	acc.UpdatedAt = u.now
	return nil
}

func (u *unit) AppendTransaction(id int64, amount decimal.Decimal, typ domain.TransactionType) (domain.Transaction, error) {
	if _, err := u.Account(id); err != nil {
		return domain.Transaction{}, err
	}
	tran := domain.Transaction{
		ID:        u.s.node.Generate().Int64(),
		AccountID: id,
		Date:      u.now,
		Amount:    amount,
		Type:      typ,
	}
	u.trans = append(u.trans, tran)
	return tran, nil
}

// commit 一次套用所有暫存的寫入
func (u *unit) commit() error {
	if len(u.order) == 0 && len(u.trans) == 0 {
		return nil
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	rec := &walRecord{Op: opCommit, Transactions: u.trans}
	for _, id := range u.order {
		acc := u.staged[id]
		// 其他單元可能在這期間拿走同一個 IBAN
		if owner, ok := u.s.byIBAN[acc.IBAN]; ok && owner != id {
			return ibanTaken()
		}
		rec.Accounts = append(rec.Accounts, *acc)
	}
	return u.s.persist(rec)
}
