package sqldb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/sqldb"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID           int64            `gorm:"primaryKey;autoIncrement"`
	IBAN         string           `gorm:"column:iban;type:varchar(34);not null;uniqueIndex"`
	Balance      decimal.Decimal  `gorm:"type:decimal(15,2);not null"`
	CreatedAt    time.Time        `gorm:"not null"`
	UpdatedAt    time.Time        `gorm:"not null"`
	Transactions []sqlTransaction `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:        a.ID,
		IBAN:      a.IBAN,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

// sqlTransaction 對應資料庫的 transactions 表
// ID 由 snowflake 產生，依建立時間遞增
type sqlTransaction struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID int64           `gorm:"not null;index:idx_transactions_account_date,priority:1"`
	Date      time.Time       `gorm:"not null;index:idx_transactions_account_date,priority:2"`
	Amount    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Type      string          `gorm:"column:transaction_type;type:char(1);not null"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (t *sqlTransaction) toDomain() (domain.Transaction, error) {
	typ, err := domain.ParseTransactionType(t.Type)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	return domain.Transaction{
		ID:        t.ID,
		AccountID: t.AccountID,
		Date:      t.Date.UTC(),
		Amount:    t.Amount,
		Type:      typ,
	}, nil
}

// orderColumns 排序欄位白名單
var orderColumns = map[domain.OrderField]string{
	domain.OrderByID:              "id",
	domain.OrderByDate:            "date",
	domain.OrderByAmount:          "amount",
	domain.OrderByTransactionType: "transaction_type",
}

// SQLLedger 使用關聯式資料庫 (MySQL / PostgreSQL) 的帳本
//
// 交易單元對應一個資料庫交易，並以 SELECT ... FOR UPDATE 依 ID 順序鎖定帳戶。
type SQLLedger struct {
	client *sqldb.Client
	node   *snowflake.Node
}

func NewSQLLedger(client *sqldb.Client, node *snowflake.Node) *SQLLedger {
	return &SQLLedger{
		client: client,
		node:   node,
	}
}

// Migrate 建立或更新資料表
func (l *SQLLedger) Migrate(ctx context.Context) error {
	if err := l.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func (l *SQLLedger) db(ctx context.Context) *gorm.DB {
	return l.client.DB().WithContext(ctx)
}

// CreateAccount 開戶；有開戶餘額時在同一個資料庫交易中寫入存款紀錄
func (l *SQLLedger) CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	row := sqlAccount{IBAN: iban, Balance: balance, CreatedAt: now, UpdatedAt: now}
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		if !balance.IsPositive() {
			return nil
		}
		return tx.Create(&sqlTransaction{
			ID:        l.node.Generate().Int64(),
			AccountID: row.ID,
			Date:      now,
			Amount:    balance,
			Type:      domain.TransactionTypeDeposit.Code(),
		}).Error
	})
	if err != nil {
		if sqldb.IsDuplicateKey(err) {
			return nil, ibanTaken()
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return row.toDomain(), nil
}

// GetAccount 取得帳戶
func (l *SQLLedger) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var row sqlAccount
	if err := l.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (l *SQLLedger) GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	var row sqlAccount
	if err := l.db(ctx).Where("iban = ?", iban).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

// DeleteAccount 刪除帳戶，交易紀錄在同一個資料庫交易中一併刪除
func (l *SQLLedger) DeleteAccount(ctx context.Context, id int64) error {
	return l.db(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return domain.ErrAccountNotFound
		}
		if err := tx.Where("account_id = ?", id).Delete(&sqlTransaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&sqlAccount{}, id).Error
	})
}

// Atomic 在資料庫交易中執行交易單元
//
// 參數:
//
//	ctx: 上下文
//	ids: 需要鎖定的帳戶 ID (悲觀鎖，依 ID 排序避免死鎖)
//	fn: 交易邏輯，回傳錯誤時整個資料庫交易 Rollback
//
// 回傳:
//
//	error: fn 的錯誤或資料庫錯誤
func (l *SQLLedger) Atomic(ctx context.Context, ids []int64, fn func(usecase.Unit) error) error {
	ids = domain.LockOrder(ids...)
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Order("id").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		u := &sqlUnit{
			tx:       tx,
			node:     l.node,
			now:      time.Now().UTC().Truncate(time.Microsecond),
			locked:   make(map[int64]struct{}, len(ids)),
			accounts: make(map[int64]*domain.Account, len(rows)),
		}
		for _, id := range ids {
			u.locked[id] = struct{}{}
		}
		for i := range rows {
			u.accounts[rows[i].ID] = rows[i].toDomain()
		}
		return fn(u)
	})
	if err != nil && sqldb.IsDuplicateKey(err) {
		return ibanTaken()
	}
	return err
}

// ListAccounts 依 ID 遞增列出帳戶
func (l *SQLLedger) ListAccounts(ctx context.Context, offset, limit int) (domain.Page[domain.Account], error) {
	page := domain.Page[domain.Account]{Items: []domain.Account{}}
	var total int64
	if err := l.db(ctx).Model(&sqlAccount{}).Count(&total).Error; err != nil {
		return page, fmt.Errorf("count accounts: %w", err)
	}
	page.Total = int(total)

	var rows []sqlAccount
	if err := l.db(ctx).Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return page, fmt.Errorf("list accounts: %w", err)
	}
	for i := range rows {
		page.Items = append(page.Items, *rows[i].toDomain())
	}
	return page, nil
}

// ListTransactions 篩選、排序並分頁
func (l *SQLLedger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.Page[domain.Transaction], error) {
	page := domain.Page[domain.Transaction]{Items: []domain.Transaction{}}

	var exists int64
	if err := l.db(ctx).Model(&sqlAccount{}).Where("id = ?", filter.AccountID).Count(&exists).Error; err != nil {
		return page, fmt.Errorf("lookup account: %w", err)
	}
	if exists == 0 {
		return page, domain.ErrAccountNotFound
	}

	query := l.db(ctx).Model(&sqlTransaction{}).Where("account_id = ?", filter.AccountID)
	if filter.Type != nil {
		query = query.Where("transaction_type = ?", filter.Type.Code())
	}
	if filter.Since != nil {
		query = query.Where("date >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("date < ?", *filter.Until)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return page, fmt.Errorf("count transactions: %w", err)
	}
	page.Total = int(total)

	column, ok := orderColumns[filter.Ordering.Field]
	if !ok {
		column = "date"
	}
	var rows []sqlTransaction
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: filter.Ordering.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: filter.Ordering.Desc}).
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&rows).Error
	if err != nil {
		return page, fmt.Errorf("list transactions: %w", err)
	}
	for i := range rows {
		tran, err := rows[i].toDomain()
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, tran)
	}
	return page, nil
}

// sqlUnit 資料庫交易中的交易單元，寫入立即送出，Rollback 由 gorm Transaction 處理
type sqlUnit struct {
	tx       *gorm.DB
	node     *snowflake.Node
	now      time.Time
	locked   map[int64]struct{}
	accounts map[int64]*domain.Account
}

func (u *sqlUnit) Account(id int64) (domain.Account, error) {
	if _, ok := u.locked[id]; !ok {
		return domain.Account{}, fmt.Errorf("%w: %d", domain.ErrAccountNotLocked, id)
	}
	acc, ok := u.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *acc, nil
}

func (u *sqlUnit) UpdateAccountBalance(id int64, balance decimal.Decimal) error {
	if err := domain.CheckBalance(balance); err != nil {
		return err
	}
	if _, err := u.Account(id); err != nil {
		return err
	}
	err := u.tx.Model(&sqlAccount{}).Where("id = ?", id).
		Updates(map[string]any{"balance": balance, "updated_at": u.now}).Error
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	u.accounts[id].Balance = balance
	u.accounts[id].UpdatedAt = u.now
	return nil
}

func (u *sqlUnit) UpdateAccountIBAN(id int64, iban string) error {
	if err := domain.ValidateIBAN(iban); err != nil {
		return err
	}
	if _, err := u.Account(id); err != nil {
		return err
	}
	err := u.tx.Model(&sqlAccount{}).Where("id = ?", id).
		Updates(map[string]any{"iban": iban, "updated_at": u.now}).Error
	if err != nil {
		if sqldb.IsDuplicateKey(err) {
			return ibanTaken()
		}
		return fmt.Errorf("update iban: %w", err)
	}
	u.accounts[id].IBAN = iban
	u.accounts[id].UpdatedAt = u.now
	return nil
}

func (u *sqlUnit) AppendTransaction(id int64, amount decimal.Decimal, typ domain.TransactionType) (domain.Transaction, error) {
	if _, err := u.Account(id); err != nil {
		return domain.Transaction{}, err
	}
	row := sqlTransaction{
		ID:        u.node.Generate().Int64(),
		AccountID: id,
		Date:      u.now,
		Amount:    amount,
		Type:      typ.Code(),
	}
	if err := u.tx.Create(&row).Error; err != nil {
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return row.toDomain()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrAccountNotFound
	}
	return err
}

func ibanTaken() error {
	return domain.NewValidationError("iban", domain.ErrIBANAlreadyExists.Error(), domain.ErrIBANAlreadyExists)
}

var _ usecase.Ledger = (*SQLLedger)(nil)
