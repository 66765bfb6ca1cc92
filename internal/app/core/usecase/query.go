package usecase

import (
	"context"
	"time"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// QueryService 唯讀查詢：帳戶與交易列表
type QueryService struct {
	ledger          Ledger
	cache           AccountCache
	defaultPageSize int
	maxPageSize     int
}

// QueryOption 定義了 QueryService 的配置選項函數
type QueryOption func(*QueryService)

// WithQueryCache 設定帳戶讀取快取 (read-through)
func WithQueryCache(cache AccountCache) QueryOption {
	return func(q *QueryService) {
		q.cache = cache
	}
}

// WithPageSizes 設定預設與最大分頁大小，<= 0 的值會被忽略
func WithPageSizes(defaultSize, maxSize int) QueryOption {
	return func(q *QueryService) {
		if defaultSize > 0 {
			q.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			q.maxPageSize = maxSize
		}
	}
}

func NewQueryService(ledger Ledger, opts ...QueryOption) *QueryService {
	q := &QueryService{
		ledger:          ledger,
		cache:           nopCache{},
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.defaultPageSize > q.maxPageSize {
		q.defaultPageSize = q.maxPageSize
	}
	return q
}

// TransactionQuery 交易列表查詢條件
//
// StartDate 與 EndDate 只看日期部分，兩端都包含；Page 為 0 視為第 1 頁。
type TransactionQuery struct {
	AccountID int64
	Type      string
	StartDate *time.Time
	EndDate   *time.Time
	Ordering  string
	Page      int
	PageSize  int
}

// GetAccount 取得帳戶，先查快取
func (q *QueryService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	cached, version, ok := q.cache.Get(ctx, id)
	if ok {
		return cached, nil
	}
	acc, err := q.ledger.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	q.cache.Fill(ctx, acc, version)
	return acc, nil
}

// GetAccountByIBAN 依 IBAN 取得帳戶
func (q *QueryService) GetAccountByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return q.ledger.GetAccountByIBAN(ctx, iban)
}

// ListAccounts 分頁列出帳戶
func (q *QueryService) ListAccounts(ctx context.Context, page, pageSize int) (*domain.Paginated[domain.Account], error) {
	page, pageSize, err := q.resolvePage(page, pageSize)
	if err != nil {
		return nil, err
	}
	result, err := q.ledger.ListAccounts(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return paginate(result, page, pageSize)
}

// ListTransactions 篩選、排序並分頁列出一個帳戶的交易紀錄
//
// 參數:
//
//	ctx: 上下文
//	in: 查詢條件
//
// 回傳:
//
//	*domain.Paginated[domain.Transaction]: 單頁結果
//	error: ErrAccountNotFound / ErrPageOutOfRange / *domain.ValidationError
func (q *QueryService) ListTransactions(ctx context.Context, in TransactionQuery) (*domain.Paginated[domain.Transaction], error) {
	page, pageSize, err := q.resolvePage(in.Page, in.PageSize)
	if err != nil {
		return nil, err
	}
	ordering, err := domain.ParseOrdering(in.Ordering)
	if err != nil {
		return nil, err
	}
	filter := domain.TransactionFilter{
		AccountID: in.AccountID,
		Ordering:  ordering,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	}
	if in.Type != "" {
		typ, err := domain.ParseTransactionType(in.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = &typ
	}
	if in.StartDate != nil {
		since := startOfDay(*in.StartDate)
		filter.Since = &since
	}
	if in.EndDate != nil {
		until := startOfDay(*in.EndDate).AddDate(0, 0, 1)
		filter.Until = &until
	}

	if _, err := q.ledger.GetAccount(ctx, in.AccountID); err != nil {
		return nil, err
	}
	result, err := q.ledger.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return paginate(result, page, pageSize)
}

func (q *QueryService) resolvePage(page, pageSize int) (int, int, error) {
	switch {
	case page < 0:
		return 0, 0, domain.NewValidationError("page", "must be a positive integer", nil)
	case page == 0:
		page = 1
	}
	switch {
	case pageSize < 0:
		return 0, 0, domain.NewValidationError("page_size", "must be a positive integer", nil)
	case pageSize == 0:
		pageSize = q.defaultPageSize
	case pageSize > q.maxPageSize:
		pageSize = q.maxPageSize
	}
	return page, pageSize, nil
}

func paginate[T any](result domain.Page[T], page, pageSize int) (*domain.Paginated[T], error) {
	numPages := (result.Total + pageSize - 1) / pageSize
	if numPages < 1 {
		numPages = 1
	}
	if page > numPages {
		return nil, domain.ErrPageOutOfRange
	}
	items := result.Items
	if items == nil {
		items = []T{}
	}
	return &domain.Paginated[T]{
		Items:    items,
		Count:    result.Total,
		Page:     page,
		PageSize: pageSize,
		NumPages: numPages,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
