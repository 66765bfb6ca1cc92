// Package bootstrap 依設定組裝帳本後端與周邊基礎設施，供 cmd/ 共用
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/snowflake"

	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	redis_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/redis"
	sqldb_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/sqldb"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/redis"
	"github.com/JoeShih716/go-bank-ledger/pkg/sqldb"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// Resources 已開啟的帳本與周邊資源
type Resources struct {
	Ledger usecase.Ledger
	Cache  usecase.AccountCache
	Events usecase.EventPublisher

	closers []func() error
}

// Open 依設定開啟帳本
//
// 參數:
//
//	ctx: LMAX 後端的生命週期；ctx 結束或 Close 時 run loop 處理完剩餘請求後停止
//	cfg: 應用程式設定
//	logger: 結構化 logger
//
// 回傳:
//
//	*Resources: 使用完畢必須呼叫 Close
//	error: 初始化錯誤
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	r := &Resources{}
	node, err := snowflake.NewNode(cfg.Ledger.NodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}

	if err := r.openLedger(ctx, cfg, node, logger); err != nil {
		r.Close()
		return nil, err
	}
	if cfg.Redis.Enabled {
		if err := r.openRedis(cfg, logger); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Resources) openLedger(ctx context.Context, cfg config.Config, node *snowflake.Node, logger *slog.Logger) error {
	switch cfg.Ledger.Backend {
	case config.BackendMemory, config.BackendLMAX:
		var w *wal.WAL
		if cfg.Ledger.WALPath != "" {
			var err error
			w, err = wal.NewWAL(cfg.Ledger.WALPath)
			if err != nil {
				return fmt.Errorf("init wal: %w", err)
			}
			r.closers = append(r.closers, w.Close)
		}

		if cfg.Ledger.Backend == config.BackendMemory {
			ledger, err := memory_adapter.NewMutexLedger(w, node)
			if err != nil {
				return fmt.Errorf("init mutex ledger: %w", err)
			}
			r.Ledger = ledger
		} else {
			ledger, err := memory_adapter.NewLMAXLedger(w, node)
			if err != nil {
				return fmt.Errorf("init lmax ledger: %w", err)
			}
			lctx, cancel := context.WithCancel(ctx)
			ledger.Start(lctx)
			r.closers = append(r.closers, func() error {
				cancel()
				<-ledger.Done()
				return nil
			})
			r.Ledger = ledger
		}
		if w != nil {
			logger.Info("ledger recovered from wal", slog.String("path", cfg.Ledger.WALPath), slog.Uint64("seq", w.Seq()))
		}

	case config.BackendMySQL, config.BackendPostgres:
		client, err := sqldb.NewClient(cfg.Database)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, client.Close)
		ledger := sqldb_adapter.NewSQLLedger(client, node)
		if err := ledger.Migrate(ctx); err != nil {
			return err
		}
		r.Ledger = ledger
		logger.Info("connected to database", slog.String("driver", client.Driver()))

	default:
		return fmt.Errorf("invalid ledger backend %q", cfg.Ledger.Backend)
	}
	logger.Info("ledger ready", slog.String("backend", cfg.Ledger.Backend))
	return nil
}

func (r *Resources) openRedis(cfg config.Config, logger *slog.Logger) error {
	client, err := redis.NewClient(cfg.Redis.Config)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, client.Close)
	r.Cache = redis_adapter.NewAccountCache(client.Client, cfg.Redis.CacheTTL, logger)
	r.Events = redis_adapter.NewEventPublisher(client.Client, cfg.Redis.Stream, cfg.Redis.StreamMaxLen)
	logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr), slog.String("stream", cfg.Redis.Stream))
	return nil
}

// EngineOptions BalanceEngine 需要的選項
func (r *Resources) EngineOptions(logger *slog.Logger) []usecase.EngineOption {
	opts := []usecase.EngineOption{usecase.WithLogger(logger)}
	if r.Cache != nil {
		opts = append(opts, usecase.WithAccountCache(r.Cache))
	}
	if r.Events != nil {
		opts = append(opts, usecase.WithEventPublisher(r.Events))
	}
	return opts
}

// QueryOptions QueryService 需要的選項
func (r *Resources) QueryOptions(cfg config.Config) []usecase.QueryOption {
	opts := []usecase.QueryOption{usecase.WithPageSizes(cfg.Ledger.DefaultPageSize, cfg.Ledger.MaxPageSize)}
	if r.Cache != nil {
		opts = append(opts, usecase.WithQueryCache(r.Cache))
	}
	return opts
}

// Close 依開啟的相反順序釋放資源
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
