// populate 用隨機帳戶與交易填充帳本，方便手動測試 API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/bootstrap"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/internal/logging"
)

var countries = []string{"DE", "FR", "ES", "GB", "NL", "IT"}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	accounts := flag.Int("accounts", 10, "number of accounts to create")
	seed := flag.Uint64("seed", 0, "random seed, 0 picks one at random")
	flag.Parse()

	if err := run(*configPath, *accounts, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "populate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, n int, seed uint64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)
	if cfg.Ledger.Backend == config.BackendMemory && cfg.Ledger.WALPath == "" {
		logger.Warn("memory backend without wal_path, generated data will be lost on exit")
	}

	ctx := context.Background()
	res, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer res.Close()

	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	engine := usecase.NewBalanceEngine(res.Ledger, res.EngineOptions(logger)...)

	created := make([]*domain.Account, 0, n)
	for len(created) < n {
		iban, err := randomIBAN(rng)
		if err != nil {
			return err
		}
		balance := decimal.NewFromInt(int64(1000 + rng.IntN(4001)))
		acc, err := engine.CreateAccount(ctx, iban, balance)
		if errors.Is(err, domain.ErrIBANAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		created = append(created, acc)
	}

	var posted, rejected int
	for _, acc := range created {
		for range 5 + rng.IntN(11) {
			err := randomMovement(ctx, rng, engine, acc, created)
			switch {
			case err == nil:
				posted++
			case errors.Is(err, domain.ErrInsufficientFunds):
				rejected++
			default:
				return err
			}
		}
	}

	logger.Info("populate finished",
		slog.Uint64("seed", seed),
		slog.Int("accounts", len(created)),
		slog.Int("transactions", posted),
		slog.Int("rejected", rejected),
	)
	return nil
}

func randomMovement(ctx context.Context, rng *rand.Rand, engine *usecase.BalanceEngine, acc *domain.Account, all []*domain.Account) error {
	amount := decimal.New(int64(100+rng.IntN(50000)), -2)
	var err error
	switch rng.IntN(3) {
	case 0:
		_, err = engine.Deposit(ctx, acc.ID, amount)
	case 1:
		_, err = engine.Withdraw(ctx, acc.ID, amount)
	default:
		if len(all) < 2 {
			_, err = engine.Deposit(ctx, acc.ID, amount)
			break
		}
		to := all[rng.IntN(len(all))]
		for to.ID == acc.ID {
			to = all[rng.IntN(len(all))]
		}
		_, err = engine.Transfer(ctx, acc.IBAN, to.IBAN, amount)
	}
	return err
}

// randomIBAN 隨機國別加上 18 碼數字 BBAN
func randomIBAN(rng *rand.Rand) (string, error) {
	var b strings.Builder
	for range 18 {
		b.WriteByte(byte('0' + rng.IntN(10)))
	}
	return domain.GenerateIBAN(countries[rng.IntN(len(countries))], b.String())
}
