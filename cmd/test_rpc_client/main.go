package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/grpc"
)

// 同時送出 withdrawals 筆提款到同一個帳戶，其中 extra 筆應該因餘額不足失敗，
// 最後確認餘額剛好為 0 且交易筆數正確
func main() {
	target := flag.String("target", "localhost:50051", "gRPC server address")
	withdrawals := flag.Int("withdrawals", 1000, "number of successful withdrawals expected")
	extra := flag.Int("extra", 50, "number of additional withdrawals that must fail")
	concurrency := flag.Int("concurrency", 100, "max in-flight requests")
	amountFlag := flag.String("amount", "10.00", "amount per withdrawal")
	flag.Parse()

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		log.Fatalf("invalid amount: %v", err)
	}

	pool := grpc.NewPool(grpc.WithInterceptor(grpc_adapter.RequestIDClientInterceptor()))
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	iban, err := domain.GenerateIBAN("DE", fmt.Sprintf("%018d", rand.Int64N(1e18)))
	if err != nil {
		log.Fatalf("generate iban: %v", err)
	}
	opening := amount.Mul(decimal.NewFromInt(int64(*withdrawals)))
	acc, err := c.CreateAccount(ctx, iban, opening)
	if err != nil {
		log.Fatalf("create account: %v", err)
	}
	log.Printf("created account %d (%s) with balance %s", acc.ID, acc.IBAN, acc.Balance)

	total := *withdrawals + *extra
	var ok, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)

	startTime := time.Now()
	for i := 0; i < total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := c.Withdraw(ctx, acc.ID, amount)
			switch {
			case err == nil:
				ok.Add(1)
			case status.Code(err) == codes.FailedPrecondition:
				rejected.Add(1)
			default:
				failed.Add(1)
				if idx%100 == 0 {
					log.Printf("withdraw %d failed: %v", idx, err)
				}
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	final, err := c.GetAccount(ctx, acc.ID)
	if err != nil {
		log.Fatalf("get account: %v", err)
	}
	fmt.Printf("Completed %d requests in %v\n", total, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(total)/elapsed.Seconds())
	fmt.Printf("succeeded=%d rejected=%d failed=%d final balance=%s\n", ok.Load(), rejected.Load(), failed.Load(), final.Balance)

	if err := verify(final.Balance, ok.Load(), int64(*withdrawals)); err != nil {
		log.Fatal(err)
	}

	// 開戶存款 + 每筆成功的提款
	history, err := c.ListTransactions(ctx, dto.ListTransactionsRequest{AccountID: acc.ID, PageSize: 1})
	if err != nil {
		log.Fatalf("list transactions: %v", err)
	}
	if want := int(ok.Load()) + 1; history.Count != want {
		log.Fatalf("transaction count %d, want %d", history.Count, want)
	}
	fmt.Println("OK: balance never went negative and every accepted withdrawal was recorded")
}

func verify(balance string, succeeded, expected int64) error {
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return err
	}
	if !b.IsZero() {
		return fmt.Errorf("final balance %s, want 0", balance)
	}
	if succeeded != expected {
		return errors.New("unexpected number of successful withdrawals")
	}
	return nil
}
