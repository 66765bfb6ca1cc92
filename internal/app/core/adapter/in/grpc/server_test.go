package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// startServer 以 bufconn 啟動一個使用記憶體帳本的 gRPC 伺服器
func startServer(t *testing.T) *Client {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := memory.NewMutexLedger(nil, node)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
	RegisterLedgerServiceServer(srv, NewGrpcServer(usecase.NewBalanceEngine(ledger), usecase.NewQueryService(ledger), logger))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(RequestIDClientInterceptor()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestGrpc_AccountLifecycle(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	acc, err := c.CreateAccount(ctx, "US64SVBKUS6S3300958879", decimal.RequireFromString("1500"))
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != "1500.00" {
		t.Fatalf("balance = %s", acc.Balance)
	}

	receipt, err := c.Deposit(ctx, acc.ID, decimal.RequireFromString("750"))
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != "deposit successful" || receipt.Accounts[0].Balance != "2250.00" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	if _, err := c.Withdraw(ctx, acc.ID, decimal.RequireFromString("5000")); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	got, err := c.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != "2250.00" {
		t.Fatalf("balance = %s", got.Balance)
	}

	page, err := c.ListTransactions(ctx, dto.ListTransactionsRequest{AccountID: acc.ID, Ordering: "date"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 2 || len(page.Results) != 2 || page.Results[0].Amount != "1500.00" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestGrpc_Transfer(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	if _, err := c.CreateAccount(ctx, "US64SVBKUS6S3300958879", decimal.RequireFromString("1500")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateAccount(ctx, "DE89370400440532013000", decimal.RequireFromString("300")); err != nil {
		t.Fatal(err)
	}

	receipt, err := c.Transfer(ctx, "US64SVBKUS6S3300958879", "DE89370400440532013000", decimal.RequireFromString("500"))
	if err != nil {
		t.Fatal(err)
	}
	if len(receipt.Transactions) != 2 || receipt.Transactions[0].Amount != "-500.00" || receipt.Transactions[1].Amount != "500.00" {
		t.Fatalf("unexpected transactions %+v", receipt.Transactions)
	}

	_, err = c.Transfer(ctx, "US64SVBKUS6S3300958879", "US64SVBKUS6S3300958879", decimal.RequireFromString("1"))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for self transfer, got %v", err)
	}
}

func TestGrpc_ErrorCodes(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"invalid iban", func() error {
			_, err := c.CreateAccount(ctx, "INVALIDIBAN", decimal.Zero)
			return err
		}, codes.InvalidArgument},
		{"unknown account", func() error {
			_, err := c.GetAccount(ctx, 99)
			return err
		}, codes.NotFound},
		{"invalid account id", func() error {
			_, err := c.GetAccount(ctx, 0)
			return err
		}, codes.InvalidArgument},
		{"negative amount", func() error {
			_, err := c.Deposit(ctx, 1, decimal.RequireFromString("-5"))
			return err
		}, codes.InvalidArgument},
		{"duplicate iban", func() error {
			if _, err := c.CreateAccount(ctx, "GB82WEST12345698765432", decimal.Zero); err != nil {
				return err
			}
			_, err := c.CreateAccount(ctx, "GB82WEST12345698765432", decimal.Zero)
			return err
		}, codes.AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Fatalf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGrpc_MalformedRequest(t *testing.T) {
	c := startServer(t)
	in, err := structpb.NewStruct(map[string]any{"account_id": "not-a-number"})
	if err != nil {
		t.Fatal(err)
	}
	out := new(structpb.Struct)
	err = c.conn.Invoke(context.Background(), FullMethod(MethodGetAccount), in, out)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRequestIDClientInterceptor(t *testing.T) {
	interceptor := RequestIDClientInterceptor()
	var seen []string
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		seen = md.Get(RequestIDKey)
		return nil
	}

	if err := interceptor(context.Background(), "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] == "" {
		t.Fatalf("expected a generated request id, got %v", seen)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDKey, "fixed")
	if err := interceptor(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "fixed" {
		t.Fatalf("existing request id must be kept, got %v", seen)
	}
}
