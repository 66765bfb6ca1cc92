package grpc

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
)

// Client LedgerService 的型別化客戶端
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return err
	}
	if err := decodeStruct(out, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*dto.AccountResponse, error) {
	var resp dto.AccountResponse
	err := c.invoke(ctx, MethodCreateAccount, dto.CreateAccountRequest{IBAN: iban, Balance: &balance}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetAccount(ctx context.Context, id int64) (*dto.AccountResponse, error) {
	var resp dto.AccountResponse
	if err := c.invoke(ctx, MethodGetAccount, dto.AccountIDRequest{AccountID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Deposit(ctx context.Context, id int64, amount decimal.Decimal) (*dto.ReceiptResponse, error) {
	return c.movement(ctx, MethodDeposit, id, amount)
}

func (c *Client) Withdraw(ctx context.Context, id int64, amount decimal.Decimal) (*dto.ReceiptResponse, error) {
	return c.movement(ctx, MethodWithdraw, id, amount)
}

func (c *Client) movement(ctx context.Context, method string, id int64, amount decimal.Decimal) (*dto.ReceiptResponse, error) {
	var resp dto.ReceiptResponse
	if err := c.invoke(ctx, method, dto.AmountRequest{AccountID: id, Amount: &amount}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Transfer(ctx context.Context, fromIBAN, toIBAN string, amount decimal.Decimal) (*dto.ReceiptResponse, error) {
	var resp dto.ReceiptResponse
	req := dto.TransferRequest{FromIBAN: fromIBAN, ToIBAN: toIBAN, Amount: &amount}
	if err := c.invoke(ctx, MethodTransfer, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListTransactions(ctx context.Context, req dto.ListTransactionsRequest) (*dto.PageResponse[dto.TransactionResponse], error) {
	var resp dto.PageResponse[dto.TransactionResponse]
	if err := c.invoke(ctx, MethodListTransactions, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
