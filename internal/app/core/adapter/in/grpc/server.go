package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Commander 寫入操作 (usecase.BalanceEngine)
type Commander interface {
	CreateAccount(ctx context.Context, iban string, balance decimal.Decimal) (*domain.Account, error)
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (*domain.Receipt, error)
	Transfer(ctx context.Context, fromIBAN, toIBAN string, amount decimal.Decimal) (*domain.Receipt, error)
}

// Querier 唯讀查詢 (usecase.QueryService)
type Querier interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	ListTransactions(ctx context.Context, q usecase.TransactionQuery) (*domain.Paginated[domain.Transaction], error)
}

type GrpcServer struct {
	commands Commander
	queries  Querier
	logger   *slog.Logger
}

func NewGrpcServer(commands Commander, queries Querier, logger *slog.Logger) *GrpcServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcServer{
		commands: commands,
		queries:  queries,
		logger:   logger,
	}
}

// decode 解碼並驗證請求
func decode(in *structpb.Struct, req any) error {
	if err := decodeStruct(in, req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if errs := dto.ValidateRequest(req); errs != nil {
		return status.Error(codes.InvalidArgument, dto.Summary(errs))
	}
	return nil
}

func (s *GrpcServer) reply(v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		s.logger.Error("encode grpc response", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// toStatus 把 domain 錯誤轉成 gRPC status
func (s *GrpcServer) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrIBANAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPageOutOfRange):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrLedgerClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error("grpc request failed", slog.Any("error", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GrpcServer) CreateAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.CreateAccountRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}
	acc, err := s.commands.CreateAccount(ctx, req.IBAN, balance)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.NewAccountResponse(acc))
}

func (s *GrpcServer) GetAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.AccountIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	acc, err := s.queries.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.NewAccountResponse(acc))
}

func (s *GrpcServer) Deposit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.AmountRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	receipt, err := s.commands.Deposit(ctx, req.AccountID, *req.Amount)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.NewReceiptResponse("deposit successful", receipt))
}

func (s *GrpcServer) Withdraw(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.AmountRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	receipt, err := s.commands.Withdraw(ctx, req.AccountID, *req.Amount)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.NewReceiptResponse("withdrawal successful", receipt))
}

func (s *GrpcServer) Transfer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.TransferRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	receipt, err := s.commands.Transfer(ctx, req.FromIBAN, req.ToIBAN, *req.Amount)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.NewReceiptResponse("transfer successful", receipt))
}

func (s *GrpcServer) ListTransactions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.ListTransactionsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	start, end := req.Dates()
	page, err := s.queries.ListTransactions(ctx, usecase.TransactionQuery{
		AccountID: req.AccountID,
		Type:      req.TransactionType,
		StartDate: start,
		EndDate:   end,
		Ordering:  req.Ordering,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(dto.PageResponse[dto.TransactionResponse]{
		Count:    page.Count,
		Page:     page.Page,
		NumPages: page.NumPages,
		Results:  dto.NewTransactionList(page),
	})
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
