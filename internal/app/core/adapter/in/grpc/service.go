package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPC 服務全名
const ServiceName = "ledger.v1.LedgerService"

// Method names
const (
	MethodCreateAccount    = "CreateAccount"
	MethodGetAccount       = "GetAccount"
	MethodDeposit          = "Deposit"
	MethodWithdraw         = "Withdraw"
	MethodTransfer         = "Transfer"
	MethodListTransactions = "ListTransactions"
)

// LedgerServiceServer 所有方法的請求與回應都是 google.protobuf.Struct，
// 內容與 REST API 的 JSON 相同
type LedgerServiceServer interface {
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransactions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary 產生一個 grpc.MethodHandler，負責解碼與攔截器串接
func unary(method string, call unaryCall) grpc.MethodHandler {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FullMethod 回傳 "/ledger.v1.LedgerService/<method>"
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LedgerServiceDesc 手寫的服務描述，等同 protoc 產生的 _ServiceDesc
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodCreateAccount, Handler: unary(MethodCreateAccount, LedgerServiceServer.CreateAccount)},
		{MethodName: MethodGetAccount, Handler: unary(MethodGetAccount, LedgerServiceServer.GetAccount)},
		{MethodName: MethodDeposit, Handler: unary(MethodDeposit, LedgerServiceServer.Deposit)},
		{MethodName: MethodWithdraw, Handler: unary(MethodWithdraw, LedgerServiceServer.Withdraw)},
		{MethodName: MethodTransfer, Handler: unary(MethodTransfer, LedgerServiceServer.Transfer)},
		{MethodName: MethodListTransactions, Handler: unary(MethodListTransactions, LedgerServiceServer.ListTransactions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// decodeStruct 把 Struct 轉成 DTO
func decodeStruct(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// encodeStruct 把 DTO 轉成 Struct
func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("unmarshal struct: %w", err)
	}
	return out, nil
}
