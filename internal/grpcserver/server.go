// Package grpcserver exposes the credit ledger to internal callers over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "eventpages.credit.v1.CreditService"

	methodGetBalance       = "/" + ServiceName + "/GetBalance"
	methodListTransactions = "/" + ServiceName + "/ListTransactions"
	methodAddCredits       = "/" + ServiceName + "/AddCredits"

	errorInsufficientCredits     = "insufficient_credits"
	errorProfileNotFound         = "profile_not_found"
	errorDuplicateIdempotencyKey = "duplicate_idempotency_key"
	errorInvalidUserID           = "invalid_user_id"
	errorInvalidEventID          = "invalid_event_id"
	errorInvalidIdempotencyKey   = "invalid_idempotency_key"
	errorInvalidCredits          = "invalid_credits"
	errorInvalidListLimit        = "invalid_list_limit"
	errorInvalidRequest          = "invalid_request"
	errorStorage                 = "storage_failure"

	transactionHistoryLimit = 50
	defaultTopUpDescription = "top-up"
)

// Ledger is the subset of ledger.Service served over gRPC.
type Ledger interface {
	GetBalance(ctx context.Context, userID ledger.UserID) (ledger.Credits, error)
	ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error)
	Credit(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, description string, eventID ledger.EventID, idempotencyKey ledger.IdempotencyKey) (bool, error)
}

// CreditServiceServer is the server API of the credit service.
type CreditServiceServer interface {
	GetBalance(ctx context.Context, request *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	ListTransactions(ctx context.Context, request *wrapperspb.StringValue) (*structpb.ListValue, error)
	AddCredits(ctx context.Context, request *structpb.Struct) (*emptypb.Empty, error)
}

// CreditServiceDesc describes the service for grpc.Server.RegisterService.
var CreditServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CreditServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: getBalanceHandler},
		{MethodName: "ListTransactions", Handler: listTransactionsHandler},
		{MethodName: "AddCredits", Handler: addCreditsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventpages/credit/v1/credit.proto",
}

// RegisterCreditServiceServer registers server on registrar.
func RegisterCreditServiceServer(registrar grpc.ServiceRegistrar, server CreditServiceServer) {
	registrar.RegisterService(&CreditServiceDesc, server)
}

// CreditService adapts a Ledger to CreditServiceServer.
type CreditService struct {
	ledger Ledger
}

// NewCreditService constructs a gRPC server for the ledger service.
func NewCreditService(ledgerService Ledger) *CreditService {
	return &CreditService{ledger: ledgerService}
}

func (service *CreditService) GetBalance(ctx context.Context, request *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	userID, err := ledger.NewUserID(request.GetValue())
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	balance, err := service.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return wrapperspb.Int64(balance.Int64()), nil
}

func (service *CreditService) ListTransactions(ctx context.Context, request *wrapperspb.StringValue) (*structpb.ListValue, error) {
	userID, err := ledger.NewUserID(request.GetValue())
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	transactions, err := service.ledger.ListTransactions(ctx, userID, transactionHistoryLimit)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	values := make([]any, 0, len(transactions))
	for _, transaction := range transactions {
		values = append(values, map[string]any{
			"transaction_id":  transaction.TransactionID,
			"amount":          float64(transaction.Amount.Int64()),
			"type":            transaction.Type.String(),
			"description":     transaction.Description,
			"event_id":        transaction.EventID.String(),
			"idempotency_key": transaction.IdempotencyKey.String(),
			"created_at":      transaction.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

// AddCredits expects fields user_id, credits and optionally description, event_id and idempotency_key.
func (service *CreditService) AddCredits(ctx context.Context, request *structpb.Struct) (*emptypb.Empty, error) {
	fields := request.GetFields()
	userID, err := ledger.NewUserID(fields["user_id"].GetStringValue())
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	rawCredits := fields["credits"].GetNumberValue()
	if rawCredits != float64(int64(rawCredits)) {
		return nil, status.Error(codes.InvalidArgument, errorInvalidCredits)
	}
	amount, err := ledger.NewPositiveCredits(int64(rawCredits))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	var eventID ledger.EventID
	if raw := strings.TrimSpace(fields["event_id"].GetStringValue()); raw != "" {
		if eventID, err = ledger.NewEventID(raw); err != nil {
			return nil, mapToGRPCError(err)
		}
	}
	var idempotencyKey ledger.IdempotencyKey
	if raw := strings.TrimSpace(fields["idempotency_key"].GetStringValue()); raw != "" {
		if idempotencyKey, err = ledger.NewIdempotencyKey(raw); err != nil {
			return nil, mapToGRPCError(err)
		}
	}
	description := strings.TrimSpace(fields["description"].GetStringValue())
	if description == "" {
		description = defaultTopUpDescription
	}
	if _, err := service.ledger.Credit(ctx, userID, amount, description, eventID, idempotencyKey); err != nil {
		return nil, mapToGRPCError(err)
	}
	return &emptypb.Empty{}, nil
}

func mapToGRPCError(source error) error {
	if errors.Is(source, ledger.ErrInvalidUserID) {
		return status.Error(codes.InvalidArgument, errorInvalidUserID)
	}
	if errors.Is(source, ledger.ErrInvalidEventID) {
		return status.Error(codes.InvalidArgument, errorInvalidEventID)
	}
	if errors.Is(source, ledger.ErrInvalidIdempotencyKey) {
		return status.Error(codes.InvalidArgument, errorInvalidIdempotencyKey)
	}
	if errors.Is(source, ledger.ErrInvalidCredits) {
		return status.Error(codes.InvalidArgument, errorInvalidCredits)
	}
	if errors.Is(source, ledger.ErrInvalidListLimit) {
		return status.Error(codes.InvalidArgument, errorInvalidListLimit)
	}
	if errors.Is(source, ledger.ErrInsufficientCredits) {
		return status.Error(codes.FailedPrecondition, errorInsufficientCredits)
	}
	if errors.Is(source, ledger.ErrProfileNotFound) {
		return status.Error(codes.NotFound, errorProfileNotFound)
	}
	if errors.Is(source, ledger.ErrDuplicateIdempotencyKey) {
		return status.Error(codes.AlreadyExists, errorDuplicateIdempotencyKey)
	}
	if ledger.IsStorageFault(source) {
		return status.Error(codes.Unavailable, errorStorage)
	}
	return status.Error(codes.Internal, source.Error())
}

func getBalanceHandler(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	request := new(wrapperspb.StringValue)
	if err := decode(request); err != nil {
		return nil, status.Error(codes.InvalidArgument, errorInvalidRequest)
	}
	if interceptor == nil {
		return server.(CreditServiceServer).GetBalance(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: methodGetBalance}
	return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
		return server.(CreditServiceServer).GetBalance(ctx, request.(*wrapperspb.StringValue))
	})
}

func listTransactionsHandler(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	request := new(wrapperspb.StringValue)
	if err := decode(request); err != nil {
		return nil, status.Error(codes.InvalidArgument, errorInvalidRequest)
	}
	if interceptor == nil {
		return server.(CreditServiceServer).ListTransactions(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: methodListTransactions}
	return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
		return server.(CreditServiceServer).ListTransactions(ctx, request.(*wrapperspb.StringValue))
	})
}

func addCreditsHandler(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	request := new(structpb.Struct)
	if err := decode(request); err != nil {
		return nil, status.Error(codes.InvalidArgument, errorInvalidRequest)
	}
	if interceptor == nil {
		return server.(CreditServiceServer).AddCredits(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: methodAddCredits}
	return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
		return server.(CreditServiceServer).AddCredits(ctx, request.(*structpb.Struct))
	})
}
