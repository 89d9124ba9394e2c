package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CreditServiceClient calls CreditService over an established connection.
type CreditServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewCreditServiceClient wraps conn.
func NewCreditServiceClient(conn grpc.ClientConnInterface) *CreditServiceClient {
	return &CreditServiceClient{conn: conn}
}

func (client *CreditServiceClient) GetBalance(ctx context.Context, userID string, options ...grpc.CallOption) (int64, error) {
	response := new(wrapperspb.Int64Value)
	if err := client.conn.Invoke(ctx, methodGetBalance, wrapperspb.String(userID), response, options...); err != nil {
		return 0, err
	}
	return response.GetValue(), nil
}

func (client *CreditServiceClient) ListTransactions(ctx context.Context, userID string, options ...grpc.CallOption) ([]map[string]any, error) {
	response := new(structpb.ListValue)
	if err := client.conn.Invoke(ctx, methodListTransactions, wrapperspb.String(userID), response, options...); err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(response.GetValues()))
	for _, value := range response.GetValues() {
		entries = append(entries, value.GetStructValue().AsMap())
	}
	return entries, nil
}

// AddCredits sends a top-up. An empty idempotencyKey disables deduplication.
func (client *CreditServiceClient) AddCredits(ctx context.Context, userID string, credits int64, description string, idempotencyKey string, options ...grpc.CallOption) error {
	request, err := structpb.NewStruct(map[string]any{
		"user_id":         userID,
		"credits":         float64(credits),
		"description":     description,
		"idempotency_key": idempotencyKey,
	})
	if err != nil {
		return err
	}
	return client.conn.Invoke(ctx, methodAddCredits, request, new(emptypb.Empty), options...)
}
