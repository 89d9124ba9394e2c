package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/glebarez/sqlite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const bufconnSize = 1024 * 1024

func startCreditClient(test *testing.T) (*CreditServiceClient, *ledger.Service) {
	test.Helper()
	path := filepath.Join(test.TempDir(), "eventpages.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gormstore.AutoMigrate(db); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	service, err := ledger.NewService(gormstore.New(db), func() time.Time { return time.Now().UTC() })
	if err != nil {
		test.Fatalf("ledger service init failed: %v", err)
	}

	listener := bufconn.Listen(bufconnSize)
	grpcServer := grpc.NewServer()
	RegisterCreditServiceServer(grpcServer, NewCreditService(service))
	go func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			test.Logf("gRPC server error: %v", serveErr)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		test.Fatalf("gRPC client init failed: %v", err)
	}
	test.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
		_ = sqlDB.Close()
	})
	return NewCreditServiceClient(conn), service
}

func provision(test *testing.T, service *ledger.Service, raw string) {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	if _, err := service.EnsureProfile(context.Background(), userID, raw+"@example.com"); err != nil {
		test.Fatalf("ensure profile: %v", err)
	}
}

func requireCode(test *testing.T, err error, code codes.Code, message string) {
	test.Helper()
	statusInfo, ok := status.FromError(err)
	if !ok {
		test.Fatalf("expected gRPC status, got %v", err)
	}
	if statusInfo.Code() != code || statusInfo.Message() != message {
		test.Fatalf("expected %s/%s, got %s/%s", code, message, statusInfo.Code(), statusInfo.Message())
	}
}

func TestAddCreditsAndReadBack(test *testing.T) {
	client, service := startCreditClient(test)
	provision(test, service, "user-grpc")
	ctx := context.Background()

	if err := client.AddCredits(ctx, "user-grpc", 4, "support top-up", "ticket-42"); err != nil {
		test.Fatalf("add credits: %v", err)
	}
	balance, err := client.GetBalance(ctx, "user-grpc")
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance != 5 {
		test.Fatalf("expected balance 5, got %d", balance)
	}
	entries, err := client.ListTransactions(ctx, "user-grpc")
	if err != nil {
		test.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 2 {
		test.Fatalf("expected 2 transactions, got %d", len(entries))
	}
	if entries[0]["description"] != "support top-up" || entries[0]["amount"] != float64(4) {
		test.Fatalf("unexpected newest entry: %v", entries[0])
	}
}

func TestAddCreditsDuplicateKey(test *testing.T) {
	client, service := startCreditClient(test)
	provision(test, service, "user-dup")
	ctx := context.Background()

	if err := client.AddCredits(ctx, "user-dup", 2, "", "grant-1"); err != nil {
		test.Fatalf("first add: %v", err)
	}
	err := client.AddCredits(ctx, "user-dup", 2, "", "grant-1")
	requireCode(test, err, codes.AlreadyExists, errorDuplicateIdempotencyKey)

	balance, err := client.GetBalance(ctx, "user-dup")
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance != 3 {
		test.Fatalf("expected balance 3, got %d", balance)
	}
}

func TestErrorsMapToStatusCodes(test *testing.T) {
	client, _ := startCreditClient(test)
	ctx := context.Background()

	_, err := client.GetBalance(ctx, "  ")
	requireCode(test, err, codes.InvalidArgument, errorInvalidUserID)

	_, err = client.GetBalance(ctx, "user-missing")
	requireCode(test, err, codes.NotFound, errorProfileNotFound)

	err = client.AddCredits(ctx, "user-missing", 0, "", "")
	requireCode(test, err, codes.InvalidArgument, errorInvalidCredits)

	err = client.AddCredits(ctx, "user-missing", 1, "", "")
	requireCode(test, err, codes.NotFound, errorProfileNotFound)
}

func TestMapToGRPCErrorStorageFault(test *testing.T) {
	err := mapToGRPCError(ledger.StorageFault(errors.New("disk gone")))
	requireCode(test, err, codes.Unavailable, errorStorage)

	err = mapToGRPCError(fmt.Errorf("debit: %w", ledger.ErrInsufficientCredits))
	requireCode(test, err, codes.FailedPrecondition, errorInsufficientCredits)
}
