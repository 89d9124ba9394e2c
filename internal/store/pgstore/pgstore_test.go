package pgstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatabaseURLEnv = "EVENTPAGES_TEST_DATABASE_URL"

func openTestPool(test *testing.T) *pgxpool.Pool {
	test.Helper()
	databaseURL := os.Getenv(testDatabaseURLEnv)
	if databaseURL == "" {
		test.Skipf("%s not set", testDatabaseURLEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(test, err)
	test.Cleanup(pool.Close)
	require.NoError(test, Migrate(ctx, pool))
	return pool
}

func uniqueUserID(test *testing.T) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID("pgstore-" + uuid.NewString())
	require.NoError(test, err)
	return userID
}

func TestPostgresLedgerLifecycle(test *testing.T) {
	pool := openTestPool(test)
	service, err := ledger.NewService(New(pool), time.Now)
	require.NoError(test, err)
	userID := uniqueUserID(test)
	ctx := context.Background()

	first, err := service.EnsureProfile(ctx, userID, "pg@example.com")
	require.NoError(test, err)
	second, err := service.EnsureProfile(ctx, userID, "")
	require.NoError(test, err)
	assert.Equal(test, first.ProfileID, second.ProfileID)

	eventID, err := ledger.NewEventID(uuid.NewString())
	require.NoError(test, err)
	one, err := ledger.NewPositiveCredits(1)
	require.NoError(test, err)
	debited, err := service.Debit(ctx, userID, one, "", eventID)
	require.NoError(test, err)
	require.True(test, debited)

	_, found, err := service.FindDebitForEvent(ctx, userID, eventID)
	require.NoError(test, err)
	assert.True(test, found)

	key, err := ledger.NewIdempotencyKey("payment:" + uuid.NewString())
	require.NoError(test, err)
	three, err := ledger.NewPositiveCredits(3)
	require.NoError(test, err)
	_, err = service.Credit(ctx, userID, three, "purchase", ledger.EventID{}, key)
	require.NoError(test, err)
	_, err = service.Credit(ctx, userID, three, "purchase", ledger.EventID{}, key)
	require.ErrorIs(test, err, ledger.ErrDuplicateIdempotencyKey)

	reconciliation, err := service.Reconcile(ctx, userID)
	require.NoError(test, err)
	assert.True(test, reconciliation.Consistent())
	assert.Equal(test, ledger.Credits(3), reconciliation.Balance)
}

func TestPostgresConcurrentDebitOfLastCredit(test *testing.T) {
	pool := openTestPool(test)
	service, err := ledger.NewService(New(pool), time.Now)
	require.NoError(test, err)
	userID := uniqueUserID(test)
	_, err = service.EnsureProfile(context.Background(), userID, "")
	require.NoError(test, err)
	one, err := ledger.NewPositiveCredits(1)
	require.NoError(test, err)

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		successes int
	)
	for attempt := 0; attempt < 4; attempt++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			debited, err := service.Debit(context.Background(), userID, one, "", ledger.EventID{})
			assert.NoError(test, err)
			if debited {
				mutex.Lock()
				successes++
				mutex.Unlock()
			}
		}()
	}
	waitGroup.Wait()
	assert.Equal(test, 1, successes)

	balance, err := service.GetBalance(context.Background(), userID)
	require.NoError(test, err)
	assert.Equal(test, ledger.Credits(0), balance)
}
