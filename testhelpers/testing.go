package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func()
}

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema. The test
// is skipped when no database is configured or in short mode.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() {
			_, _ = pool.Exec(context.Background(), `TRUNCATE billing_events, subscriptions, memberships, organizations CASCADE`)
			pool.Close()
		},
	}
}

// ApplyMigrations runs every file under migrations/ in name order.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir(), "*.sql"))
	if err != nil {
		return err
	}
	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return err
		}
	}
	return nil
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "migrations")
}

// SetupTestOrganization creates an organization with a unique slug.
func SetupTestOrganization(t *testing.T, db *TestDB) uuid.UUID {
	t.Helper()

	orgID := uuid.New()
	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO organizations (id, name, slug) VALUES ($1, $2, $3)`,
		orgID, "Test Organization", "test-org-"+orgID.String()[:8])
	if err != nil {
		t.Fatalf("Failed to create test organization: %v", err)
	}
	return orgID
}

// SetupTestMember adds an active member and returns the user id.
func SetupTestMember(t *testing.T, db *TestDB, orgID uuid.UUID, role models.Role) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO memberships (id, user_id, organization_id, role, status, is_active) VALUES ($1, $2, $3, $4, 'active', true)`,
		uuid.New(), userID, orgID, string(role))
	if err != nil {
		t.Fatalf("Failed to create test membership: %v", err)
	}
	return userID
}

// SetupTestSubscription creates an active quantity-based subscription
// billing the given number of seats.
func SetupTestSubscription(t *testing.T, db *TestDB, orgID uuid.UUID, providerID string, seats int, renewsAt time.Time) uuid.UUID {
	t.Helper()

	subscriptionID := uuid.New()
	_, err := db.Pool.Exec(context.Background(), `
		INSERT INTO subscriptions (id, organization_id, lemonsqueezy_subscription_id, lemonsqueezy_subscription_item_id,
			status, tier, current_seats, quantity, billing_period, renews_at)
		VALUES ($1, $2, $3, $4, 'active', 'business', $5, $5, 'monthly', $6)`,
		subscriptionID, orgID, providerID, "item_"+providerID, seats, renewsAt)
	if err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}
	return subscriptionID
}
