package repositories

import (
	"context"

	"leavedesk/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is a Database that can open transactions.
type Pool interface {
	Database
	database.TxBeginner
}

// Store groups the repositories used by the seat reconciliation services
// and scopes them to a transaction on demand.
type Store interface {
	Organizations() OrganizationRepository
	Memberships() MembershipRepository
	Subscriptions() SubscriptionRepository
	BillingEvents() BillingEventRepository

	// LockOrganization serializes seat mutations of one organization until
	// the surrounding transaction ends. Outside a transaction it is a no-op.
	LockOrganization(ctx context.Context, organizationID uuid.UUID) error

	// WithTx runs fn against a transaction-scoped Store. Nested calls reuse
	// the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type pgStore struct {
	db   Database
	pool Pool
	inTx bool
}

func NewStore(pool Pool) Store {
	return &pgStore{db: pool, pool: pool}
}

func (s *pgStore) Organizations() OrganizationRepository { return NewOrganizationRepo(s.db) }
func (s *pgStore) Memberships() MembershipRepository { return NewMembershipRepo(s.db) }
func (s *pgStore) Subscriptions() SubscriptionRepository { return NewSubscriptionRepo(s.db) }
func (s *pgStore) BillingEvents() BillingEventRepository { return NewBillingEventRepo(s.db) }

func (s *pgStore) LockOrganization(ctx context.Context, organizationID uuid.UUID) error {
	if !s.inTx {
		return nil
	}
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, organizationID.String())
	return err
}

func (s *pgStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgStore{db: tx, inTx: true})
	})
}
