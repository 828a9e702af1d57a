package repositories

import (
	"context"
	"errors"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	GetByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*models.Subscription, error)
	GetByLemonSqueezyID(ctx context.Context, lemonSqueezyID string) (*models.Subscription, error)
	// SetPendingSeats records the next-renewal seat count and marks the
	// provider quantity as out of sync.
	SetPendingSeats(ctx context.Context, id uuid.UUID, pendingSeats *int) error
	// ApplyRenewal commits the pending seat count at renewal time.
	ApplyRenewal(ctx context.Context, id uuid.UUID, newSeats int, renewsAt *time.Time) error
	UpdateRenewsAt(ctx context.Context, id uuid.UUID, renewsAt *time.Time) error
	MarkQuantitySynced(ctx context.Context, id uuid.UUID, quantity int) error
	// ListPendingSync returns unsynced subscriptions renewing before the
	// given instant whose provider quantity has to move.
	ListPendingSync(ctx context.Context, renewsBefore time.Time) ([]*models.Subscription, error)
}

type subscriptionRepo struct {
	db Database
}

func NewSubscriptionRepo(db Database) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, organization_id, lemonsqueezy_subscription_id, lemonsqueezy_subscription_item_id,
		lemonsqueezy_customer_id, lemonsqueezy_variant_id, lemonsqueezy_product_id, status, tier,
		current_seats, pending_seats, quantity, lemonsqueezy_quantity_synced, billing_period, billing_type,
		renews_at, ends_at, trial_ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.OrganizationID, &s.LemonSqueezySubscriptionID, &s.LemonSqueezySubscriptionItemID,
		&s.LemonSqueezyCustomerID, &s.LemonSqueezyVariantID, &s.LemonSqueezyProductID, &s.Status, &s.Tier,
		&s.CurrentSeats, &s.PendingSeats, &s.Quantity, &s.LemonSqueezyQuantitySynced, &s.BillingPeriod, &s.BillingType,
		&s.RenewsAt, &s.EndsAt, &s.TrialEndsAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, organization_id, lemonsqueezy_subscription_id, lemonsqueezy_subscription_item_id,
			lemonsqueezy_customer_id, lemonsqueezy_variant_id, lemonsqueezy_product_id, status, tier,
			current_seats, pending_seats, quantity, lemonsqueezy_quantity_synced, billing_period, billing_type,
			renews_at, ends_at, trial_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.OrganizationID, s.LemonSqueezySubscriptionID, s.LemonSqueezySubscriptionItemID,
		s.LemonSqueezyCustomerID, s.LemonSqueezyVariantID, s.LemonSqueezyProductID, s.Status, s.Tier,
		s.CurrentSeats, s.PendingSeats, s.Quantity, s.LemonSqueezyQuantitySynced, s.BillingPeriod, s.BillingType,
		s.RenewsAt, s.EndsAt, s.TrialEndsAt)
	return common.NewDatabaseError("create subscription", err)
}

func (r *subscriptionRepo) Update(ctx context.Context, s *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET lemonsqueezy_subscription_id = $1, lemonsqueezy_subscription_item_id = $2, lemonsqueezy_customer_id = $3,
			lemonsqueezy_variant_id = $4, lemonsqueezy_product_id = $5, status = $6, tier = $7,
			current_seats = $8, pending_seats = $9, quantity = $10, lemonsqueezy_quantity_synced = $11,
			billing_period = $12, billing_type = $13, renews_at = $14, ends_at = $15, trial_ends_at = $16,
			updated_at = NOW()
		WHERE id = $17
	`
	tag, err := r.db.Exec(ctx, query, s.LemonSqueezySubscriptionID, s.LemonSqueezySubscriptionItemID, s.LemonSqueezyCustomerID,
		s.LemonSqueezyVariantID, s.LemonSqueezyProductID, s.Status, s.Tier,
		s.CurrentSeats, s.PendingSeats, s.Quantity, s.LemonSqueezyQuantitySynced,
		s.BillingPeriod, s.BillingType, s.RenewsAt, s.EndsAt, s.TrialEndsAt, s.ID)
	return affectedOne("update subscription", tag.RowsAffected(), err)
}

func (r *subscriptionRepo) GetByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE organization_id = $1
	`
	return r.getOne(ctx, query, organizationID)
}

func (r *subscriptionRepo) GetByLemonSqueezyID(ctx context.Context, lemonSqueezyID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE lemonsqueezy_subscription_id = $1
	`
	return r.getOne(ctx, query, lemonSqueezyID)
}

func (r *subscriptionRepo) getOne(ctx context.Context, query string, arg interface{}) (*models.Subscription, error) {
	subscription, err := scanSubscription(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, common.NewDatabaseError("get subscription", err)
	}
	return subscription, nil
}

func (r *subscriptionRepo) SetPendingSeats(ctx context.Context, id uuid.UUID, pendingSeats *int) error {
	query := `
		UPDATE subscriptions
		SET pending_seats = $1, lemonsqueezy_quantity_synced = false, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, pendingSeats, id)
	return affectedOne("set pending seats", tag.RowsAffected(), err)
}

func (r *subscriptionRepo) ApplyRenewal(ctx context.Context, id uuid.UUID, newSeats int, renewsAt *time.Time) error {
	query := `
		UPDATE subscriptions
		SET current_seats = $1, pending_seats = NULL, lemonsqueezy_quantity_synced = true, renews_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, newSeats, renewsAt, id)
	return affectedOne("apply renewal", tag.RowsAffected(), err)
}

func (r *subscriptionRepo) UpdateRenewsAt(ctx context.Context, id uuid.UUID, renewsAt *time.Time) error {
	query := `
		UPDATE subscriptions
		SET renews_at = $1, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, renewsAt, id)
	return affectedOne("update renewal date", tag.RowsAffected(), err)
}

func (r *subscriptionRepo) MarkQuantitySynced(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE subscriptions
		SET quantity = $1, lemonsqueezy_quantity_synced = true, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, quantity, id)
	return affectedOne("mark quantity synced", tag.RowsAffected(), err)
}

// ListPendingSync also picks up rows whose pending count was cleared after
// the provider quantity had already been lowered.
func (r *subscriptionRepo) ListPendingSync(ctx context.Context, renewsBefore time.Time) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE lemonsqueezy_quantity_synced = false
			AND (pending_seats IS NOT NULL OR quantity <> current_seats)
			AND status IN ('active', 'on_trial', 'past_due')
			AND renews_at IS NOT NULL
			AND renews_at <= $1
		ORDER BY renews_at ASC
	`
	rows, err := r.db.Query(ctx, query, renewsBefore)
	if err != nil {
		return nil, common.NewDatabaseError("list pending subscriptions", err)
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		subscription, err := scanSubscription(rows)
		if err != nil {
			return nil, common.NewDatabaseError("scan subscription", err)
		}
		subscriptions = append(subscriptions, subscription)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewDatabaseError("list pending subscriptions", err)
	}
	return subscriptions, nil
}

func affectedOne(op string, rowsAffected int64, err error) error {
	if err != nil {
		return common.NewDatabaseError(op, err)
	}
	if rowsAffected == 0 {
		return common.ErrSubscriptionNotFound
	}
	return nil
}
