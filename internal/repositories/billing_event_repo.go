package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"leavedesk/internal/common"
	"leavedesk/internal/models"

	"github.com/jackc/pgx/v5"
)

// BillingEventRepository is the webhook idempotency ledger.
type BillingEventRepository interface {
	// Record inserts the event and reports whether it was new. A false
	// result means the event id was already processed.
	Record(ctx context.Context, event *models.BillingEvent) (bool, error)
	SetResult(ctx context.Context, eventID string, result json.RawMessage) error
	Get(ctx context.Context, eventID string) (*models.BillingEvent, error)
}

type billingEventRepo struct {
	db Database
}

func NewBillingEventRepo(db Database) BillingEventRepository {
	return &billingEventRepo{db: db}
}

func (r *billingEventRepo) Record(ctx context.Context, event *models.BillingEvent) (bool, error) {
	query := `
		INSERT INTO billing_events (event_id, event_name, provider_subscription_id, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, event.EventID, event.EventName, event.ProviderSubscriptionID)
	if err != nil {
		return false, common.NewDatabaseError("record billing event", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *billingEventRepo) SetResult(ctx context.Context, eventID string, result json.RawMessage) error {
	query := `UPDATE billing_events SET result = $1 WHERE event_id = $2`
	_, err := r.db.Exec(ctx, query, []byte(result), eventID)
	return common.NewDatabaseError("store billing event result", err)
}

func (r *billingEventRepo) Get(ctx context.Context, eventID string) (*models.BillingEvent, error) {
	query := `
		SELECT event_id, event_name, provider_subscription_id, result, processed_at
		FROM billing_events
		WHERE event_id = $1
	`
	event := &models.BillingEvent{}
	var result []byte
	err := r.db.QueryRow(ctx, query, eventID).Scan(&event.EventID, &event.EventName, &event.ProviderSubscriptionID, &result, &event.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewDatabaseError("get billing event", err)
	}
	event.Result = result
	return event, nil
}
