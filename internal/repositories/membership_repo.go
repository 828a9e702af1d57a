package repositories

import (
	"context"
	"errors"

	"leavedesk/internal/common"
	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type MembershipRepository interface {
	GetByUserAndOrganization(ctx context.Context, userID, organizationID uuid.UUID) (*models.Membership, error)
	// CountSeats returns the number of memberships holding a seat (is_active)
	// and how many of those are in the removal grace period.
	CountSeats(ctx context.Context, organizationID uuid.UUID) (activeSeats int, pendingRemovals int, err error)
	UpdateState(ctx context.Context, membership *models.Membership) error
	// ArchivePendingRemovals finalizes every pending removal that carries an
	// effective date and returns how many memberships were archived.
	ArchivePendingRemovals(ctx context.Context, organizationID uuid.UUID) (int, error)
}

type membershipRepo struct {
	db Database
}

func NewMembershipRepo(db Database) MembershipRepository {
	return &membershipRepo{db: db}
}

const membershipColumns = `id, user_id, organization_id, role, status, is_active, removal_effective_date, created_at, updated_at`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	membership := &models.Membership{}
	var role, status string
	err := row.Scan(&membership.ID, &membership.UserID, &membership.OrganizationID, &role, &status,
		&membership.IsActive, &membership.RemovalEffectiveDate, &membership.CreatedAt, &membership.UpdatedAt)
	if err != nil {
		return nil, err
	}
	membership.Role = models.Role(role)
	membership.Status = models.MembershipStatus(status)
	return membership, nil
}

func (r *membershipRepo) GetByUserAndOrganization(ctx context.Context, userID, organizationID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2
	`
	membership, err := scanMembership(r.db.QueryRow(ctx, query, userID, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrMembershipNotFound
	}
	if err != nil {
		return nil, common.NewDatabaseError("get membership", err)
	}
	return membership, nil
}

func (r *membershipRepo) CountSeats(ctx context.Context, organizationID uuid.UUID) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_active = true),
			COUNT(*) FILTER (WHERE status = 'pending_removal')
		FROM memberships
		WHERE organization_id = $1
	`
	var activeSeats, pendingRemovals int
	if err := r.db.QueryRow(ctx, query, organizationID).Scan(&activeSeats, &pendingRemovals); err != nil {
		return 0, 0, common.NewDatabaseError("count seats", err)
	}
	return activeSeats, pendingRemovals, nil
}

func (r *membershipRepo) UpdateState(ctx context.Context, membership *models.Membership) error {
	query := `
		UPDATE memberships
		SET status = $1, is_active = $2, removal_effective_date = $3, updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, string(membership.Status), membership.IsActive, membership.RemovalEffectiveDate, membership.ID)
	if err != nil {
		return common.NewDatabaseError("update membership", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrMembershipNotFound
	}
	return nil
}

func (r *membershipRepo) ArchivePendingRemovals(ctx context.Context, organizationID uuid.UUID) (int, error) {
	query := `
		UPDATE memberships
		SET status = 'archived', is_active = false, removal_effective_date = NULL, updated_at = NOW()
		WHERE organization_id = $1
			AND status = 'pending_removal'
			AND removal_effective_date IS NOT NULL
	`
	tag, err := r.db.Exec(ctx, query, organizationID)
	if err != nil {
		return 0, common.NewDatabaseError("archive pending removals", err)
	}
	return int(tag.RowsAffected()), nil
}
