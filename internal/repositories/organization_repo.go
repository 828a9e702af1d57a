package repositories

import (
	"context"
	"errors"

	"leavedesk/internal/common"
	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrganizationRepository interface {
	Create(ctx context.Context, organization *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

type organizationRepo struct {
	db Database
}

func NewOrganizationRepo(db Database) OrganizationRepository {
	return &organizationRepo{db: db}
}

func (r *organizationRepo) Create(ctx context.Context, organization *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, organization.ID, organization.Name, organization.Slug)
	return common.NewDatabaseError("create organization", err)
}

func (r *organizationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *organizationRepo) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, slug))
}

func (r *organizationRepo) scanOne(row pgx.Row) (*models.Organization, error) {
	organization := &models.Organization{}
	err := row.Scan(&organization.ID, &organization.Name, &organization.Slug, &organization.CreatedAt, &organization.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, common.NewDatabaseError("get organization", err)
	}
	return organization, nil
}
