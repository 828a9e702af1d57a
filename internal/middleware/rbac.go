package middleware

import (
	"errors"
	"net/http"

	"leavedesk/internal/common"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const membershipContextKey = "acting_membership"

type RBACMiddleware struct {
	memberships repositories.MembershipRepository
}

func NewRBACMiddleware(memberships repositories.MembershipRepository) *RBACMiddleware {
	return &RBACMiddleware{
		memberships: memberships,
	}
}

// RequireOrgRole lets the request through only when the authenticated user
// holds a seat in the :orgId organization with one of the given roles.
func (m *RBACMiddleware) RequireOrgRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID, ok := common.GetUserIDFromContext(ctx)
			if !ok {
				return common.SendUnauthorizedError(c)
			}
			orgID, err := common.ValidateUUID(c.Param("orgId"), "orgId")
			if err != nil {
				return common.SendFailure(c, http.StatusBadRequest, err.Error())
			}

			membership, err := m.memberships.GetByUserAndOrganization(ctx, userID, orgID)
			if errors.Is(err, common.ErrMembershipNotFound) {
				return common.SendFailure(c, http.StatusForbidden, "Not a member of this organization")
			}
			if err != nil {
				log.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to check organization role")
				return common.SendInternalError(c, err, "Error checking permission")
			}
			if !membership.OccupiesSeat() || !hasRole(membership.Role, roles) {
				return common.SendFailure(c, http.StatusForbidden, "Insufficient permissions")
			}

			c.Set(membershipContextKey, membership)
			return next(c)
		}
	}
}

// ActingMembership returns the membership loaded by RequireOrgRole.
func ActingMembership(c echo.Context) (*models.Membership, bool) {
	membership, ok := c.Get(membershipContextKey).(*models.Membership)
	return membership, ok
}

func hasRole(role models.Role, allowed []models.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
