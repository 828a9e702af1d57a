package handlers

import (
	"errors"
	"net/http"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/models"
	"leavedesk/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// MembershipHandlers serves the seat and member lifecycle endpoints of an organization.
type MembershipHandlers struct {
	membershipService services.MembershipService
	seatUsageService  services.SeatUsageService
}

func NewMembershipHandlers(membershipService services.MembershipService, seatUsageService services.SeatUsageService) *MembershipHandlers {
	return &MembershipHandlers{
		membershipService: membershipService,
		seatUsageService:  seatUsageService,
	}
}

type SeatUsageResponse struct {
	Success bool              `json:"success"`
	Usage   *models.SeatUsage `json:"usage"`
}

type RemoveUserResponse struct {
	Success       bool      `json:"success"`
	EffectiveDate time.Time `json:"effective_date"`
}

type MembershipResponse struct {
	Success    bool               `json:"success"`
	Membership *models.Membership `json:"membership"`
}

// GetSeatUsage godoc
// @Summary      Seat usage of an organization
// @Tags         memberships
// @Produce      json
// @Param        orgId  path  string  true  "Organization ID"
// @Success      200  {object}  SeatUsageResponse
// @Failure      400  {object}  common.FailureResponse
// @Security     BearerAuth
// @Router       /v1/organizations/{orgId}/seats [get]
func (h *MembershipHandlers) GetSeatUsage(c echo.Context) error {
	orgID, err := common.ValidateUUID(c.Param("orgId"), "orgId")
	if err != nil {
		return common.SendFailure(c, http.StatusBadRequest, err.Error())
	}

	usage, err := h.seatUsageService.GetSeatUsage(c.Request().Context(), orgID)
	if err != nil {
		return membershipFailure(c, "get seat usage", err)
	}
	return c.JSON(http.StatusOK, SeatUsageResponse{Success: true, Usage: usage})
}

// RemoveUser godoc
// @Summary      Start the removal grace period of a member
// @Tags         memberships
// @Produce      json
// @Param        orgId   path  string  true  "Organization ID"
// @Param        userId  path  string  true  "User ID"
// @Success      200  {object}  RemoveUserResponse
// @Failure      400  {object}  common.FailureResponse
// @Failure      409  {object}  common.FailureResponse
// @Security     BearerAuth
// @Router       /v1/organizations/{orgId}/members/{userId}/remove [post]
func (h *MembershipHandlers) RemoveUser(c echo.Context) error {
	orgID, userID, actingID, ok, err := memberParams(c)
	if !ok {
		return err
	}

	effectiveDate, err := h.membershipService.RemoveUser(c.Request().Context(), userID, orgID, actingID)
	if err != nil {
		return membershipFailure(c, "remove user", err)
	}
	return c.JSON(http.StatusOK, RemoveUserResponse{Success: true, EffectiveDate: effectiveDate})
}

// ReactivateUser godoc
// @Summary      Cancel a pending removal
// @Tags         memberships
// @Produce      json
// @Param        orgId   path  string  true  "Organization ID"
// @Param        userId  path  string  true  "User ID"
// @Success      200  {object}  MembershipResponse
// @Failure      409  {object}  common.FailureResponse
// @Security     BearerAuth
// @Router       /v1/organizations/{orgId}/members/{userId}/reactivate [post]
func (h *MembershipHandlers) ReactivateUser(c echo.Context) error {
	orgID, userID, actingID, ok, err := memberParams(c)
	if !ok {
		return err
	}

	membership, err := h.membershipService.ReactivateUser(c.Request().Context(), userID, orgID, actingID)
	if err != nil {
		return membershipFailure(c, "reactivate user", err)
	}
	return c.JSON(http.StatusOK, MembershipResponse{Success: true, Membership: membership})
}

// ReactivateArchivedUser godoc
// @Summary      Restore an archived member
// @Tags         memberships
// @Produce      json
// @Param        orgId   path  string  true  "Organization ID"
// @Param        userId  path  string  true  "User ID"
// @Success      200  {object}  MembershipResponse
// @Failure      403  {object}  common.FailureResponse
// @Failure      409  {object}  common.FailureResponse
// @Security     BearerAuth
// @Router       /v1/organizations/{orgId}/members/{userId}/reactivate-archived [post]
func (h *MembershipHandlers) ReactivateArchivedUser(c echo.Context) error {
	orgID, userID, actingID, ok, err := memberParams(c)
	if !ok {
		return err
	}

	membership, err := h.membershipService.ReactivateArchivedUser(c.Request().Context(), userID, orgID, actingID)
	if err != nil {
		return membershipFailure(c, "reactivate archived user", err)
	}
	return c.JSON(http.StatusOK, MembershipResponse{Success: true, Membership: membership})
}

// memberParams parses the path ids and the acting user. When ok is false
// the failure response has already been written and err is its result.
func memberParams(c echo.Context) (orgID, userID, actingID uuid.UUID, ok bool, err error) {
	actingID, found := common.GetUserIDFromContext(c.Request().Context())
	if !found {
		return uuid.Nil, uuid.Nil, uuid.Nil, false, common.SendUnauthorizedError(c)
	}
	orgID, perr := common.ValidateUUID(c.Param("orgId"), "orgId")
	if perr != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, false, common.SendFailure(c, http.StatusBadRequest, perr.Error())
	}
	userID, perr = common.ValidateUUID(c.Param("userId"), "userId")
	if perr != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, false, common.SendFailure(c, http.StatusBadRequest, perr.Error())
	}
	return orgID, userID, actingID, true, nil
}

func membershipFailure(c echo.Context, op string, err error) error {
	var stateErr *common.MembershipStateError
	switch {
	case errors.Is(err, common.ErrSelfRemovalForbidden):
		return common.SendFailure(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrAdminRequired):
		return common.SendFailure(c, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrMembershipNotFound):
		return common.SendFailure(c, http.StatusNotFound, err.Error())
	case errors.As(err, &stateErr),
		errors.Is(err, common.ErrAlreadyPendingRemoval),
		errors.Is(err, common.ErrInvalidStateForReactivation):
		return common.SendFailure(c, http.StatusConflict, err.Error())
	}

	log.Error().Err(err).Str("op", op).Str("path", c.Path()).Msg("membership request failed")
	return common.SendInternalError(c, err, "Failed to "+op)
}
