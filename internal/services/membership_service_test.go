package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetSeatUsage(ctx context.Context, organizationID uuid.UUID) (*models.SeatUsage, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SeatUsage), args.Error(1)
}

func (m *MockCacheService) SetSeatUsage(ctx context.Context, usage *models.SeatUsage, ttl time.Duration) error {
	args := m.Called(ctx, usage, ttl)
	return args.Error(0)
}

func (m *MockCacheService) InvalidateSeatUsage(ctx context.Context, organizationID uuid.UUID) error {
	args := m.Called(ctx, organizationID)
	return args.Error(0)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MembershipServiceTestSuite struct {
	suite.Suite
	store        *fakeStore
	cache        *MockCacheService
	clock        *clockwork.FakeClock
	service      MembershipService
	org          *models.Organization
	admin        *models.Membership
	employees    []*models.Membership
	subscription *models.Subscription
	renewsAt     time.Time
	ctx          context.Context
}

func (suite *MembershipServiceTestSuite) SetupTest() {
	suite.store = newFakeStore()
	suite.cache = &MockCacheService{}
	suite.cache.Test(suite.T())
	suite.clock = clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	suite.service = NewMembershipService(suite.store, suite.cache, suite.clock, 30*24*time.Hour)
	suite.ctx = context.Background()

	suite.org = suite.store.addOrganization("acme")
	suite.admin = suite.store.addMember(suite.org.ID, models.RoleAdmin)
	suite.employees = []*models.Membership{
		suite.store.addMember(suite.org.ID, models.RoleEmployee),
		suite.store.addMember(suite.org.ID, models.RoleEmployee),
		suite.store.addMember(suite.org.ID, models.RoleEmployee),
	}
	suite.renewsAt = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	renewsAt := suite.renewsAt
	suite.subscription = suite.store.addSubscription(suite.org.ID, "sub_1", 4, &renewsAt)

	suite.cache.On("InvalidateSeatUsage", mock.Anything, suite.org.ID).Return(nil).Maybe()
}

func (suite *MembershipServiceTestSuite) TearDownTest() {
	suite.store.assertMembershipInvariants(suite.T())
	suite.cache.AssertExpectations(suite.T())
}

func TestMembershipServiceTestSuite(t *testing.T) {
	suite.Run(t, new(MembershipServiceTestSuite))
}

func (suite *MembershipServiceTestSuite) pendingSeats() *int {
	return suite.store.subscription(suite.subscription.ID).PendingSeats
}

func (suite *MembershipServiceTestSuite) remove(m *models.Membership) time.Time {
	date, err := suite.service.RemoveUser(suite.ctx, m.UserID, suite.org.ID, suite.admin.UserID)
	require.NoError(suite.T(), err)
	return date
}

func (suite *MembershipServiceTestSuite) reactivate(m *models.Membership) {
	_, err := suite.service.ReactivateUser(suite.ctx, m.UserID, suite.org.ID, suite.admin.UserID)
	require.NoError(suite.T(), err)
}

func (suite *MembershipServiceTestSuite) TestRemoveReactivateRoundTrip() {
	e1, e2 := suite.employees[0], suite.employees[1]

	suite.remove(e1)
	require.NotNil(suite.T(), suite.pendingSeats())
	assert.Equal(suite.T(), 3, *suite.pendingSeats())
	stored := suite.store.member(e1.UserID, suite.org.ID)
	assert.Equal(suite.T(), models.MembershipPendingRemoval, stored.Status)
	assert.True(suite.T(), stored.IsActive)

	suite.remove(e2)
	assert.Equal(suite.T(), 2, *suite.pendingSeats())

	suite.reactivate(e1)
	require.NotNil(suite.T(), suite.pendingSeats())
	assert.Equal(suite.T(), 3, *suite.pendingSeats())

	suite.reactivate(e2)
	assert.Nil(suite.T(), suite.pendingSeats())
	assert.False(suite.T(), suite.store.subscription(suite.subscription.ID).LemonSqueezyQuantitySynced)
	assert.Equal(suite.T(), 4, suite.store.subscription(suite.subscription.ID).CurrentSeats)
}

func (suite *MembershipServiceTestSuite) TestReactivateAfterQuantityPushIsReselectedForSync() {
	e1 := suite.employees[0]
	subscriptions := suite.store.Subscriptions()
	window := suite.renewsAt.Add(time.Hour)

	suite.remove(e1)
	require.NoError(suite.T(), subscriptions.MarkQuantitySynced(suite.ctx, suite.subscription.ID, 3))
	suite.reactivate(e1)

	stored := suite.store.subscription(suite.subscription.ID)
	assert.Nil(suite.T(), stored.PendingSeats)
	assert.Equal(suite.T(), 3, stored.Quantity)
	assert.False(suite.T(), stored.LemonSqueezyQuantitySynced)

	selected, err := subscriptions.ListPendingSync(suite.ctx, window)
	require.NoError(suite.T(), err)
	if assert.Len(suite.T(), selected, 1) {
		assert.Equal(suite.T(), suite.subscription.ID, selected[0].ID)
		assert.Equal(suite.T(), 4, selected[0].CurrentSeats)
	}
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_EffectiveDateIsRenewalCopy() {
	date := suite.remove(suite.employees[0])
	assert.True(suite.T(), suite.renewsAt.Equal(date))

	stored := suite.store.member(suite.employees[0].UserID, suite.org.ID)
	require.NotNil(suite.T(), stored.RemovalEffectiveDate)
	sub := suite.store.subscription(suite.subscription.ID)
	assert.NotSame(suite.T(), sub.RenewsAt, stored.RemovalEffectiveDate)

	*stored.RemovalEffectiveDate = stored.RemovalEffectiveDate.Add(time.Hour)
	assert.True(suite.T(), suite.renewsAt.Equal(*sub.RenewsAt))
	assert.Contains(suite.T(), suite.store.locked, suite.org.ID)
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_NoSubscriptionUsesGracePeriod() {
	other := suite.store.addOrganization("free")
	admin := suite.store.addMember(other.ID, models.RoleAdmin)
	member := suite.store.addMember(other.ID, models.RoleEmployee)
	suite.cache.On("InvalidateSeatUsage", mock.Anything, other.ID).Return(nil).Once()

	date, err := suite.service.RemoveUser(suite.ctx, member.UserID, other.ID, admin.UserID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.clock.Now().UTC().Add(30*24*time.Hour), date)
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_SelfRemovalForbidden() {
	_, err := suite.service.RemoveUser(suite.ctx, suite.admin.UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrSelfRemovalForbidden)
	assert.Nil(suite.T(), suite.pendingSeats())
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_SelfTargetAlreadyPending() {
	second := suite.store.addMember(suite.org.ID, models.RoleAdmin)
	_, err := suite.service.RemoveUser(suite.ctx, suite.admin.UserID, suite.org.ID, second.UserID)
	require.NoError(suite.T(), err)

	_, err = suite.service.RemoveUser(suite.ctx, suite.admin.UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrAlreadyPendingRemoval)
	assert.NotErrorIs(suite.T(), err, common.ErrSelfRemovalForbidden)
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_AlreadyPending() {
	suite.remove(suite.employees[0])

	_, err := suite.service.RemoveUser(suite.ctx, suite.employees[0].UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrAlreadyPendingRemoval)
	assert.Equal(suite.T(), 3, *suite.pendingSeats())
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_Archived() {
	archived := suite.store.member(suite.employees[2].UserID, suite.org.ID)
	archived.Status = models.MembershipArchived
	archived.IsActive = false

	_, err := suite.service.RemoveUser(suite.ctx, archived.UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrAlreadyPendingRemoval)
	assert.EqualError(suite.T(), err, "Cannot remove user with status: archived")
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_NotFound() {
	_, err := suite.service.RemoveUser(suite.ctx, uuid.New(), suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrMembershipNotFound)
}

func (suite *MembershipServiceTestSuite) TestRemoveUser_RollsBackOnStoreFailure() {
	suite.store.failures["SetPendingSeats"] = &common.DatabaseError{Op: "set pending seats", Err: errors.New("disk full")}

	_, err := suite.service.RemoveUser(suite.ctx, suite.employees[0].UserID, suite.org.ID, suite.admin.UserID)
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "Database error")

	stored := suite.store.member(suite.employees[0].UserID, suite.org.ID)
	assert.Equal(suite.T(), models.MembershipActive, stored.Status)
	assert.Nil(suite.T(), stored.RemovalEffectiveDate)
	assert.Equal(suite.T(), 1, suite.store.rollbacks)
}

func (suite *MembershipServiceTestSuite) TestReactivateUser_WrongState() {
	_, err := suite.service.ReactivateUser(suite.ctx, suite.employees[0].UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrInvalidStateForReactivation)
	assert.EqualError(suite.T(), err, "Cannot reactivate user with status: active")
}

func (suite *MembershipServiceTestSuite) TestReactivateUser_ClearsEffectiveDate() {
	suite.remove(suite.employees[0])
	suite.reactivate(suite.employees[0])

	stored := suite.store.member(suite.employees[0].UserID, suite.org.ID)
	assert.Equal(suite.T(), models.MembershipActive, stored.Status)
	assert.Nil(suite.T(), stored.RemovalEffectiveDate)
	assert.True(suite.T(), stored.IsActive)
}

func (suite *MembershipServiceTestSuite) TestReactivateArchivedUser() {
	archived := suite.store.member(suite.employees[2].UserID, suite.org.ID)
	archived.Status = models.MembershipArchived
	archived.IsActive = false
	sub := suite.store.subscription(suite.subscription.ID)
	sub.CurrentSeats = 3

	membership, err := suite.service.ReactivateArchivedUser(suite.ctx, archived.UserID, suite.org.ID, suite.admin.UserID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.MembershipActive, membership.Status)
	assert.True(suite.T(), membership.IsActive)

	require.NotNil(suite.T(), suite.pendingSeats())
	assert.Equal(suite.T(), 4, *suite.pendingSeats())
	assert.Equal(suite.T(), 3, suite.store.subscription(suite.subscription.ID).CurrentSeats)
	assert.False(suite.T(), suite.store.subscription(suite.subscription.ID).LemonSqueezyQuantitySynced)
}

func (suite *MembershipServiceTestSuite) TestReactivateArchivedUser_AdminRequired() {
	archived := suite.store.member(suite.employees[2].UserID, suite.org.ID)
	archived.Status = models.MembershipArchived
	archived.IsActive = false

	_, err := suite.service.ReactivateArchivedUser(suite.ctx, archived.UserID, suite.org.ID, suite.employees[0].UserID)
	assert.ErrorIs(suite.T(), err, common.ErrAdminRequired)

	_, err = suite.service.ReactivateArchivedUser(suite.ctx, archived.UserID, suite.org.ID, uuid.New())
	assert.ErrorIs(suite.T(), err, common.ErrAdminRequired)
	assert.Equal(suite.T(), models.MembershipArchived, suite.store.member(archived.UserID, suite.org.ID).Status)
}

func (suite *MembershipServiceTestSuite) TestReactivateArchivedUser_NotArchived() {
	_, err := suite.service.ReactivateArchivedUser(suite.ctx, suite.employees[0].UserID, suite.org.ID, suite.admin.UserID)
	assert.ErrorIs(suite.T(), err, common.ErrInvalidStateForReactivation)
	assert.EqualError(suite.T(), err, "Cannot reactivate user with status: active")
}

func (suite *MembershipServiceTestSuite) TestZeroNetPendingRemovalsClearsDrift() {
	for _, e := range suite.employees {
		suite.remove(e)
	}
	assert.Equal(suite.T(), 1, *suite.pendingSeats())
	for i := len(suite.employees) - 1; i >= 0; i-- {
		suite.reactivate(suite.employees[i])
	}
	assert.Nil(suite.T(), suite.pendingSeats())
}

func TestComputePendingSeats(t *testing.T) {
	tests := []struct {
		name            string
		active, pending int
		current         int
		want            *int
	}{
		{name: "no drift", active: 4, pending: 0, current: 4, want: nil},
		{name: "one pending removal", active: 4, pending: 1, current: 4, want: intPtr(3)},
		{name: "growth without removals", active: 5, pending: 0, current: 4, want: intPtr(5)},
		{name: "shrunk below current", active: 3, pending: 0, current: 4, want: intPtr(3)},
		{name: "never negative", active: 1, pending: 2, current: 1, want: intPtr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputePendingSeats(tt.active, tt.pending, tt.current))
		})
	}
}

func intPtr(v int) *int {
	return &v
}
