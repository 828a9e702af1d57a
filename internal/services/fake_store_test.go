package services

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"leavedesk/internal/common"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeStore is an in-memory repositories.Store. WithTx snapshots all tables
// and restores them when the callback fails.
type fakeStore struct {
	organizations map[uuid.UUID]*models.Organization
	memberships   map[uuid.UUID]*models.Membership
	subscriptions map[uuid.UUID]*models.Subscription
	events        map[string]*models.BillingEvent
	failures      map[string]error
	locked        []uuid.UUID
	inTx          bool
	commits       int
	rollbacks     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		organizations: map[uuid.UUID]*models.Organization{},
		memberships:   map[uuid.UUID]*models.Membership{},
		subscriptions: map[uuid.UUID]*models.Subscription{},
		events:        map[string]*models.BillingEvent{},
		failures:      map[string]error{},
	}
}

func (s *fakeStore) fail(op string) error {
	return s.failures[op]
}

func (s *fakeStore) Organizations() repositories.OrganizationRepository { return fakeOrganizations{s} }
func (s *fakeStore) Memberships() repositories.MembershipRepository { return fakeMemberships{s} }
func (s *fakeStore) Subscriptions() repositories.SubscriptionRepository { return fakeSubscriptions{s} }
func (s *fakeStore) BillingEvents() repositories.BillingEventRepository { return fakeBillingEvents{s} }

func (s *fakeStore) LockOrganization(ctx context.Context, organizationID uuid.UUID) error {
	if err := s.fail("LockOrganization"); err != nil {
		return err
	}
	if s.inTx {
		s.locked = append(s.locked, organizationID)
	}
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	organizations := cloneMap(s.organizations, cloneOrganization)
	memberships := cloneMap(s.memberships, cloneMembership)
	subscriptions := cloneMap(s.subscriptions, cloneSubscription)
	events := cloneMap(s.events, cloneEvent)

	s.inTx = true
	err := fn(s)
	s.inTx = false

	if err != nil {
		s.organizations, s.memberships, s.subscriptions, s.events = organizations, memberships, subscriptions, events
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

// Fixture helpers

func (s *fakeStore) addOrganization(slug string) *models.Organization {
	org := &models.Organization{ID: uuid.New(), Name: slug, Slug: slug, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.organizations[org.ID] = org
	return org
}

func (s *fakeStore) addMember(orgID uuid.UUID, role models.Role) *models.Membership {
	m := &models.Membership{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           role,
		Status:         models.MembershipActive,
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.memberships[m.ID] = m
	return m
}

func (s *fakeStore) addSubscription(orgID uuid.UUID, providerID string, currentSeats int, renewsAt *time.Time) *models.Subscription {
	itemID := "item_" + providerID
	sub := &models.Subscription{
		ID:                             uuid.New(),
		OrganizationID:                 orgID,
		LemonSqueezySubscriptionID:     providerID,
		LemonSqueezySubscriptionItemID: &itemID,
		Status:                         "active",
		Tier:                           "business",
		CurrentSeats:                   currentSeats,
		Quantity:                       currentSeats,
		LemonSqueezyQuantitySynced:     true,
		BillingPeriod:                  models.BillingPeriodMonthly,
		BillingType:                    models.BillingTypeQuantityBased,
		RenewsAt:                       renewsAt,
	}
	s.subscriptions[sub.ID] = sub
	return sub
}

func (s *fakeStore) member(userID, orgID uuid.UUID) *models.Membership {
	for _, m := range s.memberships {
		if m.UserID == userID && m.OrganizationID == orgID {
			return m
		}
	}
	return nil
}

func (s *fakeStore) subscription(id uuid.UUID) *models.Subscription {
	return s.subscriptions[id]
}

// assertMembershipInvariants checks the status, access flag and effective
// date agree for every membership.
func (s *fakeStore) assertMembershipInvariants(t *testing.T) {
	t.Helper()
	for _, m := range s.memberships {
		occupies := m.Status == models.MembershipActive || m.Status == models.MembershipPendingRemoval
		assert.Equal(t, occupies, m.IsActive, "is_active mismatch for %s (%s)", m.UserID, m.Status)
		assert.Equal(t, m.Status == models.MembershipPendingRemoval, m.RemovalEffectiveDate != nil,
			"removal_effective_date mismatch for %s (%s)", m.UserID, m.Status)
	}
}

// Organizations

type fakeOrganizations struct{ s *fakeStore }

func (r fakeOrganizations) Create(ctx context.Context, organization *models.Organization) error {
	if err := r.s.fail("Organizations.Create"); err != nil {
		return err
	}
	r.s.organizations[organization.ID] = cloneOrganization(organization)
	return nil
}

func (r fakeOrganizations) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	if org, ok := r.s.organizations[id]; ok {
		return cloneOrganization(org), nil
	}
	return nil, common.ErrOrganizationNotFound
}

func (r fakeOrganizations) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	for _, org := range r.s.organizations {
		if org.Slug == slug {
			return cloneOrganization(org), nil
		}
	}
	return nil, common.ErrOrganizationNotFound
}

// Memberships

type fakeMemberships struct{ s *fakeStore }

func (r fakeMemberships) GetByUserAndOrganization(ctx context.Context, userID, organizationID uuid.UUID) (*models.Membership, error) {
	if m := r.s.member(userID, organizationID); m != nil {
		return cloneMembership(m), nil
	}
	return nil, common.ErrMembershipNotFound
}

func (r fakeMemberships) CountSeats(ctx context.Context, organizationID uuid.UUID) (int, int, error) {
	if err := r.s.fail("CountSeats"); err != nil {
		return 0, 0, err
	}
	var active, pending int
	for _, m := range r.s.memberships {
		if m.OrganizationID != organizationID {
			continue
		}
		if m.IsActive {
			active++
		}
		if m.Status == models.MembershipPendingRemoval {
			pending++
		}
	}
	return active, pending, nil
}

func (r fakeMemberships) UpdateState(ctx context.Context, membership *models.Membership) error {
	if err := r.s.fail("UpdateState"); err != nil {
		return err
	}
	m, ok := r.s.memberships[membership.ID]
	if !ok {
		return common.ErrMembershipNotFound
	}
	m.Status = membership.Status
	m.IsActive = membership.IsActive
	m.RemovalEffectiveDate = cloneTime(membership.RemovalEffectiveDate)
	return nil
}

func (r fakeMemberships) ArchivePendingRemovals(ctx context.Context, organizationID uuid.UUID) (int, error) {
	if err := r.s.fail("ArchivePendingRemovals"); err != nil {
		return 0, err
	}
	archived := 0
	for _, m := range r.s.memberships {
		if m.OrganizationID == organizationID && m.Status == models.MembershipPendingRemoval && m.RemovalEffectiveDate != nil {
			m.Status = models.MembershipArchived
			m.IsActive = false
			m.RemovalEffectiveDate = nil
			archived++
		}
	}
	return archived, nil
}

// Subscriptions

type fakeSubscriptions struct{ s *fakeStore }

func (r fakeSubscriptions) Create(ctx context.Context, subscription *models.Subscription) error {
	if err := r.s.fail("Subscriptions.Create"); err != nil {
		return err
	}
	r.s.subscriptions[subscription.ID] = cloneSubscription(subscription)
	return nil
}

func (r fakeSubscriptions) Update(ctx context.Context, subscription *models.Subscription) error {
	if err := r.s.fail("Subscriptions.Update"); err != nil {
		return err
	}
	if _, ok := r.s.subscriptions[subscription.ID]; !ok {
		return common.ErrSubscriptionNotFound
	}
	r.s.subscriptions[subscription.ID] = cloneSubscription(subscription)
	return nil
}

func (r fakeSubscriptions) GetByOrganizationID(ctx context.Context, organizationID uuid.UUID) (*models.Subscription, error) {
	for _, sub := range r.s.subscriptions {
		if sub.OrganizationID == organizationID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, common.ErrSubscriptionNotFound
}

func (r fakeSubscriptions) GetByLemonSqueezyID(ctx context.Context, lemonSqueezyID string) (*models.Subscription, error) {
	for _, sub := range r.s.subscriptions {
		if sub.LemonSqueezySubscriptionID == lemonSqueezyID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, common.ErrSubscriptionNotFound
}

func (r fakeSubscriptions) SetPendingSeats(ctx context.Context, id uuid.UUID, pendingSeats *int) error {
	if err := r.s.fail("SetPendingSeats"); err != nil {
		return err
	}
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return common.ErrSubscriptionNotFound
	}
	sub.PendingSeats = cloneInt(pendingSeats)
	sub.LemonSqueezyQuantitySynced = false
	return nil
}

func (r fakeSubscriptions) ApplyRenewal(ctx context.Context, id uuid.UUID, newSeats int, renewsAt *time.Time) error {
	if err := r.s.fail("ApplyRenewal"); err != nil {
		return err
	}
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return common.ErrSubscriptionNotFound
	}
	sub.CurrentSeats = newSeats
	sub.PendingSeats = nil
	sub.LemonSqueezyQuantitySynced = true
	sub.RenewsAt = cloneTime(renewsAt)
	return nil
}

func (r fakeSubscriptions) UpdateRenewsAt(ctx context.Context, id uuid.UUID, renewsAt *time.Time) error {
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return common.ErrSubscriptionNotFound
	}
	sub.RenewsAt = cloneTime(renewsAt)
	return nil
}

func (r fakeSubscriptions) MarkQuantitySynced(ctx context.Context, id uuid.UUID, quantity int) error {
	if err := r.s.fail("MarkQuantitySynced"); err != nil {
		return err
	}
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return common.ErrSubscriptionNotFound
	}
	sub.Quantity = quantity
	sub.LemonSqueezyQuantitySynced = true
	return nil
}

func (r fakeSubscriptions) ListPendingSync(ctx context.Context, renewsBefore time.Time) ([]*models.Subscription, error) {
	if err := r.s.fail("ListPendingSync"); err != nil {
		return nil, err
	}
	var out []*models.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.LemonSqueezyQuantitySynced || sub.RenewsAt == nil || sub.RenewsAt.After(renewsBefore) {
			continue
		}
		if sub.PendingSeats == nil && sub.Quantity == sub.CurrentSeats {
			continue
		}
		switch sub.Status {
		case "active", "on_trial", "past_due":
			out = append(out, cloneSubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RenewsAt.Before(*out[j].RenewsAt) })
	return out, nil
}

// Billing events

type fakeBillingEvents struct{ s *fakeStore }

func (r fakeBillingEvents) Record(ctx context.Context, event *models.BillingEvent) (bool, error) {
	if err := r.s.fail("BillingEvents.Record"); err != nil {
		return false, err
	}
	if _, ok := r.s.events[event.EventID]; ok {
		return false, nil
	}
	stored := cloneEvent(event)
	stored.ProcessedAt = time.Now()
	r.s.events[event.EventID] = stored
	return true, nil
}

func (r fakeBillingEvents) SetResult(ctx context.Context, eventID string, result json.RawMessage) error {
	if event, ok := r.s.events[eventID]; ok {
		event.Result = append(json.RawMessage(nil), result...)
	}
	return nil
}

func (r fakeBillingEvents) Get(ctx context.Context, eventID string) (*models.BillingEvent, error) {
	if event, ok := r.s.events[eventID]; ok {
		return cloneEvent(event), nil
	}
	return nil, nil
}

// Cloning

func cloneMap[K comparable, V any](in map[K]*V, clone func(*V) *V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneOrganization(o *models.Organization) *models.Organization {
	c := *o
	return &c
}

func cloneMembership(m *models.Membership) *models.Membership {
	c := *m
	c.RemovalEffectiveDate = cloneTime(m.RemovalEffectiveDate)
	return &c
}

func cloneSubscription(sub *models.Subscription) *models.Subscription {
	c := *sub
	c.PendingSeats = cloneInt(sub.PendingSeats)
	c.RenewsAt = cloneTime(sub.RenewsAt)
	c.EndsAt = cloneTime(sub.EndsAt)
	c.TrialEndsAt = cloneTime(sub.TrialEndsAt)
	return &c
}

func cloneEvent(e *models.BillingEvent) *models.BillingEvent {
	c := *e
	c.Result = append(json.RawMessage(nil), e.Result...)
	return &c
}
