package billingkit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit"
)

// Mock implementations

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetCustomer(ctx context.Context, customerID string) (*billingkit.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingkit.Customer), args.Error(1)
}

func (m *mockProvider) CreateCustomer(ctx context.Context, params billingkit.CreateCustomerParams) (*billingkit.Customer, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingkit.Customer), args.Error(1)
}

func (m *mockProvider) UpdateCustomerCard(ctx context.Context, customerID, cardToken string) (*billingkit.Card, error) {
	args := m.Called(ctx, customerID, cardToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingkit.Card), args.Error(1)
}

func (m *mockProvider) CreateSubscription(ctx context.Context, params billingkit.CreateSubscriptionParams) (*billingkit.RemoteSubscription, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingkit.RemoteSubscription), args.Error(1)
}

func (m *mockProvider) UpdateSubscription(ctx context.Context, subscriptionID, remotePlanRef string, quantity int) (*billingkit.RemoteSubscription, error) {
	args := m.Called(ctx, subscriptionID, remotePlanRef, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingkit.RemoteSubscription), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

// hookRecorder records every hook invocation in call order. Entries in fail
// make the named hook return that error.
type hookRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error

	customerID string
	price      billingkit.Money
}

func (h *hookRecorder) record(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, name)
	return h.fail[name]
}

func (h *hookRecorder) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *hookRecorder) PrepareForPlanChange(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_plan_change")
}

func (h *hookRecorder) FinalizePlanChange(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_plan_change")
}

func (h *hookRecorder) PrepareForNewSubscription(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_new_subscription")
}

func (h *hookRecorder) FinalizeNewSubscription(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_new_subscription")
}

func (h *hookRecorder) PrepareForUpgrade(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_upgrade")
}

func (h *hookRecorder) FinalizeUpgrade(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_upgrade")
}

func (h *hookRecorder) PrepareForDowngrade(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_downgrade")
}

func (h *hookRecorder) FinalizeDowngrade(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_downgrade")
}

func (h *hookRecorder) PrepareForCancellation(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_cancellation")
}

func (h *hookRecorder) FinalizeCancellation(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_cancellation")
}

func (h *hookRecorder) FinalizeNewCustomer(_ context.Context, _ *billingkit.Subscription, customerID string, price billingkit.Money) error {
	h.mu.Lock()
	h.customerID = customerID
	h.price = price
	h.mu.Unlock()
	return h.record("finalize_new_customer")
}

func (h *hookRecorder) PrepareForCardUpdate(context.Context, *billingkit.Subscription) error {
	return h.record("prepare_card_update")
}

func (h *hookRecorder) FinalizeCardUpdate(context.Context, *billingkit.Subscription) error {
	return h.record("finalize_card_update")
}

func (h *hookRecorder) CardWasDeclined(context.Context, *billingkit.Subscription) error {
	return h.record("card_was_declined")
}

func (h *hookRecorder) PaymentSucceeded(_ context.Context, _ *billingkit.Subscription, price billingkit.Money) error {
	h.mu.Lock()
	h.price = price
	h.mu.Unlock()
	return h.record("payment_succeeded")
}

func (h *hookRecorder) ChargeFailed(context.Context, *billingkit.Subscription) error {
	return h.record("charge_failed")
}

func (h *hookRecorder) ChargeDisputed(context.Context, *billingkit.Subscription) error {
	return h.record("charge_disputed")
}

// Test helpers

type testOwner struct {
	id    uuid.UUID
	name  string
	email string
}

func (o *testOwner) BillingID() uuid.UUID               { return o.id }
func (o *testOwner) BillingDescription() string         { return o.name }
func (o *testOwner) BillingEmail() string               { return o.email }
func (o *testOwner) BillingMetadata() map[string]string { return map[string]string{"env": "test"} }

type seatedOwner struct {
	testOwner
	seats int
}

func (o *seatedOwner) SeatCount() int { return o.seats }

type couponOwner struct {
	testOwner
	coupon *billingkit.Coupon
}

func (o *couponOwner) BillingCoupon() *billingkit.Coupon { return o.coupon }

func newTestOwner() *testOwner {
	return &testOwner{id: uuid.New(), name: "Acme Inc", email: "billing@acme.test"}
}

func testPlanSource() billingkit.StaticPlanSource {
	return billingkit.StaticPlanSource{
		{
			ID:        1,
			Name:      "Starter",
			RemoteRef: "price_starter",
			Price:     billingkit.Money{Amount: 999, Currency: "USD"},
		},
		{
			ID:        2,
			Name:      "Pro",
			RemoteRef: "price_pro",
			Price:     billingkit.Money{Amount: 4999, Currency: "USD"},
			TrialDays: 14,
		},
		{
			ID:        3,
			Name:      "Scale",
			RemoteRef: "price_scale",
			Price:     billingkit.Money{Amount: 9999, Currency: "USD"},
		},
	}
}

func newFlow(t *testing.T, provider billingkit.BillingProvider, hooks billingkit.Hooks) *billingkit.Orchestrator {
	t.Helper()
	flow, err := billingkit.NewOrchestrator(context.Background(), testPlanSource(), provider,
		billingkit.WithHooks(hooks))
	require.NoError(t, err)
	return flow
}

func planRef(id int64) *int64 { return &id }

func TestNewOrchestrator(t *testing.T) {
	t.Parallel()

	t.Run("panics on nil plan source", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			_, _ = billingkit.NewOrchestrator(context.Background(), nil, &mockProvider{})
		})
	})

	t.Run("panics on nil provider", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			_, _ = billingkit.NewOrchestrator(context.Background(), testPlanSource(), nil)
		})
	})

	t.Run("rejects a paid plan without a remote reference", func(t *testing.T) {
		t.Parallel()
		src := billingkit.StaticPlanSource{
			{ID: 1, Name: "Broken", Price: billingkit.Money{Amount: 999, Currency: "USD"}},
		}
		_, err := billingkit.NewOrchestrator(context.Background(), src, &mockProvider{})
		assert.ErrorIs(t, err, billingkit.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects duplicate plan ids", func(t *testing.T) {
		t.Parallel()
		src := billingkit.StaticPlanSource{
			{ID: 1, Name: "One", RemoteRef: "price_one", Price: billingkit.Money{Amount: 100, Currency: "USD"}},
			{ID: 1, Name: "Other", RemoteRef: "price_other", Price: billingkit.Money{Amount: 200, Currency: "USD"}},
		}
		_, err := billingkit.NewOrchestrator(context.Background(), src, &mockProvider{})
		assert.ErrorIs(t, err, billingkit.ErrInvalidPlanConfiguration)
	})

	t.Run("returns the catalog ordered by tier", func(t *testing.T) {
		t.Parallel()
		flow := newFlow(t, &mockProvider{}, nil)

		plans := flow.Plans()
		require.Len(t, plans, 3)
		assert.Equal(t, int64(1), plans[0].ID)
		assert.Equal(t, int64(3), plans[2].ID)

		_, err := flow.Plan(42)
		assert.ErrorIs(t, err, billingkit.ErrPlanNotFound)
	})
}

func TestProcess_NewSubscription(t *testing.T) {
	t.Parallel()

	t.Run("runs the full sequence in order", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID: owner.id,
			PlanID:    planRef(2),
			CardToken: "tok_visa",
		}

		provider.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(p billingkit.CreateCustomerParams) bool {
			return p.CardToken == "tok_visa" &&
				p.Email == "billing@acme.test" &&
				p.Metadata["account_id"] == owner.id.String()
		})).Return(&billingkit.Customer{
			ID:          "cus_1",
			DefaultCard: &billingkit.Card{Last4: "4242", Brand: "visa"},
		}, nil)
		provider.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billingkit.CreateSubscriptionParams) bool {
			return p.CustomerID == "cus_1" &&
				p.PlanRef == "price_pro" &&
				p.Quantity == 1 &&
				p.TrialEnd != nil
		})).Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "trialing"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionNewSubscription, pass.Transition)
		assert.Equal(t, billingkit.PassFinalized, pass.State)
		assert.True(t, pass.CustomerCreated)
		assert.True(t, pass.SubscriptionCreated)
		assert.Equal(t, 2, pass.RemoteCalls)

		assert.Equal(t, []string{
			"prepare_plan_change",
			"prepare_new_subscription",
			"prepare_upgrade",
			"finalize_new_customer",
			"finalize_new_subscription",
			"finalize_upgrade",
			"finalize_plan_change",
		}, hooks.recorded())
		assert.Equal(t, "cus_1", hooks.customerID)
		assert.Equal(t, billingkit.Money{Amount: 4999, Currency: "USD"}, hooks.price)

		assert.Equal(t, "cus_1", sub.ProviderCustomerID)
		assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
		assert.Equal(t, "4242", sub.CardLast4)
		assert.Equal(t, billingkit.StatusTrialing, sub.Status)
		require.NotNil(t, sub.CurrentPrice)
		assert.Equal(t, int64(4999), sub.CurrentPrice.Amount)

		assert.Empty(t, sub.CardToken)
		assert.Nil(t, sub.PrevPlanID)

		provider.AssertExpectations(t)
	})

	t.Run("missing payment token aborts before any provider call", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{AccountID: owner.id, PlanID: planRef(1)}

		pass, err := flow.Process(ctx, owner, sub)
		require.ErrorIs(t, err, billingkit.ErrMissingCardToken)

		assert.Equal(t, billingkit.PassAborted, pass.State)
		assert.Equal(t, 0, pass.RemoteCalls)
		assert.True(t, pass.Validation.Has(billingkit.FieldCardToken))

		assert.Equal(t, []string{
			"prepare_plan_change",
			"prepare_new_subscription",
			"prepare_upgrade",
		}, hooks.recorded())

		// The rejected attempt leaves the entity as it started.
		assert.Nil(t, sub.CurrentPrice)
		assert.Empty(t, sub.ProviderCustomerID)

		provider.AssertExpectations(t)
	})

	t.Run("declined card becomes a validation message and fires the decline hook", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID: owner.id,
			PlanID:    planRef(1),
			CardToken: "tok_declined",
		}

		provider.On("CreateCustomer", mock.Anything, mock.Anything).Return(nil, &billingkit.DeclineError{
			Code:    "card_declined",
			Reason:  "insufficient_funds",
			Message: "Your card has insufficient funds.",
		})

		pass, err := flow.Process(ctx, owner, sub)
		require.ErrorIs(t, err, billingkit.ErrCardDeclined)

		var decline *billingkit.DeclineError
		require.ErrorAs(t, err, &decline)
		assert.Equal(t, "insufficient_funds", decline.Reason)

		assert.Equal(t, billingkit.PassAborted, pass.State)
		assert.Equal(t, 1, pass.RemoteCalls)
		assert.False(t, pass.CustomerCreated)
		assert.Equal(t, "Your card has insufficient funds.", pass.Validation.Get(billingkit.FieldCard))

		assert.Contains(t, hooks.recorded(), "card_was_declined")
		assert.NotContains(t, hooks.recorded(), "finalize_new_customer")
		assert.Nil(t, sub.CurrentPrice)

		provider.AssertExpectations(t)
	})

	t.Run("subscription create failure aborts after the customer exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID: owner.id,
			PlanID:    planRef(1),
			CardToken: "tok_visa",
		}

		provider.On("CreateCustomer", mock.Anything, mock.Anything).
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("CreateSubscription", mock.Anything, mock.Anything).
			Return(nil, errors.New("provider unavailable"))

		pass, err := flow.Process(ctx, owner, sub)
		require.Error(t, err)
		assert.NotErrorIs(t, err, billingkit.ErrCardDeclined)

		assert.Equal(t, billingkit.PassAborted, pass.State)
		assert.Equal(t, 2, pass.RemoteCalls)
		assert.True(t, pass.CustomerCreated)
		assert.False(t, pass.SubscriptionCreated)

		assert.Contains(t, hooks.recorded(), "finalize_new_customer")
		assert.NotContains(t, hooks.recorded(), "finalize_new_subscription")

		provider.AssertExpectations(t)
	})

	t.Run("owner coupon supplies code and trial window", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		trialEnd := time.Now().AddDate(0, 1, 0).UTC().Truncate(time.Second)
		owner := &couponOwner{
			testOwner: *newTestOwner(),
			coupon:    &billingkit.Coupon{Code: "FRIEND10", FreeTrial: true, TrialEnd: trialEnd},
		}
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		// Plan 1 carries no trial of its own; the coupon provides one.
		sub := &billingkit.Subscription{
			AccountID: owner.id,
			PlanID:    planRef(1),
			CardToken: "tok_visa",
		}

		provider.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(p billingkit.CreateCustomerParams) bool {
			return p.CouponCode == "FRIEND10"
		})).Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billingkit.CreateSubscriptionParams) bool {
			return p.TrialEnd != nil && p.TrialEnd.Equal(trialEnd)
		})).Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "trialing"}, nil)

		_, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)
		assert.Equal(t, billingkit.StatusTrialing, sub.Status)

		provider.AssertExpectations(t)
	})

	t.Run("explicit coupon code wins over the owner coupon", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := &couponOwner{
			testOwner: *newTestOwner(),
			coupon:    &billingkit.Coupon{Code: "FRIEND10"},
		}
		provider := &mockProvider{}
		flow := newFlow(t, provider, &hookRecorder{})

		sub := &billingkit.Subscription{
			AccountID:  owner.id,
			PlanID:     planRef(1),
			CardToken:  "tok_visa",
			CouponCode: "PROMO50",
		}

		provider.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(p billingkit.CreateCustomerParams) bool {
			return p.CouponCode == "PROMO50"
		})).Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("CreateSubscription", mock.Anything, mock.Anything).
			Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

		_, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)
		assert.Empty(t, sub.CouponCode)

		provider.AssertExpectations(t)
	})
}

func TestProcess_Upgrade(t *testing.T) {
	t.Parallel()

	t.Run("repoints the remote subscription to the higher plan", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(3),
			PrevPlanID:             planRef(1),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
			Status:                 billingkit.StatusActive,
			CurrentPrice:           &billingkit.Money{Amount: 999, Currency: "USD"},
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("UpdateSubscription", mock.Anything, "sub_1", "price_scale", 1).
			Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionUpgrade, pass.Transition)
		assert.True(t, pass.SubscriptionUpdated)
		assert.Equal(t, 2, pass.RemoteCalls)

		assert.Equal(t, []string{
			"prepare_plan_change",
			"prepare_upgrade",
			"finalize_upgrade",
			"finalize_plan_change",
		}, hooks.recorded())

		require.NotNil(t, sub.CurrentPrice)
		assert.Equal(t, int64(9999), sub.CurrentPrice.Amount)
		assert.Equal(t, billingkit.StatusActive, sub.Status)

		provider.AssertExpectations(t)
	})

	t.Run("resubscription reuses the customer and creates a fresh subscription", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		// Cancelled earlier: the customer survived, the subscription did not.
		sub := &billingkit.Subscription{
			AccountID:          owner.id,
			PlanID:             planRef(1),
			ProviderCustomerID: "cus_1",
			Status:             billingkit.StatusCancelled,
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billingkit.CreateSubscriptionParams) bool {
			return p.CustomerID == "cus_1" && p.PlanRef == "price_starter" && p.TrialEnd == nil
		})).Return(&billingkit.RemoteSubscription{ID: "sub_2", Status: "active"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionNewSubscription, pass.Transition)
		assert.True(t, pass.SubscriptionCreated)
		assert.False(t, pass.CustomerCreated)
		assert.Equal(t, "sub_2", sub.ProviderSubscriptionID)
		assert.Equal(t, billingkit.StatusActive, sub.Status)

		// No token was needed; the instrument is already on file.
		assert.NotContains(t, hooks.recorded(), "prepare_new_subscription")
		assert.Contains(t, hooks.recorded(), "prepare_upgrade")

		provider.AssertExpectations(t)
	})

	t.Run("seat count drives the subscription quantity", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := &seatedOwner{testOwner: *newTestOwner(), seats: 7}
		provider := &mockProvider{}
		flow := newFlow(t, provider, &hookRecorder{})

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(3),
			PrevPlanID:             planRef(1),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("UpdateSubscription", mock.Anything, "sub_1", "price_scale", 7).
			Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

		_, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		provider.AssertExpectations(t)
	})

	t.Run("unreachable customer aborts before any mutation", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(3),
			PrevPlanID:             planRef(1),
			ProviderCustomerID:     "cus_gone",
			ProviderSubscriptionID: "sub_1",
		}

		provider.On("GetCustomer", mock.Anything, "cus_gone").
			Return(nil, billingkit.ErrCustomerNotFound)

		pass, err := flow.Process(ctx, owner, sub)
		require.ErrorIs(t, err, billingkit.ErrCustomerNotFound)

		assert.Equal(t, billingkit.PassAborted, pass.State)
		assert.Equal(t, 1, pass.RemoteCalls)
		assert.False(t, pass.SubscriptionUpdated)
		assert.Equal(t, []string{"prepare_plan_change"}, hooks.recorded())

		provider.AssertExpectations(t)
	})
}

func TestProcess_Downgrade(t *testing.T) {
	t.Parallel()

	t.Run("fires the downgrade bracket", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(1),
			PrevPlanID:             planRef(3),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
			Status:                 billingkit.StatusActive,
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("UpdateSubscription", mock.Anything, "sub_1", "price_starter", 1).
			Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionDowngrade, pass.Transition)
		assert.Equal(t, []string{
			"prepare_plan_change",
			"prepare_downgrade",
			"finalize_downgrade",
			"finalize_plan_change",
		}, hooks.recorded())

		provider.AssertExpectations(t)
	})

	t.Run("prepare veto stops the pass before the provider mutation", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{fail: map[string]error{
			"prepare_downgrade": errors.New("seats above target plan limit"),
		}}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(1),
			PrevPlanID:             planRef(3),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seats above target plan limit")

		assert.Equal(t, billingkit.PassAborted, pass.State)
		assert.Equal(t, 1, pass.RemoteCalls)
		assert.False(t, pass.SubscriptionUpdated)

		provider.AssertExpectations(t)
		provider.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestProcess_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("cancels remotely and clears local plan state", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PrevPlanID:             planRef(2),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
			Status:                 billingkit.StatusActive,
			CurrentPrice:           &billingkit.Money{Amount: 4999, Currency: "USD"},
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("CancelSubscription", mock.Anything, "sub_1").Return(nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionCancellation, pass.Transition)
		assert.True(t, pass.SubscriptionDeleted)
		assert.Equal(t, 2, pass.RemoteCalls)

		assert.Equal(t, []string{
			"prepare_plan_change",
			"prepare_cancellation",
			"finalize_cancellation",
			"finalize_plan_change",
		}, hooks.recorded())

		assert.Equal(t, billingkit.StatusCancelled, sub.Status)
		assert.Empty(t, sub.ProviderSubscriptionID)
		assert.Nil(t, sub.CurrentPrice)
		// The customer record survives for resubscription.
		assert.Equal(t, "cus_1", sub.ProviderCustomerID)

		provider.AssertExpectations(t)
	})

	t.Run("cancelling with no remote subscription skips the provider call", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:          owner.id,
			PrevPlanID:         planRef(2),
			ProviderCustomerID: "cus_1",
			Status:             billingkit.StatusActive,
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, 1, pass.RemoteCalls)
		assert.False(t, pass.SubscriptionDeleted)
		assert.Equal(t, billingkit.StatusCancelled, sub.Status)

		provider.AssertExpectations(t)
	})

	t.Run("plan dropped before the account ever reached the provider", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:  owner.id,
			PrevPlanID: planRef(1),
		}

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionCancellation, pass.Transition)
		assert.Equal(t, 0, pass.RemoteCalls)
		assert.Equal(t, []string{"prepare_plan_change", "finalize_plan_change"}, hooks.recorded())
		assert.Nil(t, sub.CurrentPrice)

		provider.AssertExpectations(t)
	})
}

func TestProcess_CardUpdate(t *testing.T) {
	t.Parallel()

	t.Run("replaces the instrument without touching the plan", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(2),
			PrevPlanID:             planRef(2),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
			Status:                 billingkit.StatusActive,
			CardToken:              "pm_new",
			CardLast4:              "1111",
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("UpdateCustomerCard", mock.Anything, "cus_1", "pm_new").
			Return(&billingkit.Card{Last4: "4242", Brand: "visa"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionUnchanged, pass.Transition)
		assert.True(t, pass.CardUpdated)
		assert.Equal(t, 2, pass.RemoteCalls)

		assert.Equal(t, []string{"prepare_card_update", "finalize_card_update"}, hooks.recorded())

		assert.Equal(t, "4242", sub.CardLast4)
		assert.Equal(t, billingkit.StatusActive, sub.Status)
		assert.Empty(t, sub.CardToken)

		provider.AssertExpectations(t)
	})

	t.Run("fails when no billing customer is on file", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID: owner.id,
			CardToken: "pm_new",
		}

		pass, err := flow.Process(ctx, owner, sub)
		require.ErrorIs(t, err, billingkit.ErrMissingProviderCustomerID)

		assert.Equal(t, 0, pass.RemoteCalls)
		assert.True(t, pass.Validation.Has(billingkit.FieldCardToken))

		provider.AssertExpectations(t)
	})

	t.Run("plan change takes priority over a supplied token", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		owner := newTestOwner()
		provider := &mockProvider{}
		hooks := &hookRecorder{}
		flow := newFlow(t, provider, hooks)

		sub := &billingkit.Subscription{
			AccountID:              owner.id,
			PlanID:                 planRef(3),
			PrevPlanID:             planRef(1),
			ProviderCustomerID:     "cus_1",
			ProviderSubscriptionID: "sub_1",
			CardToken:              "pm_ignored",
		}

		provider.On("GetCustomer", mock.Anything, "cus_1").
			Return(&billingkit.Customer{ID: "cus_1"}, nil)
		provider.On("UpdateSubscription", mock.Anything, "sub_1", "price_scale", 1).
			Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

		pass, err := flow.Process(ctx, owner, sub)
		require.NoError(t, err)

		assert.Equal(t, billingkit.TransitionUpgrade, pass.Transition)
		assert.NotContains(t, hooks.recorded(), "prepare_card_update")
		assert.Empty(t, sub.CardToken)

		provider.AssertExpectations(t)
		provider.AssertNotCalled(t, "UpdateCustomerCard", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestProcess_NoChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := newTestOwner()
	provider := &mockProvider{}
	hooks := &hookRecorder{}
	flow := newFlow(t, provider, hooks)

	sub := &billingkit.Subscription{
		AccountID:  owner.id,
		PlanID:     planRef(2),
		PrevPlanID: planRef(2),
		Status:     billingkit.StatusActive,
	}

	pass, err := flow.Process(ctx, owner, sub)
	require.NoError(t, err)

	assert.Equal(t, billingkit.TransitionUnchanged, pass.Transition)
	assert.Equal(t, billingkit.PassFinalized, pass.State)
	assert.Equal(t, 0, pass.RemoteCalls)
	assert.Empty(t, hooks.recorded())
	assert.Nil(t, sub.PrevPlanID)

	// A second save attempt with the same plan is just as silent.
	sub.PrevPlanID = sub.PlanID
	pass, err = flow.Process(ctx, owner, sub)
	require.NoError(t, err)
	assert.Equal(t, 0, pass.RemoteCalls)
	assert.Empty(t, hooks.recorded())

	provider.AssertExpectations(t)
}

func TestProcess_FinalizeHookAborts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := newTestOwner()
	provider := &mockProvider{}
	hooks := &hookRecorder{fail: map[string]error{
		"finalize_plan_change": errors.New("entitlement sync failed"),
	}}
	flow := newFlow(t, provider, hooks)

	sub := &billingkit.Subscription{
		AccountID:              owner.id,
		PlanID:                 planRef(3),
		PrevPlanID:             planRef(1),
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
	}

	provider.On("GetCustomer", mock.Anything, "cus_1").
		Return(&billingkit.Customer{ID: "cus_1"}, nil)
	provider.On("UpdateSubscription", mock.Anything, "sub_1", "price_scale", 1).
		Return(&billingkit.RemoteSubscription{ID: "sub_1", Status: "active"}, nil)

	pass, err := flow.Process(ctx, owner, sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entitlement sync failed")

	// The provider already moved; the abort tells the caller not to persist.
	assert.Equal(t, billingkit.PassAborted, pass.State)
	assert.True(t, pass.SubscriptionUpdated)

	provider.AssertExpectations(t)
}
