package audit_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit"
	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

func planRef(id int64) *int64 { return &id }

func billedSubscription() *billingkit.Subscription {
	return &billingkit.Subscription{
		AccountID:              uuid.New(),
		PlanID:                 planRef(2),
		CurrentPrice:           &billingkit.Money{Amount: 4999, Currency: "USD"},
		ProviderCustomerID:     "cus_123",
		ProviderSubscriptionID: "sub_123",
		CardLast4:              "4242",
		Status:                 billingkit.StatusActive,
	}
}

func newRecorder(t *testing.T, opts ...audit.RecorderOption) (*audit.Recorder, *audit.MemoryStorage) {
	t.Helper()
	storage := audit.NewMemoryStorage()
	return audit.NewRecorder(audit.NewLogger(storage), opts...), storage
}

func mustFindOne(t *testing.T, storage *audit.MemoryStorage) audit.Event {
	t.Helper()
	events := mustFindAll(t, storage)
	require.Len(t, events, 1)
	return events[0]
}

func TestRecorder_FinalizeNewCustomer(t *testing.T) {
	t.Parallel()

	recorder, storage := newRecorder(t)
	sub := billedSubscription()

	err := recorder.FinalizeNewCustomer(context.Background(), sub, "cus_123",
		billingkit.Money{Amount: 4999, Currency: "USD"})
	require.NoError(t, err)

	event := mustFindOne(t, storage)
	assert.Equal(t, audit.ActionCustomerCreated, event.Action)
	assert.Equal(t, sub.AccountID.String(), event.AccountID)
	assert.Equal(t, "customer", event.Resource)
	assert.Equal(t, "cus_123", event.ResourceID)
	assert.Equal(t, audit.ResultSuccess, event.Result)
	assert.Equal(t, int64(4999), event.Metadata["amount"])
	assert.Equal(t, "USD", event.Metadata["currency"])
}

func TestRecorder_FinalizeNewSubscription(t *testing.T) {
	t.Parallel()

	recorder, storage := newRecorder(t)
	sub := billedSubscription()

	require.NoError(t, recorder.FinalizeNewSubscription(context.Background(), sub))

	event := mustFindOne(t, storage)
	assert.Equal(t, audit.ActionSubscriptionStarted, event.Action)
	assert.Equal(t, "subscription", event.Resource)
	assert.Equal(t, "sub_123", event.ResourceID)
	assert.Equal(t, int64(2), event.Metadata["plan_id"])
	assert.NotContains(t, event.Metadata, "prev_plan_id")
}

func TestRecorder_FinalizePlanChange(t *testing.T) {
	t.Parallel()

	t.Run("between two plans", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		sub := billedSubscription()
		sub.PlanID = planRef(3)
		sub.PrevPlanID = planRef(2)

		require.NoError(t, recorder.FinalizePlanChange(context.Background(), sub))

		event := mustFindOne(t, storage)
		assert.Equal(t, audit.ActionPlanChanged, event.Action)
		assert.Equal(t, int64(3), event.Metadata["plan_id"])
		assert.Equal(t, int64(2), event.Metadata["prev_plan_id"])
	})

	t.Run("new subscription is not a plan change", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		sub := billedSubscription()
		sub.PrevPlanID = nil

		require.NoError(t, recorder.FinalizePlanChange(context.Background(), sub))
		assert.Empty(t, mustFindAll(t, storage))
	})

	t.Run("cancellation is not a plan change", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		sub := billedSubscription()
		sub.PrevPlanID = planRef(2)
		sub.PlanID = nil

		require.NoError(t, recorder.FinalizePlanChange(context.Background(), sub))
		assert.Empty(t, mustFindAll(t, storage))
	})
}

func TestRecorder_FinalizeCancellation(t *testing.T) {
	t.Parallel()

	recorder, storage := newRecorder(t)
	require.NoError(t, recorder.FinalizeCancellation(context.Background(), billedSubscription()))

	event := mustFindOne(t, storage)
	assert.Equal(t, audit.ActionSubscriptionCanceled, event.Action)
	assert.Equal(t, audit.ResultSuccess, event.Result)
}

func TestRecorder_FinalizeCardUpdate(t *testing.T) {
	t.Parallel()

	recorder, storage := newRecorder(t)
	require.NoError(t, recorder.FinalizeCardUpdate(context.Background(), billedSubscription()))

	event := mustFindOne(t, storage)
	assert.Equal(t, audit.ActionCardUpdated, event.Action)
	assert.Equal(t, "4242", event.Metadata["card_last4"])
}

func TestRecorder_WebhookCallbacks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("card declined", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		require.NoError(t, recorder.CardWasDeclined(ctx, billedSubscription()))

		event := mustFindOne(t, storage)
		assert.Equal(t, audit.ActionCardDeclined, event.Action)
		assert.Equal(t, audit.ResultFailure, event.Result)
	})

	t.Run("payment succeeded", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		err := recorder.PaymentSucceeded(ctx, billedSubscription(),
			billingkit.Money{Amount: 1500, Currency: "USD"})
		require.NoError(t, err)

		event := mustFindOne(t, storage)
		assert.Equal(t, audit.ActionPaymentSucceeded, event.Action)
		assert.Equal(t, audit.ResultSuccess, event.Result)
		assert.Equal(t, int64(1500), event.Metadata["amount"])
	})

	t.Run("charge failed", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		require.NoError(t, recorder.ChargeFailed(ctx, billedSubscription()))

		event := mustFindOne(t, storage)
		assert.Equal(t, audit.ActionPaymentFailed, event.Action)
		assert.Equal(t, audit.ResultFailure, event.Result)
	})

	t.Run("charge disputed", func(t *testing.T) {
		t.Parallel()

		recorder, storage := newRecorder(t)
		require.NoError(t, recorder.ChargeDisputed(ctx, billedSubscription()))

		event := mustFindOne(t, storage)
		assert.Equal(t, audit.ActionPaymentDisputed, event.Action)
		assert.Equal(t, audit.ResultFailure, event.Result)
	})
}

func TestRecorder_FailuresDoNotAbort(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	trail := audit.NewLogger(failingBatchStorage{err: errors.New("index down")})
	recorder := audit.NewRecorder(trail,
		audit.WithRecorderLogger(logger.New(logger.WithOutput(&buf))),
	)

	err := recorder.FinalizeCancellation(context.Background(), billedSubscription())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "audit event not recorded")
	assert.Contains(t, buf.String(), "index down")
}

func TestRecorder_StrictModePropagates(t *testing.T) {
	t.Parallel()

	trail := audit.NewLogger(failingBatchStorage{err: errors.New("index down")})
	recorder := audit.NewRecorder(trail, audit.WithStrictRecording())

	err := recorder.FinalizeCancellation(context.Background(), billedSubscription())
	assert.ErrorContains(t, err, "index down")
}

func TestNewRecorder_RequiresLogger(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "audit: logger is required", func() {
		audit.NewRecorder(nil)
	})
}
