package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit"
	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// Store is a PostgreSQL-backed billingkit.SubscriptionStore. The schema has
// no columns for the transient pass inputs, so they can never leak into
// storage regardless of what the caller passes in.
type Store struct {
	pool *pgxpool.Pool
}

var _ billingkit.SubscriptionStore = (*Store)(nil)

// New creates a store on top of an existing connection pool.
// Panics if pool is nil.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool}
}

const subscriptionColumns = `account_id, plan_id, price_amount, price_currency,
	provider_customer_id, provider_subscription_id, card_last4,
	status, created_at, updated_at`

// Get implements billingkit.SubscriptionStore.
func (s *Store) Get(ctx context.Context, accountID uuid.UUID) (*billingkit.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions WHERE account_id = $1`,
		accountID)
	return scanSubscription(row)
}

// GetByProviderSubscriptionID implements billingkit.SubscriptionStore.
func (s *Store) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*billingkit.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, billingkit.ErrSubscriptionNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions WHERE provider_subscription_id = $1`,
		providerSubscriptionID)
	return scanSubscription(row)
}

// GetByProviderCustomerID implements billingkit.SubscriptionStore.
func (s *Store) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*billingkit.Subscription, error) {
	if providerCustomerID == "" {
		return nil, billingkit.ErrSubscriptionNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions WHERE provider_customer_id = $1`,
		providerCustomerID)
	return scanSubscription(row)
}

// Save implements billingkit.SubscriptionStore as an upsert keyed by
// account. created_at is written once and kept on updates.
func (s *Store) Save(ctx context.Context, subscription *billingkit.Subscription) error {
	if subscription == nil {
		return billingkit.ErrSubscriptionNotFound
	}

	var priceAmount *int64
	var priceCurrency *string
	if subscription.CurrentPrice != nil {
		amount := subscription.CurrentPrice.Amount
		currency := subscription.CurrentPrice.Currency
		priceAmount = &amount
		priceCurrency = &currency
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_subscriptions (
			account_id, plan_id, price_amount, price_currency,
			provider_customer_id, provider_subscription_id, card_last4,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (account_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			card_last4 = EXCLUDED.card_last4,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		subscription.AccountID, subscription.PlanID, priceAmount, priceCurrency,
		subscription.ProviderCustomerID, subscription.ProviderSubscriptionID, subscription.CardLast4,
		string(subscription.Status), subscription.CreatedAt, subscription.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// row is the single-row scan surface shared by pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanSubscription(r row) (*billingkit.Subscription, error) {
	var sub billingkit.Subscription
	var priceAmount *int64
	var priceCurrency *string
	var status string

	err := r.Scan(&sub.AccountID, &sub.PlanID, &priceAmount, &priceCurrency,
		&sub.ProviderCustomerID, &sub.ProviderSubscriptionID, &sub.CardLast4,
		&status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billingkit.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.Status = billingkit.Status(status)
	if priceAmount != nil && priceCurrency != nil {
		sub.CurrentPrice = &billingkit.Money{Amount: *priceAmount, Currency: *priceCurrency}
	}
	return &sub, nil
}
