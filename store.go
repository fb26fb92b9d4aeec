package billingkit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SubscriptionStore defines the interface for subscription persistence.
// Each account has exactly one subscription, so AccountID serves as the
// primary key. Implementations must never persist the transient pass
// inputs (CardToken, CouponCode, PrevPlanID).
type SubscriptionStore interface {
	// Get retrieves a subscription by account ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// GetByProviderSubscriptionID resolves the entity a provider webhook
	// refers to. Returns ErrSubscriptionNotFound when unknown.
	GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)

	// GetByProviderCustomerID resolves the entity for customer-scoped
	// provider events (disputes carry only the customer reference).
	// Returns ErrSubscriptionNotFound when unknown.
	GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error)

	// Save creates or updates a subscription.
	// The implementation should use AccountID to determine if it's an update.
	Save(ctx context.Context, subscription *Subscription) error
}

// MemoryStore is an in-memory SubscriptionStore for tests and single-node
// embedders. Stored entities are deep-copied both ways so callers never
// alias the stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	byAccount map[uuid.UUID]*Subscription
}

var _ SubscriptionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAccount: make(map[uuid.UUID]*Subscription)}
}

// Get implements SubscriptionStore.
func (m *MemoryStore) Get(_ context.Context, accountID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.byAccount[accountID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.clone(), nil
}

// GetByProviderSubscriptionID implements SubscriptionStore.
func (m *MemoryStore) GetByProviderSubscriptionID(_ context.Context, providerSubscriptionID string) (*Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.byAccount {
		if sub.ProviderSubscriptionID == providerSubscriptionID {
			return sub.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

// GetByProviderCustomerID implements SubscriptionStore.
func (m *MemoryStore) GetByProviderCustomerID(_ context.Context, providerCustomerID string) (*Subscription, error) {
	if providerCustomerID == "" {
		return nil, ErrSubscriptionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.byAccount {
		if sub.ProviderCustomerID == providerCustomerID {
			return sub.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

// Save implements SubscriptionStore.
func (m *MemoryStore) Save(_ context.Context, subscription *Subscription) error {
	if subscription == nil {
		return ErrSubscriptionNotFound
	}

	stored := subscription.clone()
	stored.CardToken = ""
	stored.CouponCode = ""
	stored.PrevPlanID = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byAccount[stored.AccountID] = stored
	return nil
}
