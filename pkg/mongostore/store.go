package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/billingkit"
)

// CollectionName is the collection subscriptions are stored in.
const CollectionName = "billing_subscriptions"

// Store is a MongoDB-backed billingkit.SubscriptionStore. The document
// schema has no fields for the transient pass inputs, so they can never
// leak into storage regardless of what the caller passes in.
type Store struct {
	col *mongo.Collection
}

var _ billingkit.SubscriptionStore = (*Store)(nil)

// New creates a store on top of an existing database handle.
// Panics if db is nil.
func New(db *mongo.Database) *Store {
	if db == nil {
		panic("mongostore: database is required")
	}
	return &Store{col: db.Collection(CollectionName)}
}

// moneyDoc is the embedded price sub-document.
type moneyDoc struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

// subscriptionDoc mirrors billingkit.Subscription minus the transients.
// The account ID doubles as the document ID, keeping one document per
// account the same way the SQL store keeps one row.
type subscriptionDoc struct {
	AccountID              string    `bson:"_id"`
	PlanID                 *int64    `bson:"plan_id,omitempty"`
	Price                  *moneyDoc `bson:"price,omitempty"`
	ProviderCustomerID     string    `bson:"provider_customer_id"`
	ProviderSubscriptionID string    `bson:"provider_subscription_id"`
	CardLast4              string    `bson:"card_last4"`
	Status                 string    `bson:"status"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

// EnsureIndexes creates the provider-ID lookup indexes used by webhook
// handling. Partial filters skip documents whose IDs are still empty.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider_subscription_id", Value: 1}},
			Options: options.Index().
				SetPartialFilterExpression(bson.M{"provider_subscription_id": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{{Key: "provider_customer_id", Value: 1}},
			Options: options.Index().
				SetPartialFilterExpression(bson.M{"provider_customer_id": bson.M{"$gt": ""}}),
		},
	}

	if _, err := s.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}
	return nil
}

// Get implements billingkit.SubscriptionStore.
func (s *Store) Get(ctx context.Context, accountID uuid.UUID) (*billingkit.Subscription, error) {
	return s.findOne(ctx, bson.M{"_id": accountID.String()})
}

// GetByProviderSubscriptionID implements billingkit.SubscriptionStore.
func (s *Store) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*billingkit.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, billingkit.ErrSubscriptionNotFound
	}
	return s.findOne(ctx, bson.M{"provider_subscription_id": providerSubscriptionID})
}

// GetByProviderCustomerID implements billingkit.SubscriptionStore.
func (s *Store) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*billingkit.Subscription, error) {
	if providerCustomerID == "" {
		return nil, billingkit.ErrSubscriptionNotFound
	}
	return s.findOne(ctx, bson.M{"provider_customer_id": providerCustomerID})
}

// Save implements billingkit.SubscriptionStore with a one-document-per-account
// upsert. created_at is written only on insert so later saves keep the
// original creation time.
func (s *Store) Save(ctx context.Context, subscription *billingkit.Subscription) error {
	if subscription == nil {
		return billingkit.ErrSubscriptionNotFound
	}

	var price *moneyDoc
	if subscription.CurrentPrice != nil {
		price = &moneyDoc{
			Amount:   subscription.CurrentPrice.Amount,
			Currency: subscription.CurrentPrice.Currency,
		}
	}

	update := bson.M{
		"$set": bson.M{
			"plan_id":                  subscription.PlanID,
			"price":                    price,
			"provider_customer_id":     subscription.ProviderCustomerID,
			"provider_subscription_id": subscription.ProviderSubscriptionID,
			"card_last4":               subscription.CardLast4,
			"status":                   string(subscription.Status),
			"updated_at":               subscription.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": subscription.CreatedAt,
		},
	}

	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": subscription.AccountID.String()},
		update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*billingkit.Subscription, error) {
	var doc subscriptionDoc
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billingkit.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}

	accountID, err := uuid.Parse(doc.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", doc.AccountID, err)
	}

	sub := &billingkit.Subscription{
		AccountID:              accountID,
		PlanID:                 doc.PlanID,
		ProviderCustomerID:     doc.ProviderCustomerID,
		ProviderSubscriptionID: doc.ProviderSubscriptionID,
		CardLast4:              doc.CardLast4,
		Status:                 billingkit.Status(doc.Status),
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}
	if doc.Price != nil {
		sub.CurrentPrice = &billingkit.Money{
			Amount:   doc.Price.Amount,
			Currency: doc.Price.Currency,
		}
	}
	return sub, nil
}
