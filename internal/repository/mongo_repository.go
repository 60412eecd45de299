package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
	}
}

func notDeleted() bson.M {
	return bson.M{"deleted_at": bson.M{"$exists": false}}
}

func projectionFor(rg domain.ResponseGroup) bson.M {
	projection := bson.M{}
	if !rg.Has(domain.WithItems) {
		projection["items"] = 0
	}
	if !rg.Has(domain.WithShipments) {
		projection["shipments"] = 0
	}
	if !rg.Has(domain.WithPayments) {
		projection["payments"] = 0
	}
	return projection
}

func (m *mongoRepository) GetByID(ctx context.Context, id string, rg domain.ResponseGroup) (*domain.Cart, error) {
	filter := notDeleted()
	filter["_id"] = id

	opts := options.FindOne()
	if projection := projectionFor(rg); len(projection) > 0 {
		opts.SetProjection(projection)
	}

	var doc cartDoc
	err := m.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return fromDoc(&doc), nil
}

func (m *mongoRepository) GetByIDs(ctx context.Context, ids []string, rg domain.ResponseGroup) ([]*domain.Cart, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	filter := notDeleted()
	filter["_id"] = bson.M{"$in": ids}

	opts := options.Find()
	if projection := projectionFor(rg); len(projection) > 0 {
		opts.SetProjection(projection)
	}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get carts: %w", err)
	}
	defer cursor.Close(ctx)

	var carts []*domain.Cart
	for cursor.Next(ctx) {
		var doc cartDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode cart: %w", err)
		}
		carts = append(carts, fromDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}
	return carts, nil
}

// GetByKey resolves the business tuple to the current cart. Always loads the
// full aggregate since callers are about to mutate it.
func (m *mongoRepository) GetByKey(ctx context.Context, key domain.CartKey) (*domain.Cart, error) {
	filter := notDeleted()
	filter["store_id"] = key.StoreID
	filter["customer_id"] = key.CustomerID
	filter["name"] = key.Name
	filter["currency"] = key.Currency
	filter["culture_name"] = key.CultureName

	var doc cartDoc
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart by key: %w", err)
	}

	return fromDoc(&doc), nil
}

func (m *mongoRepository) Create(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cart.Version = 1

	if _, err := m.collection.InsertOne(ctx, toDoc(cart)); err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// Update replaces the stored cart if its version has not moved since load.
// The version check is the cross-instance complement to the in-process keyed
// lock.
func (m *mongoRepository) Update(ctx context.Context, cart *domain.Cart) error {
	expected := cart.Version
	cart.Version = expected + 1
	cart.UpdatedAt = time.Now()

	filter := notDeleted()
	filter["_id"] = cart.ID
	filter["version"] = expected

	result, err := m.collection.ReplaceOne(ctx, filter, toDoc(cart))
	if err != nil {
		cart.Version = expected
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if result.MatchedCount == 0 {
		cart.Version = expected

		existsFilter := notDeleted()
		existsFilter["_id"] = cart.ID
		count, errCount := m.collection.CountDocuments(ctx, existsFilter)
		if errCount != nil {
			return fmt.Errorf("failed to check cart existence: %w", errCount)
		}
		if count == 0 {
			return ErrCartNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}

// SoftDelete tombstones carts by id; documents stay for auditability until
// the TTL index purges them.
func (m *mongoRepository) SoftDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	filter := notDeleted()
	filter["_id"] = bson.M{"$in": ids}

	_, err := m.collection.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"deleted_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to soft delete carts: %w", err)
	}
	return nil
}

func (m *mongoRepository) Search(ctx context.Context, criteria SearchCriteria) (*SearchResult, error) {
	filter := notDeleted()
	if criteria.StoreID != "" {
		filter["store_id"] = criteria.StoreID
	}
	if criteria.CustomerID != "" {
		filter["customer_id"] = criteria.CustomerID
	}

	total, err := m.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count carts: %w", err)
	}

	take := criteria.Take
	if take <= 0 {
		take = 20
	}
	if take > 100 {
		take = 100
	}
	skip := criteria.Skip
	if skip < 0 {
		skip = 0 // mongo rejects negative skip as a server error
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(take)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search carts: %w", err)
	}
	defer cursor.Close(ctx)

	result := &SearchResult{TotalCount: total}
	for cursor.Next(ctx) {
		var doc cartDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode cart: %w", err)
		}
		result.Carts = append(result.Carts, fromDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}
	return result, nil
}

// EnsureIndexes creates the cart collection indexes. ConnectMongoDB runs it
// as part of connection bootstrap; creation is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	repo := &mongoRepository{collection: db.Collection("carts")}
	return repo.CreateIndexes(ctx)
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			// business tuple lookup for get-or-create; uniqueness is enforced
			// by the keyed critical section, tombstoned carts share tuples
			Keys: bson.D{
				{Key: "store_id", Value: 1},
				{Key: "customer_id", Value: 1},
				{Key: "name", Value: 1},
				{Key: "currency", Value: 1},
				{Key: "culture_name", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "customer_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
