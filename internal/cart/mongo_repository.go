package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const abandonedCartTTL = 90 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoRepository) GetCart(ctx context.Context, identityKey string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"identity_key": identityKey}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoRepository) UpsertLine(ctx context.Context, identityKey string, variantID, qty int64) error {
	incremented, err := m.incrementLine(ctx, identityKey, variantID, qty)
	if err != nil || incremented {
		return err
	}

	err = m.pushLine(ctx, identityKey, variantID, qty)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent writer created the cart or the line first
		incremented, err = m.incrementLine(ctx, identityKey, variantID, qty)
		if err == nil && !incremented {
			err = m.pushLine(ctx, identityKey, variantID, qty)
		}
	}
	return err
}

func (m *MongoRepository) incrementLine(ctx context.Context, identityKey string, variantID, qty int64) (bool, error) {
	filter := bson.M{
		"identity_key":     identityKey,
		"lines.variant_id": variantID,
	}
	update := bson.M{
		"$inc": bson.M{"lines.$.quantity": qty},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to increment line: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (m *MongoRepository) pushLine(ctx context.Context, identityKey string, variantID, qty int64) error {
	now := time.Now()
	filter := bson.M{
		"identity_key":     identityKey,
		"lines.variant_id": bson.M{"$ne": variantID},
	}
	update := bson.M{
		"$push":        bson.M{"lines": domain.CartLine{VariantID: variantID, Quantity: qty, AddedAt: now}},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to add line: %w", err)
	}
	return nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, identityKey string, variantID int64) error {
	filter := bson.M{
		"identity_key":     identityKey,
		"lines.variant_id": variantID,
	}
	update := bson.M{
		"$pull": bson.M{"lines": bson.M{"variant_id": variantID}},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, identityKey string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"identity_key": identityKey})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identity_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(abandonedCartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
