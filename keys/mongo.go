package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the collection holding API key records.
const DefaultCollection = "apikeys"

// MongoRepository stores key records in MongoDB, one document per key.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Ensure MongoRepository implements Repository interface
var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository uses the DefaultCollection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		coll: db.Collection(DefaultCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique key id index and the owner index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "keyId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create indexes: %v", ErrKeyStoreUnavailable, err)
	}
	return nil
}

// Lookup finds the record for keyID.
func (r *MongoRepository) Lookup(ctx context.Context, keyID string) (*Record, error) {
	var rec Record
	err := r.coll.FindOne(ctx, bson.D{{Key: "keyId", Value: keyID}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return &rec, nil
}

// Insert stores a new record.
func (r *MongoRepository) Insert(ctx context.Context, rec *Record) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return nil
}

// UpdateSecret replaces the secret hash, reactivates the key and stamps rotatedAt.
func (r *MongoRepository) UpdateSecret(ctx context.Context, keyID, secretHash string, rotatedAt time.Time) (*Record, error) {
	return r.update(ctx, keyID, bson.D{
		{Key: "secretHash", Value: secretHash},
		{Key: "status", Value: StatusActive},
		{Key: "rotatedAt", Value: rotatedAt},
		{Key: "updatedAt", Value: r.now()},
	})
}

// UpdateStatus sets the status of keyID.
func (r *MongoRepository) UpdateStatus(ctx context.Context, keyID string, status Status) (*Record, error) {
	return r.update(ctx, keyID, bson.D{
		{Key: "status", Value: status},
		{Key: "updatedAt", Value: r.now()},
	})
}

func (r *MongoRepository) update(ctx context.Context, keyID string, set bson.D) (*Record, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec Record
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "keyId", Value: keyID}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return &rec, nil
}

// ListByOwner returns the owner's keys, newest first.
func (r *MongoRepository) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.coll.Find(ctx, bson.D{{Key: "ownerId", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}

	out := make([]Record, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return out, nil
}
