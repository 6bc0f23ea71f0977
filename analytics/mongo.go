package analytics

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection holds the daily counter rows.
const DefaultCollection = "analytics"

// MongoStore keeps counters in MongoDB and updates them only with $inc upserts.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Ensure MongoStore implements Store interface
var _ Store = (*MongoStore)(nil)

// NewMongoStore uses the DefaultCollection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll: db.Collection(DefaultCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique (apiKeyId, date) index plus the owner and date indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "apiKeyId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: create indexes: %v", ErrWriteFailed, err)
	}
	return nil
}

// Increment implements Store.
func (s *MongoStore) Increment(ctx context.Context, apiKeyID, ownerID string, day time.Time, field Field) error {
	if err := checkField(field); err != nil {
		return err
	}

	filter := bson.D{
		{Key: "apiKeyId", Value: apiKeyID},
		{Key: "date", Value: Day(day)},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "totalCalls", Value: int64(1)},
			{Key: string(field), Value: int64(1)},
		}},
		{Key: "$set", Value: bson.D{{Key: "lastUpdated", Value: s.now()}}},
	}
	if ownerID != "" {
		update = append(update, bson.E{Key: "$setOnInsert", Value: bson.D{{Key: "ownerId", Value: ownerID}}})
	}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := s.coll.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced to create the row; the retry finds it
		_, err = s.coll.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Range implements Store.
func (s *MongoStore) Range(ctx context.Context, keyIDs []string, since time.Time) ([]Counter, error) {
	out := make([]Counter, 0)
	if len(keyIDs) == 0 {
		return out, nil
	}

	filter := bson.D{
		{Key: "apiKeyId", Value: bson.D{{Key: "$in", Value: keyIDs}}},
		{Key: "date", Value: bson.D{{Key: "$gte", Value: Day(since)}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "apiKeyId", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return out, nil
}
