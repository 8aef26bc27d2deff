package archive

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoArchiver struct {
	collection *mongo.Collection
}

func NewMongoArchiver(db *mongo.Database, collection string) *MongoArchiver {
	return &MongoArchiver{collection: db.Collection(collection)}
}

// Archive upserts by key so a resubmitted request id overwrites its earlier copy.
func (a *MongoArchiver) Archive(ctx context.Context, rec Record) error {
	doc := bson.M{
		"_id":           rec.Key,
		"invocation_id": rec.InvocationID,
		"received_at":   rec.ReceivedAt,
		"size_bytes":    len(rec.Body),
		"body":          string(rec.Body),
	}

	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": rec.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to archive request %s: %w", rec.Key, err)
	}
	return nil
}

// Get returns the archived body for key.
func (a *MongoArchiver) Get(ctx context.Context, key string) ([]byte, error) {
	var doc struct {
		Body string `bson:"body"`
	}
	if err := a.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to load archived request %s: %w", key, err)
	}
	return []byte(doc.Body), nil
}
