package configs

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupIndexes creates the indexes the session and chunk-ref collections rely
// on. The unique upload_id index is what turns an id collision into a
// duplicate-key failure instead of a second session.
func SetupIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "upload_id", Value: 1}},
			Options: options.Index().SetName("idx_upload_id").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "batch_id", Value: 1},
				{Key: "owner_id", Value: 1},
				{Key: "batch_position", Value: 1},
			},
			Options: options.Index().SetName("idx_batch_owner_position"),
		},
		{
			Keys: bson.D{
				{Key: "batch_id", Value: 1},
				{Key: "batch_position", Value: 1},
			},
			Options: options.Index().SetName("idx_batch_position_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_status"),
		},
	}

	if _, err := db.Collection("upload_sessions").Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return err
	}

	chunkRefIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "upload_id", Value: 1},
				{Key: "sequence", Value: 1},
			},
			Options: options.Index().SetName("idx_upload_sequence_unique").SetUnique(true),
		},
	}

	if _, err := db.Collection("chunk_refs").Indexes().CreateMany(ctx, chunkRefIndexes); err != nil {
		return err
	}

	log.Println("MongoDB indexes created successfully")
	return nil
}
