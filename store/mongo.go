package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"upload-gateway/models"
)

const (
	SessionCollection = "upload_sessions"

	opTimeout = 5 * time.Second
)

// MongoSessionStore keeps one document per upload session in the
// upload_sessions collection. All per-session mutations go through
// FindOneAndUpdate so concurrent chunk applications serialize on the
// document instead of racing a read-modify-write in the service.
type MongoSessionStore struct {
	db *mongo.Database
}

func NewMongoSessionStore(db *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{db: db}
}

func (s *MongoSessionStore) collection() *mongo.Collection {
	return s.db.Collection(SessionCollection)
}

func (s *MongoSessionStore) CreateBatch(ctx context.Context, sessions []models.UploadSession) error {
	if len(sessions) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	docs := make([]interface{}, len(sessions))
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		docs[i] = sess
		ids[i] = sess.UploadID
	}

	_, err := s.collection().InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}

	// Partial batch creation must never be observable: roll back whatever
	// the ordered insert managed to write before failing.
	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), opTimeout)
	defer cleanupCancel()
	if _, delErr := s.collection().DeleteMany(cleanupCtx, bson.M{"upload_id": bson.M{"$in": ids}}); delErr != nil {
		log.Printf("[Store] Failed to roll back partial batch insert: %v", delErr)
	}

	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return fmt.Errorf("failed to insert upload sessions: %w", err)
}

func (s *MongoSessionStore) Get(ctx context.Context, uploadID, ownerID string) (*models.UploadSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var sess models.UploadSession
	err := s.collection().FindOne(ctx, bson.M{"upload_id": uploadID, "owner_id": ownerID}).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return &sess, nil
}

func (s *MongoSessionStore) ApplyChunk(ctx context.Context, uploadID, ownerID string, chunkSize int64, isLast bool) (*models.UploadSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	next := models.StatusUploading
	if isLast {
		next = models.StatusReadyForProcessing
	}

	// Aggregation-pipeline update: the add and the conditional status advance
	// happen server-side in one atomic step, so two chunks for the same
	// upload never lose an update. Statuses past uploading are left alone.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"bytes_uploaded": bson.M{"$add": bson.A{"$bytes_uploaded", chunkSize}},
			"status": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{"$status", bson.A{
					string(models.StatusPending),
					string(models.StatusUploading),
				}}},
				string(next),
				"$status",
			}},
			"updated_at": "$$NOW",
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var sess models.UploadSession
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"upload_id": uploadID, "owner_id": ownerID}, update, opts).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to apply chunk: %w", err)
	}
	return &sess, nil
}

func (s *MongoSessionStore) SetTerminal(ctx context.Context, uploadID, ownerID string, status models.UploadStatus) (*models.UploadSession, error) {
	allowedFrom, err := terminalAllowedFrom(status)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"upload_id": uploadID,
		"owner_id":  ownerID,
		"status":    bson.M{"$in": allowedFrom},
	}
	update := bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var sess models.UploadSession
	err = s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&sess)
	if err == nil {
		return &sess, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	// No matching document: either the session does not exist, it is already
	// at the requested status (idempotent retry), or the transition is not
	// allowed from its current status.
	current, getErr := s.Get(ctx, uploadID, ownerID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == status {
		return current, nil
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
}

func (s *MongoSessionStore) ListByBatch(ctx context.Context, batchID, ownerID string) ([]models.UploadSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "batch_position", Value: 1}})
	cursor, err := s.collection().Find(ctx, bson.M{"batch_id": batchID, "owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.UploadSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode batch sessions: %w", err)
	}
	return sessions, nil
}

func terminalAllowedFrom(status models.UploadStatus) ([]string, error) {
	switch status {
	case models.StatusCompleted:
		return []string{string(models.StatusReadyForProcessing)}, nil
	case models.StatusError:
		return []string{
			string(models.StatusPending),
			string(models.StatusUploading),
			string(models.StatusReadyForProcessing),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}
}
