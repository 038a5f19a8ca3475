package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"streamscribe/internal/types"
)

type ledgerStore struct {
	col *mongo.Collection
}

// Record inserts the (user, video) entry. A duplicate-key rejection from the
// unique index comes back as ErrDuplicateVideo; that is the authoritative
// "already processed" signal, not the advisory pre-check.
func (s *ledgerStore) Record(ctx context.Context, entry *types.DedupEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.col.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return types.ErrDuplicateVideo
	}
	return classify(err)
}

func (s *ledgerStore) IsProcessed(ctx context.Context, userID primitive.ObjectID, videoID string) (bool, error) {
	err := s.col.FindOne(ctx, bson.M{"userId": userID, "videoId": videoID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

func (s *ledgerStore) Lookup(ctx context.Context, userID primitive.ObjectID, videoID string) (*types.DedupEntry, error) {
	var entry types.DedupEntry
	err := s.col.FindOne(ctx, bson.M{"userId": userID, "videoId": videoID}).Decode(&entry)
	if err != nil {
		return nil, classify(err)
	}
	return &entry, nil
}

// Forget drops the entry so the user can resubmit the video. Deleting an
// absent entry is not an error; deletion must stay symmetric with record
// deletion even if the ledger write was lost.
func (s *ledgerStore) Forget(ctx context.Context, userID primitive.ObjectID, videoID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"userId": userID, "videoId": videoID})
	return classify(err)
}
