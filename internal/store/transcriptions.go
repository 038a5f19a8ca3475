package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"streamscribe/internal/types"
)

type transcriptionStore struct {
	col *mongo.Collection
}

func (s *transcriptionStore) Insert(ctx context.Context, rec *types.TranscriptionRecord) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.col.InsertOne(ctx, rec)
	return classify(err)
}

func (s *transcriptionStore) FindByID(ctx context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error) {
	var rec types.TranscriptionRecord
	err := s.col.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&rec)
	if err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}

// ListRecent pages through the user's completed records, newest first,
// collapsed to one entry per video (most recent wins). Failed attempts are
// never listed.
func (s *transcriptionStore) ListRecent(ctx context.Context, userID primitive.ObjectID, page, pageSize int) ([]types.TranscriptionRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID, "status": types.StatusCompleted}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$videoId", "doc": bson.M{"$first": "$$ROOT"}}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: (page - 1) * pageSize}},
		{{Key: "$limit", Value: pageSize}},
	}

	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	out := []types.TranscriptionRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Delete removes the record if the caller owns it, returning the deleted
// document so the caller can also drop the matching ledger entry.
func (s *transcriptionStore) Delete(ctx context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error) {
	var rec types.TranscriptionRecord
	err := s.col.FindOneAndDelete(ctx, bson.M{"_id": id, "userId": userID}).Decode(&rec)
	if err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}
