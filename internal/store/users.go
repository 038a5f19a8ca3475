package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"streamscribe/internal/types"
)

type userStore struct {
	col *mongo.Collection
}

func (s *userStore) FindByToken(ctx context.Context, token string) (*types.User, error) {
	var u types.User
	err := s.col.FindOne(ctx, bson.M{"token": token}).Decode(&u)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (s *userStore) FindByID(ctx context.Context, id primitive.ObjectID) (*types.User, error) {
	var u types.User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// AddHoursUsed bumps the cumulative usage counter and last-activity stamp.
func (s *userStore) AddHoursUsed(ctx context.Context, id primitive.ObjectID, hours float64) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"hoursUsed": hours},
		"$set": bson.M{"lastActive": time.Now().UTC()},
	})
	return classify(err)
}

func (s *userStore) ListAll(ctx context.Context) ([]types.User, error) {
	cur, err := s.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	out := []types.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

var _ Users = (*userStore)(nil)
var _ Ledger = (*ledgerStore)(nil)
var _ Credits = (*creditStore)(nil)
var _ Transcriptions = (*transcriptionStore)(nil)
