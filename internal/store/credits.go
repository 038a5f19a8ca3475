package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamscribe/internal/types"
)

type creditStore struct {
	col *mongo.Collection
}

func (s *creditStore) Insert(ctx context.Context, usage *types.CreditUsage) error {
	if usage.ID.IsZero() {
		usage.ID = primitive.NewObjectID()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	_, err := s.col.InsertOne(ctx, usage)
	return classify(err)
}

// ListWindow returns every accounting entry in [from, to), oldest first. An
// empty window yields an empty slice, never nil, so aggregation degrades to
// zero-valued summaries.
func (s *creditStore) ListWindow(ctx context.Context, from, to time.Time) ([]types.CreditUsage, error) {
	cur, err := s.col.Find(ctx,
		bson.M{"createdAt": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	out := []types.CreditUsage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// UserStats aggregates month-to-date and lifetime hours/jobs for one user.
func (s *creditStore) UserStats(ctx context.Context, userID primitive.ObjectID, monthStart time.Time) (*UsageStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"totalHours": bson.M{"$sum": "$durationHours"},
			"totalJobs":  bson.M{"$sum": 1},
			"monthHours": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$createdAt", monthStart}}, "$durationHours", 0,
			}}},
			"monthJobs": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$createdAt", monthStart}}, 1, 0,
			}}},
		}}},
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		TotalHours float64 `bson:"totalHours"`
		TotalJobs  int     `bson:"totalJobs"`
		MonthHours float64 `bson:"monthHours"`
		MonthJobs  int     `bson:"monthJobs"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return &UsageStats{}, nil
	}
	return &UsageStats{
		MonthHours: rows[0].MonthHours,
		MonthJobs:  rows[0].MonthJobs,
		TotalHours: rows[0].TotalHours,
		TotalJobs:  rows[0].TotalJobs,
	}, nil
}
