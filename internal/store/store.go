package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamscribe/internal/types"
)

// Collection names.
const (
	colTranscriptions = "transcriptions"
	colLedger         = "dedup_ledger"
	colCredits        = "credit_usage"
	colUsers          = "users"
)

// Transcriptions is the durable record of completed and failed runs.
type Transcriptions interface {
	Insert(ctx context.Context, rec *types.TranscriptionRecord) error
	FindByID(ctx context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error)
	ListRecent(ctx context.Context, userID primitive.ObjectID, page, pageSize int) ([]types.TranscriptionRecord, error)
	Delete(ctx context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error)
}

// Ledger prevents duplicate billed processing per (user, video). The unique
// index behind Record is the authoritative arbiter; IsProcessed is advisory.
type Ledger interface {
	Record(ctx context.Context, entry *types.DedupEntry) error
	IsProcessed(ctx context.Context, userID primitive.ObjectID, videoID string) (bool, error)
	Lookup(ctx context.Context, userID primitive.ObjectID, videoID string) (*types.DedupEntry, error)
	Forget(ctx context.Context, userID primitive.ObjectID, videoID string) error
}

// UsageStats is the caller-facing usage summary.
type UsageStats struct {
	MonthHours float64 `json:"monthHours"`
	MonthJobs  int     `json:"monthJobs"`
	TotalHours float64 `json:"totalHours"`
	TotalJobs  int     `json:"totalJobs"`
}

// Credits stores the per-job accounting entries and serves the read-side
// windows the analytics aggregator consumes.
type Credits interface {
	Insert(ctx context.Context, usage *types.CreditUsage) error
	ListWindow(ctx context.Context, from, to time.Time) ([]types.CreditUsage, error)
	UserStats(ctx context.Context, userID primitive.ObjectID, monthStart time.Time) (*UsageStats, error)
}

// Users resolves tokens to accounts and keeps cumulative usage counters.
type Users interface {
	FindByToken(ctx context.Context, token string) (*types.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*types.User, error)
	AddHoursUsed(ctx context.Context, id primitive.ObjectID, hours float64) error
	ListAll(ctx context.Context) ([]types.User, error)
}

// Store bundles the four collections over one mongo database.
type Store struct {
	Transcriptions Transcriptions
	Ledger         Ledger
	Credits        Credits
	Users          Users
}

func New(db *mongo.Database) *Store {
	return &Store{
		Transcriptions: &transcriptionStore{col: db.Collection(colTranscriptions)},
		Ledger:         &ledgerStore{col: db.Collection(colLedger)},
		Credits:        &creditStore{col: db.Collection(colCredits)},
		Users:          &userStore{col: db.Collection(colUsers)},
	}
}

// EnsureIndexes creates the indexes the invariants depend on; the compound
// unique index on the ledger is what makes dedup authoritative.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(colLedger).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "videoId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return classify(err)
	}
	_, err = db.Collection(colTranscriptions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return classify(err)
	}
	_, err = db.Collection(colCredits).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return classify(err)
	}
	_, err = db.Collection(colUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return classify(err)
}

// classify maps driver failures onto the service error taxonomy so callers
// never branch on driver types.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return types.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return types.ErrStorageConflict
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return types.ErrStorageUnavailable
	default:
		return err
	}
}
