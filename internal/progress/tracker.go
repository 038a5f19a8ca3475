package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"streamscribe/internal/types"
)

// Snapshot is the polled view of one orchestration job. Jobs are keyed by a
// generated id handed to the client at submission, so concurrent runs never
// overwrite each other's status.
type Snapshot struct {
	JobID     string    `json:"jobId"`
	UserID    string    `json:"userId"`
	SourceURL string    `json:"sourceUrl"`
	Message   string    `json:"message"`
	Done      bool      `json:"done"`
	Failed    bool      `json:"failed"`
	Error     string    `json:"error,omitempty"`
	ResultID  string    `json:"resultId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker is what the orchestrator writes milestones through.
type Tracker interface {
	Begin(ctx context.Context, userID, sourceURL string) (jobID string, err error)
	Update(ctx context.Context, jobID, message string) error
	Complete(ctx context.Context, jobID, resultID string) error
	Fail(ctx context.Context, jobID string, cause error) error
	Get(ctx context.Context, jobID string) (*Snapshot, error)
}

// RedisTracker keeps snapshots in redis under a TTL so any instance can serve
// a progress poll for a job started elsewhere.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTracker(rdb *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: ttl}
}

func jobKey(jobID string) string { return "scribe:job:" + jobID }

// Begin allocates a job id and writes the initial "starting" snapshot. The
// snapshot carries the submitting user's id so reads can be owner-scoped.
func (t *RedisTracker) Begin(ctx context.Context, userID, sourceURL string) (string, error) {
	jobID := uuid.New().String()
	snap := Snapshot{
		JobID:     jobID,
		UserID:    userID,
		SourceURL: sourceURL,
		Message:   "Starting transcription",
		UpdatedAt: time.Now().UTC(),
	}
	if err := t.write(ctx, &snap); err != nil {
		return "", err
	}
	return jobID, nil
}

func (t *RedisTracker) Update(ctx context.Context, jobID, message string) error {
	return t.mutate(ctx, jobID, func(s *Snapshot) {
		s.Message = message
	})
}

func (t *RedisTracker) Complete(ctx context.Context, jobID, resultID string) error {
	return t.mutate(ctx, jobID, func(s *Snapshot) {
		s.Message = "Transcription complete"
		s.Done = true
		s.ResultID = resultID
	})
}

func (t *RedisTracker) Fail(ctx context.Context, jobID string, cause error) error {
	return t.mutate(ctx, jobID, func(s *Snapshot) {
		s.Message = "Transcription failed"
		s.Done = true
		s.Failed = true
		if cause != nil {
			s.Error = cause.Error()
		}
	})
}

// Get returns the snapshot for a job id; unknown or expired ids are
// ErrNotFound.
func (t *RedisTracker) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	raw, err := t.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("progress get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("progress decode: %w", err)
	}
	return &snap, nil
}

func (t *RedisTracker) mutate(ctx context.Context, jobID string, apply func(*Snapshot)) error {
	snap, err := t.Get(ctx, jobID)
	if err != nil {
		return err
	}
	apply(snap)
	snap.UpdatedAt = time.Now().UTC()
	return t.write(ctx, snap)
}

func (t *RedisTracker) write(ctx context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := t.rdb.Set(ctx, jobKey(snap.JobID), raw, t.ttl).Err(); err != nil {
		return fmt.Errorf("progress write: %w", err)
	}
	return nil
}
