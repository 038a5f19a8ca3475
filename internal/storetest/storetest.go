// Package storetest provides in-memory implementations of the store,
// cache, and progress interfaces for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"streamscribe/internal/progress"
	"streamscribe/internal/store"
	"streamscribe/internal/types"
)

// Transcriptions is an in-memory store.Transcriptions.
type Transcriptions struct {
	mu   sync.Mutex
	recs map[primitive.ObjectID]types.TranscriptionRecord
}

func NewTranscriptions() *Transcriptions {
	return &Transcriptions{recs: map[primitive.ObjectID]types.TranscriptionRecord{}}
}

func (s *Transcriptions) Insert(_ context.Context, rec *types.TranscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.recs[rec.ID] = *rec
	return nil
}

func (s *Transcriptions) FindByID(_ context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok && rec.UserID == userID {
		return &rec, nil
	}
	return nil, types.ErrNotFound
}

func (s *Transcriptions) ListRecent(_ context.Context, userID primitive.ObjectID, page, pageSize int) ([]types.TranscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]types.TranscriptionRecord{}
	for _, rec := range s.recs {
		if rec.UserID != userID || rec.Status != types.StatusCompleted {
			continue
		}
		if cur, ok := latest[rec.VideoID]; !ok || rec.CreatedAt.After(cur.CreatedAt) {
			latest[rec.VideoID] = rec
		}
	}
	out := []types.TranscriptionRecord{}
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(out) {
		return []types.TranscriptionRecord{}, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (s *Transcriptions) Delete(_ context.Context, userID, id primitive.ObjectID) (*types.TranscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok || rec.UserID != userID {
		return nil, types.ErrNotFound
	}
	delete(s.recs, id)
	return &rec, nil
}

// All returns every stored record, for assertions.
func (s *Transcriptions) All() []types.TranscriptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.TranscriptionRecord{}
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out
}

// Ledger is an in-memory store.Ledger with the same unique-key semantics as
// the mongo index.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]types.DedupEntry
}

func NewLedger() *Ledger { return &Ledger{entries: map[string]types.DedupEntry{}} }

func ledgerKey(userID primitive.ObjectID, videoID string) string {
	return userID.Hex() + "|" + videoID
}

func (l *Ledger) Record(_ context.Context, e *types.DedupEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(e.UserID, e.VideoID)
	if _, ok := l.entries[key]; ok {
		return types.ErrDuplicateVideo
	}
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.entries[key] = *e
	return nil
}

func (l *Ledger) IsProcessed(_ context.Context, userID primitive.ObjectID, videoID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[ledgerKey(userID, videoID)]
	return ok, nil
}

func (l *Ledger) Lookup(_ context.Context, userID primitive.ObjectID, videoID string) (*types.DedupEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ledgerKey(userID, videoID)]; ok {
		return &e, nil
	}
	return nil, types.ErrNotFound
}

func (l *Ledger) Forget(_ context.Context, userID primitive.ObjectID, videoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ledgerKey(userID, videoID))
	return nil
}

// Credits is an in-memory store.Credits.
type Credits struct {
	mu      sync.Mutex
	entries []types.CreditUsage
}

func NewCredits() *Credits { return &Credits{} }

func (c *Credits) Insert(_ context.Context, u *types.CreditUsage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	c.entries = append(c.entries, *u)
	return nil
}

func (c *Credits) ListWindow(_ context.Context, from, to time.Time) ([]types.CreditUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []types.CreditUsage{}
	for _, e := range c.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Credits) UserStats(_ context.Context, userID primitive.ObjectID, monthStart time.Time) (*store.UsageStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := &store.UsageStats{}
	for _, e := range c.entries {
		if e.UserID != userID {
			continue
		}
		stats.TotalHours += e.DurationHours
		stats.TotalJobs++
		if !e.CreatedAt.Before(monthStart) {
			stats.MonthHours += e.DurationHours
			stats.MonthJobs++
		}
	}
	return stats, nil
}

// All returns every accounting entry, for assertions.
func (c *Credits) All() []types.CreditUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.CreditUsage{}, c.entries...)
}

// Users is an in-memory store.Users.
type Users struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]types.User
}

func NewUsers(seed ...types.User) *Users {
	u := &Users{users: map[primitive.ObjectID]types.User{}}
	for _, s := range seed {
		u.users[s.ID] = s
	}
	return u
}

func (u *Users) FindByToken(_ context.Context, token string) (*types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, usr := range u.users {
		if usr.Token == token {
			copied := usr
			return &copied, nil
		}
	}
	return nil, types.ErrNotFound
}

func (u *Users) FindByID(_ context.Context, id primitive.ObjectID) (*types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr, ok := u.users[id]; ok {
		copied := usr
		return &copied, nil
	}
	return nil, types.ErrNotFound
}

func (u *Users) AddHoursUsed(_ context.Context, id primitive.ObjectID, hours float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr := u.users[id]
	usr.HoursUsed += hours
	usr.LastActive = time.Now().UTC()
	u.users[id] = usr
	return nil
}

func (u *Users) ListAll(context.Context) ([]types.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := []types.User{}
	for _, usr := range u.users {
		out = append(out, usr)
	}
	return out, nil
}

// Hours reports the cumulative counter for one user, for assertions.
func (u *Users) Hours(id primitive.ObjectID) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.users[id].HoursUsed
}

// Cache is an in-memory result cache with the orchestrator's semantics.
type Cache struct {
	mu      sync.Mutex
	entries map[string]types.TranscriptionRecord
}

func NewCache() *Cache { return &Cache{entries: map[string]types.TranscriptionRecord{}} }

func (c *Cache) Get(_ context.Context, userID, url string) (*types.TranscriptionRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.entries[userID+"|"+url]; ok {
		return &rec, true, nil
	}
	return nil, false, nil
}

func (c *Cache) Put(_ context.Context, userID, url string, rec *types.TranscriptionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID+"|"+url] = *rec
	return nil
}

func (c *Cache) Invalidate(_ context.Context, userID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID+"|"+url)
	return nil
}

// Clear empties the cache, simulating TTL expiry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]types.TranscriptionRecord{}
}

// Tracker is an in-memory progress.Tracker.
type Tracker struct {
	mu    sync.Mutex
	snaps map[string]*progress.Snapshot
}

func NewTracker() *Tracker { return &Tracker{snaps: map[string]*progress.Snapshot{}} }

func (t *Tracker) Begin(_ context.Context, userID, url string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uuid.New().String()
	t.snaps[id] = &progress.Snapshot{
		JobID: id, UserID: userID, SourceURL: url,
		Message: "Starting transcription", UpdatedAt: time.Now().UTC(),
	}
	return id, nil
}

func (t *Tracker) Update(_ context.Context, id, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.snaps[id]; ok {
		s.Message = msg
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (t *Tracker) Complete(_ context.Context, id, resultID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.snaps[id]; ok {
		s.Done = true
		s.ResultID = resultID
		s.Message = "Transcription complete"
	}
	return nil
}

func (t *Tracker) Fail(_ context.Context, id string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.snaps[id]; ok {
		s.Done, s.Failed = true, true
		s.Message = "Transcription failed"
		if cause != nil {
			s.Error = cause.Error()
		}
	}
	return nil
}

func (t *Tracker) Get(_ context.Context, id string) (*progress.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.snaps[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, types.ErrNotFound
}

var (
	_ store.Transcriptions = (*Transcriptions)(nil)
	_ store.Ledger         = (*Ledger)(nil)
	_ store.Credits        = (*Credits)(nil)
	_ store.Users          = (*Users)(nil)
	_ progress.Tracker     = (*Tracker)(nil)
)
