package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"streamscribe/internal/storetest"
	"streamscribe/internal/transcription"
	"streamscribe/internal/types"
)

type fakeArtifact struct {
	path    string
	cleaned bool
}

func (a *fakeArtifact) Path() string { return a.path }
func (a *fakeArtifact) Size() int64  { return 1024 }
func (a *fakeArtifact) Cleanup() error {
	a.cleaned = true
	return os.RemoveAll(filepath.Dir(a.path))
}

type fakeAudio struct {
	err      error
	artifact *fakeArtifact
	calls    int
}

func (f *fakeAudio) Audio(context.Context, string) (AudioArtifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

type fakeUpstream struct {
	transcript *transcription.Transcript
	uploadErr  error
	pollErr    error
	uploads    int
	submits    int
}

func (f *fakeUpstream) Upload(context.Context, string) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://cdn.example/upload", nil
}

func (f *fakeUpstream) Submit(context.Context, string) (string, error) {
	f.submits++
	return "upstream-job", nil
}

func (f *fakeUpstream) PollUntilDone(_ context.Context, _ string, onPoll func(string, int)) (*transcription.Transcript, error) {
	if onPoll != nil {
		onPoll("processing", 1)
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.transcript, nil
}

type harness struct {
	orch    *Orchestrator
	audio   *fakeAudio
	up      *fakeUpstream
	tracker *storetest.Tracker
	cache   *storetest.Cache
	recs    *storetest.Transcriptions
	ledger  *storetest.Ledger
	credits *storetest.Credits
	users   *storetest.Users
	user    *types.User
}

func completedTranscript() *transcription.Transcript {
	return &transcription.Transcript{
		ID:            "upstream-job",
		Status:        "completed",
		Text:          "The first sentence has plenty of characters. The second one does too and it talks about transcription! A third sentence rounds this transcription sample out nicely.",
		Confidence:    0.91,
		AudioDuration: 600,
		LanguageCode:  "en_us",
	}
}

func freshArtifact(t *testing.T) *fakeArtifact {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))
	return &fakeArtifact{path: path}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	user := types.User{
		ID:    primitive.NewObjectID(),
		Email: "u1@example.com",
		Token: "tok-u1",
		Tier:  types.TierStandard,
		Role:  types.RoleUser,
	}
	h := &harness{
		audio:   &fakeAudio{artifact: freshArtifact(t)},
		up:      &fakeUpstream{transcript: completedTranscript()},
		tracker: storetest.NewTracker(),
		cache:   storetest.NewCache(),
		recs:    storetest.NewTranscriptions(),
		ledger:  storetest.NewLedger(),
		credits: storetest.NewCredits(),
		users:   storetest.NewUsers(user),
		user:    &user,
	}
	h.orch = &Orchestrator{
		Audio:          h.audio,
		Upstream:       h.up,
		Cache:          h.cache,
		Progress:       h.tracker,
		Transcriptions: h.recs,
		Ledger:         h.ledger,
		Credits:        h.credits,
		Users:          h.users,
		CostPerMinute:  0.0001,
	}
	return h
}

func (h *harness) submit(t *testing.T, rawURL string) (*types.TranscriptionRecord, error) {
	t.Helper()
	ctx := context.Background()
	outcome, videoID, err := h.orch.Check(ctx, h.user, rawURL)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return outcome.Record, nil
	}
	jobID, err := h.tracker.Begin(ctx, h.user.ID.Hex(), rawURL)
	require.NoError(t, err)
	return h.orch.Run(ctx, h.user, rawURL, videoID, jobID)
}

const submitURL = "https://www.youtube.com/watch?v=ABC123xyz90"

func TestFirstSubmission(t *testing.T) {
	h := newHarness(t)

	rec, err := h.submit(t, submitURL)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, "ABC123xyz90", rec.VideoID)
	assert.Equal(t, h.user.ID, rec.UserID)

	ok, err := h.ledger.IsProcessed(context.Background(), h.user.ID, "ABC123xyz90")
	require.NoError(t, err)
	assert.True(t, ok)

	entries := h.credits.All()
	require.Len(t, entries, 1)
	assert.InDelta(t, 10*0.0001, entries[0].UpstreamCost, 1e-12) // 600s = 10 min
	assert.Equal(t, types.TierStandard, entries[0].Tier)
	assert.InDelta(t, 600.0/3600, h.users.Hours(h.user.ID), 1e-9)

	assert.True(t, h.audio.artifact.cleaned, "temp audio must be removed on success")
}

func TestDuplicateSubmissionShortCircuits(t *testing.T) {
	h := newHarness(t)

	first, err := h.submit(t, submitURL)
	require.NoError(t, err)

	outcome, _, err := h.orch.Check(context.Background(), h.user, submitURL)
	require.NoError(t, err)
	require.NotNil(t, outcome, "second submission must short-circuit")
	assert.True(t, outcome.IsCached)
	assert.Equal(t, first.Transcript, outcome.Record.Transcript)

	assert.Equal(t, 1, h.up.uploads, "no new upstream calls on duplicate")
	assert.Len(t, h.credits.All(), 1, "no second charge")
}

func TestLedgerShortCircuitWhenCacheExpired(t *testing.T) {
	h := newHarness(t)

	first, err := h.submit(t, submitURL)
	require.NoError(t, err)

	h.cache.Clear()

	outcome, _, err := h.orch.Check(context.Background(), h.user, submitURL)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.IsCached)
	assert.Equal(t, first.ID, outcome.Record.ID)
	assert.Equal(t, 1, h.up.uploads)
}

func TestDifferentUserSameVideo(t *testing.T) {
	h := newHarness(t)

	rec1, err := h.submit(t, submitURL)
	require.NoError(t, err)

	u2 := types.User{ID: primitive.NewObjectID(), Email: "u2@example.com", Tier: types.TierBasic}
	h.user = &u2
	h.audio.artifact = freshArtifact(t)

	rec2, err := h.submit(t, submitURL)
	require.NoError(t, err)

	assert.NotEqual(t, rec1.ID, rec2.ID)
	assert.Equal(t, u2.ID, rec2.UserID)
	assert.Len(t, h.credits.All(), 2)

	ok, _ := h.ledger.IsProcessed(context.Background(), rec1.UserID, "ABC123xyz90")
	assert.True(t, ok, "first user's ledger entry untouched")
}

func TestInvalidURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(t, "https://vimeo.com/123456")
	assert.ErrorIs(t, err, types.ErrInvalidSourceURL)
	assert.Zero(t, h.audio.calls)
}

func TestUpstreamErrorRecordsFailure(t *testing.T) {
	h := newHarness(t)
	h.up.pollErr = fmt.Errorf("%w: language not supported", types.ErrUpstreamTranscription)

	_, err := h.submit(t, submitURL)
	assert.ErrorIs(t, err, types.ErrUpstreamTranscription)

	recs := h.recs.All()
	require.Len(t, recs, 1)
	assert.Equal(t, types.StatusFailed, recs[0].Status)

	ok, _ := h.ledger.IsProcessed(context.Background(), h.user.ID, "ABC123xyz90")
	assert.False(t, ok, "failed runs never enter the ledger")
	assert.Empty(t, h.credits.All(), "failed runs are never charged")
	assert.True(t, h.audio.artifact.cleaned)

	// and the user can try again
	h.audio.artifact = freshArtifact(t)
	h.up.pollErr = nil

	rec, err := h.submit(t, submitURL)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rec.Status)
}

func TestUploadFailureRecordsFailure(t *testing.T) {
	h := newHarness(t)
	h.up.uploadErr = fmt.Errorf("connection reset")

	_, err := h.submit(t, submitURL)
	assert.ErrorIs(t, err, types.ErrUpstreamTranscription)

	recs := h.recs.All()
	require.Len(t, recs, 1)
	assert.Equal(t, types.StatusFailed, recs[0].Status)

	ok, _ := h.ledger.IsProcessed(context.Background(), h.user.ID, "ABC123xyz90")
	assert.False(t, ok)
	assert.Empty(t, h.credits.All())
	assert.True(t, h.audio.artifact.cleaned)
}

func TestTimeoutLeavesNoRecord(t *testing.T) {
	h := newHarness(t)
	h.up.pollErr = types.ErrTranscriptionTimeout

	_, err := h.submit(t, submitURL)
	assert.ErrorIs(t, err, types.ErrTranscriptionTimeout)

	assert.Empty(t, h.recs.All(), "timeouts write no record")
	assert.Empty(t, h.credits.All())
	assert.True(t, h.audio.artifact.cleaned, "temp audio must be removed on timeout")
}

func TestExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.audio.err = fmt.Errorf("%w: yt-dlp exit 1", types.ErrAudioExtraction)

	_, err := h.submit(t, submitURL)
	assert.ErrorIs(t, err, types.ErrAudioExtraction)
	assert.Zero(t, h.up.uploads)
	assert.Empty(t, h.credits.All())
}

func TestEmptyUpstreamAnalyticsSynthesized(t *testing.T) {
	h := newHarness(t)
	// the canned transcript has text but no analytics blocks

	rec, err := h.submit(t, submitURL)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Highlights)
	assert.LessOrEqual(t, len(rec.Highlights), 5)
	assert.NotEmpty(t, rec.Sentiments)
	assert.LessOrEqual(t, len(rec.Sentiments), 3)
	assert.NotEmpty(t, rec.Chapters)
	assert.LessOrEqual(t, len(rec.Chapters), 3)
	for _, s := range rec.Sentiments {
		assert.Equal(t, "neutral", s.Sentiment)
	}
}

func TestUpstreamAnalyticsPreserved(t *testing.T) {
	h := newHarness(t)
	h.up.transcript.AutoHighlightsResult.Results = []struct {
		Text       string `json:"text"`
		Count      int    `json:"count"`
		Rank       int    `json:"rank"`
		Timestamps []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"timestamps"`
	}{{Text: "real highlight", Count: 7, Rank: 1}}

	rec, err := h.submit(t, submitURL)
	require.NoError(t, err)
	require.Len(t, rec.Highlights, 1)
	assert.Equal(t, "real highlight", rec.Highlights[0].Text)
}

func TestConcurrentDuplicateResolvedByLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a concurrent run claimed the pair after our pre-check
	winner := types.TranscriptionRecord{
		UserID: h.user.ID, VideoID: "ABC123xyz90",
		SourceURL: submitURL, Transcript: "winner",
		Status: types.StatusCompleted,
	}
	require.NoError(t, h.recs.Insert(ctx, &winner))
	require.NoError(t, h.ledger.Record(ctx, &types.DedupEntry{
		UserID: h.user.ID, VideoID: "ABC123xyz90", TranscriptionID: winner.ID,
	}))

	jobID, err := h.tracker.Begin(ctx, h.user.ID.Hex(), submitURL)
	require.NoError(t, err)
	rec, err := h.orch.Run(ctx, h.user, submitURL, "ABC123xyz90", jobID)
	require.NoError(t, err)

	assert.Equal(t, winner.ID, rec.ID, "the ledger winner is served")
	assert.Equal(t, "winner", rec.Transcript)
	assert.Len(t, h.recs.All(), 1, "losing record rolled back")
	assert.Empty(t, h.credits.All(), "losing run is never charged")
}

func TestStaleDedupClaimReclaimed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a claim whose record is gone, as left behind when a delete removed the
	// record but the ledger release did not land
	require.NoError(t, h.ledger.Record(ctx, &types.DedupEntry{
		UserID: h.user.ID, VideoID: "ABC123xyz90",
		TranscriptionID: primitive.NewObjectID(),
	}))

	rec, err := h.submit(t, submitURL)
	require.NoError(t, err, "resubmission must succeed despite the stale claim")
	assert.Equal(t, types.StatusCompleted, rec.Status)

	entry, err := h.ledger.Lookup(ctx, h.user.ID, "ABC123xyz90")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, entry.TranscriptionID, "claim now points at the new record")

	assert.Len(t, h.recs.All(), 1)
	assert.Len(t, h.credits.All(), 1)
}

func TestDemoShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.orch.TestDelay = time.Millisecond

	rec, err := h.submit(t, "https://www.youtube.com/watch?v=TESTdemo001")
	require.NoError(t, err)

	assert.Zero(t, h.up.uploads, "demo runs never reach the speech API")
	assert.Zero(t, h.audio.calls)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.Highlights)
	assert.NotEmpty(t, rec.Chapters)
	assert.Len(t, h.credits.All(), 1)
}

func TestDemoHonorsCancellation(t *testing.T) {
	h := newHarness(t)
	h.orch.TestDelay = time.Minute
	demoURL := "https://www.youtube.com/watch?v=TESTdemo001"

	ctx, cancel := context.WithCancel(context.Background())
	jobID, err := h.tracker.Begin(ctx, h.user.ID.Hex(), demoURL)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Run(ctx, h.user, demoURL, "TESTdemo001", jobID)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not observe cancellation")
	}
}

func TestProgressLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, videoID, err := h.orch.Check(ctx, h.user, submitURL)
	require.NoError(t, err)
	jobID, err := h.tracker.Begin(ctx, h.user.ID.Hex(), submitURL)
	require.NoError(t, err)

	rec, err := h.orch.Run(ctx, h.user, submitURL, videoID, jobID)
	require.NoError(t, err)

	snap, err := h.tracker.Get(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, snap.Done)
	assert.False(t, snap.Failed)
	assert.Equal(t, rec.ID.Hex(), snap.ResultID)
}

func TestProgressFailsOnError(t *testing.T) {
	h := newHarness(t)
	h.up.pollErr = types.ErrTranscriptionTimeout
	ctx := context.Background()

	jobID, err := h.tracker.Begin(ctx, h.user.ID.Hex(), submitURL)
	require.NoError(t, err)
	_, err = h.orch.Run(ctx, h.user, submitURL, "ABC123xyz90", jobID)
	require.Error(t, err)

	snap, err := h.tracker.Get(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, snap.Failed)
	assert.Contains(t, snap.Error, "timed out")
}
