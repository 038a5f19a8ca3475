package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamscribe/internal/billing"
	"streamscribe/internal/extract"
	"streamscribe/internal/fallback"
	"streamscribe/internal/logger"
	"streamscribe/internal/progress"
	"streamscribe/internal/store"
	"streamscribe/internal/transcription"
	"streamscribe/internal/types"
)

// Video ids starting with this prefix short-circuit to a canned result so
// demo flows never spend upstream API credit.
const testVideoPrefix = "TEST"

// AudioArtifact is the temporary audio file of one run. extract.Result
// satisfies it.
type AudioArtifact interface {
	Path() string
	Size() int64
	Cleanup() error
}

// AudioSource acquires the audio track for a source URL.
type AudioSource interface {
	Audio(ctx context.Context, sourceURL string) (AudioArtifact, error)
}

// ExtractorSource adapts the concrete extractor to AudioSource.
func ExtractorSource(ex *extract.Extractor) AudioSource {
	return extractorSource{ex: ex}
}

type extractorSource struct{ ex *extract.Extractor }

func (s extractorSource) Audio(ctx context.Context, sourceURL string) (AudioArtifact, error) {
	res, err := s.ex.Audio(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Transcriber drives the upstream speech API.
type Transcriber interface {
	Upload(ctx context.Context, audioPath string) (string, error)
	Submit(ctx context.Context, uploadURL string) (string, error)
	PollUntilDone(ctx context.Context, jobID string, onPoll func(status string, attempt int)) (*transcription.Transcript, error)
}

// ResultCache is the shared short-lived result cache.
type ResultCache interface {
	Get(ctx context.Context, userID, normalizedURL string) (*types.TranscriptionRecord, bool, error)
	Put(ctx context.Context, userID, normalizedURL string, rec *types.TranscriptionRecord) error
}

// Outcome is what a submission check or run hands back to the API layer.
type Outcome struct {
	Record   *types.TranscriptionRecord `json:"record"`
	IsCached bool                       `json:"isCached"`
}

// Orchestrator turns one submitted URL into a persisted transcription.
type Orchestrator struct {
	Audio    AudioSource
	Upstream Transcriber
	Cache    ResultCache
	Progress progress.Tracker

	Transcriptions store.Transcriptions
	Ledger         store.Ledger
	Credits        store.Credits
	Users          store.Users

	CostPerMinute float64

	// Artificial latency of the demo short-circuit, so the UI still shows a
	// believable progress sequence.
	TestDelay time.Duration
}

// Check runs the cheap pre-flight for a submission: URL validation, result
// cache, dedup ledger. A non-nil Outcome means the caller already has the
// answer and no run is needed. Both checks here are advisory; the ledger's
// unique index remains the final arbiter inside Run.
func (o *Orchestrator) Check(ctx context.Context, user *types.User, rawURL string) (*Outcome, string, error) {
	videoID, err := extract.VideoID(rawURL)
	if err != nil {
		return nil, "", err
	}

	normalized := extract.NormalizeURL(rawURL)
	log := logger.New().WithField("component", "orchestrator").WithField("video_id", videoID)

	if rec, ok, err := o.Cache.Get(ctx, user.ID.Hex(), normalized); err != nil {
		log.WithError(err).Warn("result cache unavailable, continuing without it")
	} else if ok {
		log.Info("serving cached result")
		return &Outcome{Record: rec, IsCached: true}, videoID, nil
	}

	entry, err := o.Ledger.Lookup(ctx, user.ID, videoID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, "", err
	}
	if entry != nil {
		rec, err := o.Transcriptions.FindByID(ctx, user.ID, entry.TranscriptionID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				// ledger points at a record that is gone; let the run redo it
				return nil, videoID, nil
			}
			return nil, "", err
		}
		log.Info("serving previously processed result")
		return &Outcome{Record: rec, IsCached: true}, videoID, nil
	}

	return nil, videoID, nil
}

// Run executes the full pipeline for a submission that passed Check. The
// temporary audio artifact is removed on every exit path. On success the
// record, ledger entry, accounting entry, and cache entry are all written;
// a duplicate-key rejection from the ledger wins over this run's record.
func (o *Orchestrator) Run(ctx context.Context, user *types.User, rawURL, videoID, jobID string) (*types.TranscriptionRecord, error) {
	rec, err := o.run(ctx, user, rawURL, videoID, jobID)
	if err != nil {
		if perr := o.Progress.Fail(ctx, jobID, err); perr != nil {
			logger.New().WithJob(jobID).WithError(perr).Warn("progress fail update lost")
		}
		return nil, err
	}
	if perr := o.Progress.Complete(ctx, jobID, rec.ID.Hex()); perr != nil {
		logger.New().WithJob(jobID).WithError(perr).Warn("progress complete update lost")
	}
	return rec, nil
}

func (o *Orchestrator) run(ctx context.Context, user *types.User, rawURL, videoID, jobID string) (*types.TranscriptionRecord, error) {
	log := logger.New().WithJob(jobID).WithField("video_id", videoID)
	start := time.Now()

	if strings.HasPrefix(videoID, testVideoPrefix) {
		return o.runDemo(ctx, user, rawURL, videoID, jobID, start)
	}

	o.update(ctx, jobID, "Extracting audio")
	artifact, err := o.Audio.Audio(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := artifact.Cleanup(); cerr != nil {
			log.WithError(cerr).Warn("audio artifact cleanup failed")
		}
	}()

	o.update(ctx, jobID, "Uploading audio")
	handle, err := o.Upstream.Upload(ctx, artifact.Path())
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrUpstreamTranscription, err)
		o.recordFailure(ctx, user, rawURL, videoID, err)
		return nil, err
	}

	o.update(ctx, jobID, "Submitting transcription")
	upstreamJob, err := o.Upstream.Submit(ctx, handle)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrUpstreamTranscription, err)
		o.recordFailure(ctx, user, rawURL, videoID, err)
		return nil, err
	}

	tr, err := o.Upstream.PollUntilDone(ctx, upstreamJob, func(status string, attempt int) {
		o.update(ctx, jobID, fmt.Sprintf("Transcribing audio (%s, attempt %d)", status, attempt))
	})
	if err != nil {
		if errors.Is(err, types.ErrUpstreamTranscription) {
			o.recordFailure(ctx, user, rawURL, videoID, err)
		}
		return nil, err
	}

	rec := transcription.ToRecord(tr)
	o.update(ctx, jobID, "Generating insights")
	fallback.Apply(&rec)

	rec.UserID = user.ID
	rec.SourceURL = rawURL
	rec.VideoID = videoID
	rec.Status = types.StatusCompleted
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.CachedAt = now

	return o.persist(ctx, user, &rec, jobID, start, artifact.Size())
}

// runDemo returns a canned completed result after an artificial delay,
// exercising the same synthesis and persistence path as a real run.
func (o *Orchestrator) runDemo(ctx context.Context, user *types.User, rawURL, videoID, jobID string, start time.Time) (*types.TranscriptionRecord, error) {
	o.update(ctx, jobID, "Preparing demo transcription")
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(o.TestDelay):
	}

	rec := types.TranscriptionRecord{
		UserID:    user.ID,
		SourceURL: rawURL,
		VideoID:   videoID,
		Transcript: "This is a demonstration transcript produced without calling the speech API. " +
			"It exists so product demos stay free of upstream cost. " +
			"Every analytics block below is synthesized locally from this text.",
		Confidence:      0.95,
		DurationSeconds: 90,
		Language:        "en_us",
		Status:          types.StatusCompleted,
	}
	fallback.Apply(&rec)
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.CachedAt = now

	return o.persist(ctx, user, &rec, jobID, start, 0)
}

// persist writes the record, then the ledger entry, then accounting and the
// cache. Ordering matters: a ledger entry must never exist without its
// record, so the record goes first and is rolled back if the ledger's unique
// index rejects this run.
func (o *Orchestrator) persist(ctx context.Context, user *types.User, rec *types.TranscriptionRecord, jobID string, start time.Time, fileSize int64) (*types.TranscriptionRecord, error) {
	log := logger.New().WithJob(jobID).WithField("video_id", rec.VideoID)

	o.update(ctx, jobID, "Saving result")
	if err := o.Transcriptions.Insert(ctx, rec); err != nil {
		return nil, err
	}

	claim := &types.DedupEntry{
		UserID:          user.ID,
		VideoID:         rec.VideoID,
		SourceURL:       rec.SourceURL,
		TranscriptionID: rec.ID,
	}
	err := o.Ledger.Record(ctx, claim)
	if errors.Is(err, types.ErrDuplicateVideo) {
		winner, werr := o.claimedRecord(ctx, user, rec.VideoID)
		switch {
		case werr == nil:
			// a concurrent run won the unique index; discard ours and serve theirs
			if _, derr := o.Transcriptions.Delete(ctx, user.ID, rec.ID); derr != nil {
				log.WithError(derr).Warn("losing record not removed after duplicate")
			}
			return winner, nil
		case errors.Is(werr, types.ErrNotFound):
			// the existing claim points at a record that is gone, left behind
			// by an interrupted delete. Release it and claim again for this run.
			log.Warn("releasing stale dedup claim")
			err = o.Ledger.Forget(ctx, user.ID, rec.VideoID)
			if err == nil {
				err = o.Ledger.Record(ctx, claim)
			}
		default:
			err = werr
		}
	}
	if err != nil {
		if _, derr := o.Transcriptions.Delete(ctx, user.ID, rec.ID); derr != nil {
			log.WithError(derr).Warn("record not removed after ledger failure")
		}
		return nil, err
	}

	speakers := map[string]struct{}{}
	for _, u := range rec.Utterances {
		speakers[u.Speaker] = struct{}{}
	}
	usage := billing.ComputeCostFacts(billing.JobFacts{
		UserID:          user.ID,
		TranscriptionID: rec.ID,
		DurationSeconds: rec.DurationSeconds,
		Tier:            user.Tier,
		ElapsedMs:       time.Since(start).Milliseconds(),
		FileSizeBytes:   fileSize,
		Language:        rec.Language,
		SpeakerCount:    len(speakers),
		WordCount:       len(rec.Words),
	}, o.CostPerMinute, time.Now().UTC())
	if err := o.Credits.Insert(ctx, &usage); err != nil {
		log.WithError(err).Error("accounting entry not written")
	} else if err := o.Users.AddHoursUsed(ctx, user.ID, usage.DurationHours); err != nil {
		log.WithError(err).Warn("usage counter not bumped")
	}

	if err := o.Cache.Put(ctx, user.ID.Hex(), extract.NormalizeURL(rec.SourceURL), rec); err != nil {
		log.WithError(err).Warn("result not cached")
	}

	log.WithField("duration_s", rec.DurationSeconds).Info("transcription persisted")
	return rec, nil
}

// claimedRecord resolves the ledger claim for (user, video) to its record.
// ErrNotFound means the claim is stale: either the claim itself or the record
// it points at no longer exists.
func (o *Orchestrator) claimedRecord(ctx context.Context, user *types.User, videoID string) (*types.TranscriptionRecord, error) {
	entry, err := o.Ledger.Lookup(ctx, user.ID, videoID)
	if err != nil {
		return nil, err
	}
	return o.Transcriptions.FindByID(ctx, user.ID, entry.TranscriptionID)
}

// recordFailure keeps a failed attempt visible to the user. Failed records
// never get a ledger entry or an accounting charge, so resubmission works.
func (o *Orchestrator) recordFailure(ctx context.Context, user *types.User, rawURL, videoID string, cause error) {
	rec := types.TranscriptionRecord{
		UserID:    user.ID,
		SourceURL: rawURL,
		VideoID:   videoID,
		Status:    types.StatusFailed,
		CreatedAt: time.Now().UTC(),
	}
	log := logger.New().WithField("video_id", videoID).WithError(cause)
	if err := o.Transcriptions.Insert(ctx, &rec); err != nil {
		log.WithField("insert_error", err.Error()).Warn("failed attempt not recorded")
		return
	}
	log.Info("failed attempt recorded")
}

func (o *Orchestrator) update(ctx context.Context, jobID, message string) {
	if err := o.Progress.Update(ctx, jobID, message); err != nil {
		logger.New().WithJob(jobID).WithError(err).Warn("progress update lost")
	}
}
