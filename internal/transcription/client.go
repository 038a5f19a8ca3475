package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"streamscribe/internal/logger"
	"streamscribe/internal/types"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Client drives the upstream speech-recognition API: upload raw audio bytes,
// submit a transcription job, poll it to a terminal state.
type Client struct {
	BaseURL string
	APIKey  string

	// Poll budget. Interval is the base delay, doubled each attempt up to
	// MaxInterval; MaxAttempts bounds the loop.
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollMaxAttempts int
}

func NewClient(baseURL, apiKey string, interval, maxInterval time.Duration, maxAttempts int) *Client {
	return &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		APIKey:          apiKey,
		PollInterval:    interval,
		PollMaxInterval: maxInterval,
		PollMaxAttempts: maxAttempts,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL          string `json:"audio_url"`
	SpeakerLabels     bool   `json:"speaker_labels"`
	Punctuate         bool   `json:"punctuate"`
	AutoHighlights    bool   `json:"auto_highlights"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
	AutoChapters      bool   `json:"auto_chapters"`
	EntityDetection   bool   `json:"entity_detection"`
}

// Transcript mirrors the upstream job payload. Status moves through
// queued/processing to completed or error.
type Transcript struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	AudioDuration float64 `json:"audio_duration"`
	LanguageCode  string  `json:"language_code"`
	Error         string  `json:"error,omitempty"`

	Words []struct {
		Text       string  `json:"text"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Confidence float64 `json:"confidence"`
		Speaker    string  `json:"speaker"`
	} `json:"words"`

	AutoHighlightsResult struct {
		Results []struct {
			Text       string `json:"text"`
			Count      int    `json:"count"`
			Rank       int    `json:"rank"`
			Timestamps []struct {
				Start int `json:"start"`
				End   int `json:"end"`
			} `json:"timestamps"`
		} `json:"results"`
	} `json:"auto_highlights_result"`

	SentimentAnalysisResults []struct {
		Text       string  `json:"text"`
		Sentiment  string  `json:"sentiment"`
		Confidence float64 `json:"confidence"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
	} `json:"sentiment_analysis_results"`

	Chapters []struct {
		Headline string `json:"headline"`
		Summary  string `json:"summary"`
		Start    int    `json:"start"`
		End      int    `json:"end"`
	} `json:"chapters"`

	Entities []struct {
		Text       string `json:"text"`
		EntityType string `json:"entity_type"`
		Start      int    `json:"start"`
		End        int    `json:"end"`
	} `json:"entities"`

	Utterances []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		Start   int    `json:"start"`
		End     int    `json:"end"`
	} `json:"utterances"`
}

// Upload streams the audio file to the upstream upload endpoint and returns
// the opaque handle the submit call needs.
func (c *Client) Upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("upload decode: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload returned no handle")
	}
	return out.UploadURL, nil
}

// Submit creates a transcription job for an uploaded audio handle with the
// full analytics feature set enabled.
func (c *Client) Submit(ctx context.Context, uploadURL string) (string, error) {
	payload, _ := json.Marshal(submitRequest{
		AudioURL:          uploadURL,
		SpeakerLabels:     true,
		Punctuate:         true,
		AutoHighlights:    true,
		SentimentAnalysis: true,
		AutoChapters:      true,
		EntityDetection:   true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var tr Transcript
	if err := doJSON(ctx, req, &tr); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if tr.ID == "" {
		return "", fmt.Errorf("submit returned no job id")
	}
	return tr.ID, nil
}

// Poll fetches the current job state once.
func (c *Client) Poll(ctx context.Context, jobID string) (*Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.APIKey)

	var tr Transcript
	if err := doJSON(ctx, req, &tr); err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return &tr, nil
}

// PollUntilDone polls the job within the attempt budget, backing off
// exponentially from PollInterval to PollMaxInterval. Terminal states are
// completed and error; exhausting the budget is ErrTranscriptionTimeout.
// Progress callbacks fire after each non-terminal poll.
func (c *Client) PollUntilDone(ctx context.Context, jobID string, onPoll func(status string, attempt int)) (*Transcript, error) {
	log := logger.New().WithField("component", "transcription").WithField("upstream_job", jobID)

	delay := c.PollInterval
	for attempt := 1; attempt <= c.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		tr, err := c.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Warn("poll attempt failed")
			continue
		}

		switch tr.Status {
		case "completed":
			log.WithField("attempts", attempt).Info("transcription completed")
			return tr, nil
		case "error":
			return nil, fmt.Errorf("%w: %s", types.ErrUpstreamTranscription, tr.Error)
		}

		if onPoll != nil {
			onPoll(tr.Status, attempt)
		}
		delay *= 2
		if delay > c.PollMaxInterval {
			delay = c.PollMaxInterval
		}
	}
	return nil, types.ErrTranscriptionTimeout
}

// ToRecord maps a completed upstream payload onto a TranscriptionRecord.
// Analytics blocks the upstream left empty stay empty here; fallback
// synthesis is the orchestrator's call.
func ToRecord(tr *Transcript) types.TranscriptionRecord {
	rec := types.TranscriptionRecord{
		Transcript:      tr.Text,
		Confidence:      tr.Confidence,
		DurationSeconds: tr.AudioDuration,
		Language:        tr.LanguageCode,
	}
	for _, w := range tr.Words {
		rec.Words = append(rec.Words, types.Word{
			Text: w.Text, StartMs: w.Start, EndMs: w.End,
			Confidence: w.Confidence, Speaker: w.Speaker,
		})
	}
	for _, h := range tr.AutoHighlightsResult.Results {
		hl := types.Highlight{Text: h.Text, Count: h.Count, Rank: h.Rank}
		for _, ts := range h.Timestamps {
			hl.Timestamps = append(hl.Timestamps, types.TimeRange{StartMs: ts.Start, EndMs: ts.End})
		}
		rec.Highlights = append(rec.Highlights, hl)
	}
	for _, s := range tr.SentimentAnalysisResults {
		rec.Sentiments = append(rec.Sentiments, types.SentimentSpan{
			Text: s.Text, Sentiment: strings.ToLower(s.Sentiment),
			Confidence: s.Confidence, StartMs: s.Start, EndMs: s.End,
		})
	}
	for _, ch := range tr.Chapters {
		rec.Chapters = append(rec.Chapters, types.Chapter{
			Headline: ch.Headline, Summary: ch.Summary, StartMs: ch.Start, EndMs: ch.End,
		})
	}
	for _, e := range tr.Entities {
		rec.Entities = append(rec.Entities, types.Entity{
			Text: e.Text, EntityType: e.EntityType, StartMs: e.Start, EndMs: e.End,
		})
	}
	for _, u := range tr.Utterances {
		rec.Utterances = append(rec.Utterances, types.SpeakerSpan{
			Speaker: u.Speaker, Text: u.Text, StartMs: u.Start, EndMs: u.End,
		})
	}
	return rec
}

// doJSON performs the request with exponential-backoff retry on transport
// and 5xx failures, decoding the response into target.
func doJSON(ctx context.Context, req *http.Request, target interface{}) error {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(20*time.Second)), ctx)

	var bodyBytes []byte
	if req.Body != nil && req.GetBody != nil {
		b, _ := io.ReadAll(req.Body)
		bodyBytes = b
	}

	var lastErr error
	op := func() error {
		attempt := req.Clone(ctx)
		if bodyBytes != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		resp, err := httpClient.Do(attempt)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("request rejected: status=%d body=%s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
