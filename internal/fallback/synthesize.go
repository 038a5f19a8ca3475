package fallback

import (
	"fmt"
	"sort"
	"strings"

	"streamscribe/internal/types"
)

// Approximate analytics derived from transcript text alone, used when the
// upstream API returns empty highlight/sentiment/chapter blocks so the result
// never renders blank sections. Timing here is synthetic: highlight ranges
// are zero-length placeholders and sentences get fixed 30-second slots.

const (
	maxHighlights  = 5
	maxSentences   = 3
	minWordLen     = 4
	minSentenceLen = 10
	slotMs         = 30000
)

// Highlights tokenizes the transcript, counts words longer than three
// characters, and returns the top five by frequency, ranked from 1.
func Highlights(transcript string) []types.Highlight {
	counts := map[string]int{}
	for _, w := range strings.Fields(transcript) {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]"))
		if len(w) < minWordLen {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	// frequency desc, alphabetical tie-break keeps output deterministic
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxHighlights {
		words = words[:maxHighlights]
	}

	out := make([]types.Highlight, 0, len(words))
	for i, w := range words {
		out = append(out, types.Highlight{
			Text:       w,
			Count:      counts[w],
			Rank:       i + 1,
			Timestamps: []types.TimeRange{{StartMs: 0, EndMs: 0}},
		})
	}
	return out
}

// Sentiments labels the first three usable sentences neutral with fixed 0.8
// confidence, each in a sequential 30-second slot starting at zero.
func Sentiments(transcript string) []types.SentimentSpan {
	out := []types.SentimentSpan{}
	for i, s := range leadingSentences(transcript) {
		out = append(out, types.SentimentSpan{
			Text:       s,
			Sentiment:  "neutral",
			Confidence: 0.8,
			StartMs:    i * slotMs,
			EndMs:      (i + 1) * slotMs,
		})
	}
	return out
}

// Chapters turns the same leading sentences into chapters headlined
// "Section N", with the same synthetic slots as Sentiments.
func Chapters(transcript string) []types.Chapter {
	out := []types.Chapter{}
	for i, s := range leadingSentences(transcript) {
		out = append(out, types.Chapter{
			Headline: fmt.Sprintf("Section %d", i+1),
			Summary:  s,
			StartMs:  i * slotMs,
			EndMs:    (i + 1) * slotMs,
		})
	}
	return out
}

// Apply fills each empty analytics block of a completed record in place.
// Blocks the upstream API did populate are left alone.
func Apply(rec *types.TranscriptionRecord) {
	if rec.Transcript == "" {
		return
	}
	if len(rec.Highlights) == 0 {
		rec.Highlights = Highlights(rec.Transcript)
	}
	if len(rec.Sentiments) == 0 {
		rec.Sentiments = Sentiments(rec.Transcript)
	}
	if len(rec.Chapters) == 0 {
		rec.Chapters = Chapters(rec.Transcript)
	}
}

// leadingSentences splits on sentence punctuation, drops fragments under ten
// characters, and keeps at most the first three.
func leadingSentences(transcript string) []string {
	split := strings.FieldsFunc(transcript, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := []string{}
	for _, s := range split {
		s = strings.TrimSpace(s)
		if len(s) < minSentenceLen {
			continue
		}
		out = append(out, s)
		if len(out) == maxSentences {
			break
		}
	}
	return out
}
