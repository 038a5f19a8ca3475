package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscribe/internal/types"
)

const sample = "The quick brown foxes jumped over lazy dogs near the river. " +
	"Those foxes kept jumping through the water all afternoon! " +
	"Eventually the foxes rested beside the river bank. " +
	"Short. " +
	"A fourth long sentence that should never appear in the output."

func TestHighlightsTopFiveByFrequency(t *testing.T) {
	hs := Highlights(sample)
	require.NotEmpty(t, hs)
	assert.LessOrEqual(t, len(hs), 5)

	// "foxes" appears three times, "river" twice
	assert.Equal(t, "foxes", hs[0].Text)
	assert.Equal(t, 3, hs[0].Count)
	assert.Equal(t, "river", hs[1].Text)
	assert.Equal(t, 2, hs[1].Count)

	for i, h := range hs {
		assert.Equal(t, i+1, h.Rank)
		require.Len(t, h.Timestamps, 1)
		assert.Equal(t, 0, h.Timestamps[0].StartMs)
		assert.Equal(t, 0, h.Timestamps[0].EndMs)
	}
}

func TestHighlightsSkipShortWords(t *testing.T) {
	hs := Highlights("a an the to go it is of on in at")
	assert.Empty(t, hs)
}

func TestSentimentsFirstThreeSentences(t *testing.T) {
	ss := Sentiments(sample)
	require.Len(t, ss, 3)
	for i, s := range ss {
		assert.Equal(t, "neutral", s.Sentiment)
		assert.Equal(t, 0.8, s.Confidence)
		assert.Equal(t, i*30000, s.StartMs)
		assert.Equal(t, (i+1)*30000, s.EndMs)
		assert.GreaterOrEqual(t, len(s.Text), 10)
	}
	// "Short." is under ten characters and must not be selected
	for _, s := range ss {
		assert.NotEqual(t, "Short", s.Text)
	}
}

func TestChaptersMirrorSentenceSelection(t *testing.T) {
	cs := Chapters(sample)
	ss := Sentiments(sample)
	require.Len(t, cs, len(ss))
	for i, c := range cs {
		assert.Equal(t, "Section "+string(rune('1'+i)), c.Headline)
		assert.Equal(t, ss[i].Text, c.Summary)
		assert.Equal(t, ss[i].StartMs, c.StartMs)
		assert.Equal(t, ss[i].EndMs, c.EndMs)
		assert.Less(t, c.StartMs, c.EndMs)
	}
}

func TestSynthesisIsIdempotent(t *testing.T) {
	first := Highlights(sample)
	second := Highlights(sample)
	assert.Equal(t, first, second)

	assert.Equal(t, Sentiments(sample), Sentiments(sample))
	assert.Equal(t, Chapters(sample), Chapters(sample))
}

func TestApplyFillsOnlyEmptyBlocks(t *testing.T) {
	upstream := []types.Highlight{{Text: "upstream", Count: 9, Rank: 1}}
	rec := types.TranscriptionRecord{
		Transcript: sample,
		Highlights: upstream,
	}
	Apply(&rec)

	assert.Equal(t, upstream, rec.Highlights)
	assert.NotEmpty(t, rec.Sentiments)
	assert.NotEmpty(t, rec.Chapters)
}

func TestApplyNoTranscriptNoSynthesis(t *testing.T) {
	rec := types.TranscriptionRecord{}
	Apply(&rec)
	assert.Empty(t, rec.Highlights)
	assert.Empty(t, rec.Sentiments)
	assert.Empty(t, rec.Chapters)
}

func TestSentencesShorterThanTenDropped(t *testing.T) {
	ss := Sentiments(strings.Repeat("tiny. ", 10))
	assert.Empty(t, ss)
}
