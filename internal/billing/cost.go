package billing

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"streamscribe/internal/types"
)

// JobFacts is the raw input for one job's accounting entry.
type JobFacts struct {
	UserID          primitive.ObjectID
	TranscriptionID primitive.ObjectID
	DurationSeconds float64
	Tier            string
	ElapsedMs       int64
	FileSizeBytes   int64
	Language        string
	SpeakerCount    int
	WordCount       int
}

// ComputeCostFacts derives the full accounting entry from duration and tier.
// Every financial field is recomputed here so a stored record is internally
// consistent no matter what the caller holds. Subscriptions are flat-rate, so
// costToUser stays zero for all current tiers and profit is simply the
// negated upstream cost.
func ComputeCostFacts(f JobFacts, costPerMinute float64, now time.Time) types.CreditUsage {
	minutes := f.DurationSeconds / 60
	hours := minutes / 60
	upstream := minutes * costPerMinute

	costToUser := 0.0
	profit := costToUser - upstream

	margin := 0.0
	if costToUser > 0 {
		margin = profit / costToUser * 100
	}
	roi := 0.0
	if upstream > 0 {
		roi = profit / upstream * 100
	}

	return types.CreditUsage{
		UserID:          f.UserID,
		TranscriptionID: f.TranscriptionID,
		DurationSeconds: f.DurationSeconds,
		DurationMinutes: minutes,
		DurationHours:   hours,
		UpstreamCost:    upstream,
		Tier:            f.Tier,
		TierPrice:       types.TierPrice(f.Tier),
		CostToUser:      costToUser,
		Profit:          profit,
		ProfitMargin:    margin,
		ROI:             roi,
		ElapsedMs:       f.ElapsedMs,
		FileSizeBytes:   f.FileSizeBytes,
		Language:        f.Language,
		SpeakerCount:    f.SpeakerCount,
		WordCount:       f.WordCount,
		CreatedAt:       now,
	}
}
