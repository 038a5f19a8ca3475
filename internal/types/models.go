package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription tiers. Pricing is flat-rate per tier; per-minute upstream cost
// is tracked for accounting but not billed to the user.
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// TierPrice returns the flat monthly price for a tier, in USD.
func TierPrice(tier string) float64 {
	switch tier {
	case TierStandard:
		return 9.99
	case TierPremium:
		return 19.99
	default:
		return 0
	}
}

// Transcription processing statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Word is one word-level entry of a transcript with timing in milliseconds.
type Word struct {
	Text       string  `json:"text" bson:"text"`
	StartMs    int     `json:"start" bson:"start"`
	EndMs      int     `json:"end" bson:"end"`
	Confidence float64 `json:"confidence" bson:"confidence"`
	Speaker    string  `json:"speaker,omitempty" bson:"speaker,omitempty"`
}

// TimeRange is a start/end pair in milliseconds.
type TimeRange struct {
	StartMs int `json:"start" bson:"start"`
	EndMs   int `json:"end" bson:"end"`
}

// Highlight is a key phrase with its occurrence count and rank.
type Highlight struct {
	Text       string      `json:"text" bson:"text"`
	Count      int         `json:"count" bson:"count"`
	Rank       int         `json:"rank" bson:"rank"`
	Timestamps []TimeRange `json:"timestamps" bson:"timestamps"`
}

// SentimentSpan is a sentiment-tagged span of the transcript.
type SentimentSpan struct {
	Text       string  `json:"text" bson:"text"`
	Sentiment  string  `json:"sentiment" bson:"sentiment"`
	Confidence float64 `json:"confidence" bson:"confidence"`
	StartMs    int     `json:"start" bson:"start"`
	EndMs      int     `json:"end" bson:"end"`
}

// Chapter is an auto-generated chapter summary over a time range.
type Chapter struct {
	Headline string `json:"headline" bson:"headline"`
	Summary  string `json:"summary" bson:"summary"`
	StartMs  int    `json:"start" bson:"start"`
	EndMs    int    `json:"end" bson:"end"`
}

// Entity is a detected named entity.
type Entity struct {
	Text       string `json:"text" bson:"text"`
	EntityType string `json:"entityType" bson:"entityType"`
	StartMs    int    `json:"start" bson:"start"`
	EndMs      int    `json:"end" bson:"end"`
}

// SpeakerSpan is one speaker's contiguous utterance.
type SpeakerSpan struct {
	Speaker string `json:"speaker" bson:"speaker"`
	Text    string `json:"text" bson:"text"`
	StartMs int    `json:"start" bson:"start"`
	EndMs   int    `json:"end" bson:"end"`
}

// TranscriptionRecord is one processed video for one user. Records are
// immutable after creation; the only mutation is owner-initiated deletion.
type TranscriptionRecord struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"userId" bson:"userId"`
	SourceURL       string             `json:"sourceUrl" bson:"sourceUrl"`
	VideoID         string             `json:"videoId" bson:"videoId"`
	Transcript      string             `json:"transcript" bson:"transcript"`
	Confidence      float64            `json:"confidence" bson:"confidence"`
	DurationSeconds float64            `json:"durationSeconds" bson:"durationSeconds"`
	Language        string             `json:"language,omitempty" bson:"language,omitempty"`
	Words           []Word             `json:"words,omitempty" bson:"words,omitempty"`
	Highlights      []Highlight        `json:"highlights,omitempty" bson:"highlights,omitempty"`
	Sentiments      []SentimentSpan    `json:"sentiments,omitempty" bson:"sentiments,omitempty"`
	Chapters        []Chapter          `json:"chapters,omitempty" bson:"chapters,omitempty"`
	Entities        []Entity           `json:"entities,omitempty" bson:"entities,omitempty"`
	Utterances      []SpeakerSpan      `json:"utterances,omitempty" bson:"utterances,omitempty"`
	Status          string             `json:"status" bson:"status"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	CachedAt        time.Time          `json:"cachedAt,omitempty" bson:"cachedAt,omitempty"`
}

// DedupEntry records "user U already processed video V". Unique on
// (userId, videoId) via a compound index; the index is the final arbiter
// against double-processing, the orchestrator pre-check is advisory.
type DedupEntry struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"userId" bson:"userId"`
	VideoID         string             `json:"videoId" bson:"videoId"`
	SourceURL       string             `json:"sourceUrl" bson:"sourceUrl"`
	TranscriptionID primitive.ObjectID `json:"transcriptionId" bson:"transcriptionId"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
}

// CreditUsage is the accounting entry for one processed job. Cost fields are
// derived from duration and tier at write time, never caller-supplied.
type CreditUsage struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"userId" bson:"userId"`
	TranscriptionID primitive.ObjectID `json:"transcriptionId" bson:"transcriptionId"`
	DurationSeconds float64            `json:"durationSeconds" bson:"durationSeconds"`
	DurationMinutes float64            `json:"durationMinutes" bson:"durationMinutes"`
	DurationHours   float64            `json:"durationHours" bson:"durationHours"`
	UpstreamCost    float64            `json:"upstreamCost" bson:"upstreamCost"`
	Tier            string             `json:"tier" bson:"tier"`
	TierPrice       float64            `json:"tierPrice" bson:"tierPrice"`
	CostToUser      float64            `json:"costToUser" bson:"costToUser"`
	Profit          float64            `json:"profit" bson:"profit"`
	ProfitMargin    float64            `json:"profitMargin" bson:"profitMargin"`
	ROI             float64            `json:"roi" bson:"roi"`
	ElapsedMs       int64              `json:"elapsedMs" bson:"elapsedMs"`
	FileSizeBytes   int64              `json:"fileSizeBytes" bson:"fileSizeBytes"`
	Language        string             `json:"language,omitempty" bson:"language,omitempty"`
	SpeakerCount    int                `json:"speakerCount" bson:"speakerCount"`
	WordCount       int                `json:"wordCount" bson:"wordCount"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the minimal account record the API needs: identity, tier, role,
// cumulative usage. Authentication itself lives with an external provider;
// the API only resolves bearer tokens to users.
type User struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Email      string             `json:"email" bson:"email"`
	Token      string             `json:"-" bson:"token"`
	Tier       string             `json:"tier" bson:"tier"`
	Role       string             `json:"role" bson:"role"`
	HoursUsed  float64            `json:"hoursUsed" bson:"hoursUsed"`
	NotesCount int                `json:"notesCount" bson:"notesCount"`
	Exports    int                `json:"exports" bson:"exports"`
	LastActive time.Time          `json:"lastActive,omitempty" bson:"lastActive,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}
