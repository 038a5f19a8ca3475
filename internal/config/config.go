package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything read from the environment. main loads .env via
// godotenv before calling Load, so local runs and deployed runs read the
// same keys.
type Config struct {
	ListenAddr string

	MongoURI  string
	MongoDB   string
	RedisAddr string

	TranscribeURL string
	TranscribeKey string

	ExtractorBin string
	TempDir      string

	// Poll budget for the upstream transcription job. Interval is the base
	// delay; the poller backs off exponentially from it up to MaxInterval.
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollMaxAttempts int

	CacheTTL    time.Duration
	ProgressTTL time.Duration

	// Upstream speech API price per audio minute, USD.
	CostPerMinute float64
}

// Load reads configuration from the environment, applying defaults that make
// a local run work out of the box.
func Load() Config {
	return Config{
		ListenAddr:      ":" + envOr("PORT", "8080"),
		MongoURI:        envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         envOr("MONGO_DB", "streamscribe"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		TranscribeURL:   envOr("TRANSCRIBE_URL", "https://api.assemblyai.com"),
		TranscribeKey:   os.Getenv("TRANSCRIBE_API_KEY"),
		ExtractorBin:    envOr("EXTRACTOR_BIN", "yt-dlp"),
		TempDir:         envOr("AUDIO_TEMP_DIR", os.TempDir()),
		PollInterval:    envDuration("POLL_INTERVAL", 5*time.Second),
		PollMaxInterval: envDuration("POLL_MAX_INTERVAL", 30*time.Second),
		PollMaxAttempts: envInt("POLL_MAX_ATTEMPTS", 60),
		CacheTTL:        envDuration("RESULT_CACHE_TTL", 24*time.Hour),
		ProgressTTL:     envDuration("PROGRESS_TTL", time.Hour),
		CostPerMinute:   envFloat("COST_PER_MINUTE", 0.0001),
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
