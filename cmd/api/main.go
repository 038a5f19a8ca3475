package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamscribe/internal/cache"
	"streamscribe/internal/config"
	"streamscribe/internal/extract"
	"streamscribe/internal/logger"
	"streamscribe/internal/orchestrator"
	"streamscribe/internal/progress"
	"streamscribe/internal/server"
	"streamscribe/internal/store"
	"streamscribe/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "streamscribe").Info("starting service")

	cfg := config.Load()

	ctx, err := run(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("service terminated")
	}
	<-ctx.Done()
}

func run(cfg config.Config, log *logger.Logger) (context.Context, error) {
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	if err := mongoClient.Ping(connectCtx, nil); err != nil {
		return nil, err
	}
	db := mongoClient.Database(cfg.MongoDB)
	if err := store.EnsureIndexes(connectCtx, db); err != nil {
		return nil, err
	}
	st := store.New(db)
	log.WithField("database", cfg.MongoDB).Info("mongo connected")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(connectCtx).Err(); err != nil {
		return nil, err
	}
	log.WithField("addr", cfg.RedisAddr).Info("redis connected")

	results := cache.NewResults(rdb, cfg.CacheTTL)
	tracker := progress.NewRedisTracker(rdb, cfg.ProgressTTL)

	orch := &orchestrator.Orchestrator{
		Audio: orchestrator.ExtractorSource(extract.New(cfg.ExtractorBin, cfg.TempDir)),
		Upstream: transcription.NewClient(cfg.TranscribeURL, cfg.TranscribeKey,
			cfg.PollInterval, cfg.PollMaxInterval, cfg.PollMaxAttempts),
		Cache:          results,
		Progress:       tracker,
		Transcriptions: st.Transcriptions,
		Ledger:         st.Ledger,
		Credits:        st.Credits,
		Users:          st.Users,
		CostPerMinute:  cfg.CostPerMinute,
		TestDelay:      5 * time.Second,
	}

	// Background runs stop when shutdown begins, not when the submitting
	// request ends.
	jobCtx, stopJobs := context.WithCancel(context.Background())

	api := &server.Server{
		Pipeline:       orch,
		Progress:       tracker,
		Transcriptions: st.Transcriptions,
		Ledger:         st.Ledger,
		Credits:        st.Credits,
		Users:          st.Users,
		Cache:          results,
		JobCtx:         jobCtx,
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	done, stop := context.WithCancel(context.Background())
	go func() {
		defer stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.WithField("signal", s.String()).Info("shutting down")

		stopJobs()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown incomplete")
		}
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("redis close failed")
		}
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			log.WithError(err).Warn("mongo disconnect failed")
		}
	}()

	return done, nil
}
