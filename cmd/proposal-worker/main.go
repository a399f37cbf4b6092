// cmd/proposal-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rfp-pipeline/internal/common/config"
	"rfp-pipeline/internal/common/database"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/observability"
	"rfp-pipeline/internal/extract"
	"rfp-pipeline/internal/queue"
	"rfp-pipeline/internal/scoring"
	"rfp-pipeline/internal/store"
	parseproposal "rfp-pipeline/internal/workers/proposal/parse-proposal"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting proposal worker...")

	obs := observability.New("proposal-worker")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	proposals := store.NewProposalStore(pg.DB, log)
	chatClient := extract.NewChatClient(cfg.Collaborators, log)
	ranker := scoring.NewRanker(proposals, scoring.DefaultWeights, log)

	var wg sync.WaitGroup

	workerCfg, ok := cfg.Workers[parseproposal.TaskType]
	if !ok || !workerCfg.Enabled {
		zapLog.Warn("parse-proposal worker is disabled in config")
	} else {
		handler := parseproposal.NewHandler(
			parseproposal.NewConfig(workerCfg),
			proposals,
			chatClient,
			chatClient,
			obs,
			log,
		)
		consumer := queue.NewConsumer(rdb.Client, queue.ConsumerConfig{
			Queue:       cfg.Queue.ParseQueue,
			Workers:     cfg.Queue.Consumers,
			MaxAttempts: cfg.Queue.MaxAttempts,
			BackoffBase: time.Duration(cfg.Queue.BackoffBaseMS) * time.Millisecond,
		}, handler, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
		zapLog.Info("parse-proposal consumer running",
			zap.String("queue", cfg.Queue.ParseQueue),
			zap.Int("workers", cfg.Queue.Consumers),
		)
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := rdb.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "redis unavailable",
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/rankings", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			rfpID := r.URL.Query().Get("rfp_id")
			if rfpID == "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "rfp_id query parameter is required",
				})
				return
			}
			ranked, err := ranker.Rank(r.Context(), rfpID)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "failed to rank proposals",
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rfpId":    rfpID,
				"rankings": ranked,
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8081")
		if err := http.ListenAndServe(":8081", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining consumers...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zapLog.Info("Proposal worker stopped gracefully")
	case <-time.After(30 * time.Second):
		zapLog.Warn("Shutdown timed out, exiting")
	}
}
