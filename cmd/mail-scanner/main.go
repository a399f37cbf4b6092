// cmd/mail-scanner/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rfp-pipeline/internal/common/aws"
	"rfp-pipeline/internal/common/config"
	"rfp-pipeline/internal/common/database"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/observability"
	"rfp-pipeline/internal/ingest"
	"rfp-pipeline/internal/mailbox"
	"rfp-pipeline/internal/matcher"
	"rfp-pipeline/internal/queue"
	"rfp-pipeline/internal/storage"
	"rfp-pipeline/internal/store"
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

	zapLog.Info("Starting mail scanner...")

	obs := observability.New("mail-scanner")
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

	// --- Init attachment storage (S3 when configured, local otherwise) ---
	var objectClient storage.ObjectClient
	if cfg.Storage.S3.Enabled {
		s3Client, err := aws.NewS3Client(ctx, cfg.Storage.S3.Region, cfg.Storage.S3.Bucket)
		if err != nil {
			zapLog.Warn("S3 unavailable, attachments will use local storage", zap.Error(err))
		} else {
			objectClient = s3Client
			zapLog.Info("S3 attachment storage enabled", zap.String("bucket", cfg.Storage.S3.Bucket))
		}
	}
	attachmentStore := storage.NewStore(objectClient, cfg.Storage.S3.Region, cfg.Storage.LocalDir, log)

	// --- Init mailbox connection with retry ---
	imapClient := mailbox.NewIMAPClient(cfg.Mailbox, log)
	err = retryWithBackoff(func() error {
		return imapClient.Connect(ctx)
	}, 10, 2*time.Second, zapLog, "Mailbox connection")
	if err != nil {
		zapLog.Fatal("mailbox connection failed after retries", zap.Error(err))
	}
	defer imapClient.Close()

	// --- Wire the pipeline ---
	links := store.NewCorrespondenceStore(pg.DB, log)
	proposals := store.NewProposalStore(pg.DB, log)
	publisher := queue.NewPublisher(rdb.Client, log)
	chain := matcher.NewChain(links, log)
	ingestor := ingest.NewIngestor(attachmentStore, proposals, publisher, cfg.Queue.ParseQueue, log)

	scanner := mailbox.NewScanner(imapClient, chain, ingestor, mailbox.ScannerConfig{
		Lookback:           time.Duration(cfg.Scanner.LookbackDays) * 24 * time.Hour,
		BatchSize:          cfg.Scanner.BatchSize,
		PollInterval:       time.Duration(cfg.Scanner.PollSeconds) * time.Second,
		MaxMatchesPerCycle: cfg.Scanner.MaxMatchesPerCycle,
	}, log)

	go scanner.Run(ctx)
	zapLog.Info("Mailbox scanner running",
		zap.String("folder", cfg.Mailbox.Folder),
		zap.Int("pollSeconds", cfg.Scanner.PollSeconds),
	)

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
			if !imapClient.Usable() {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "mailbox disconnected",
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":   "ready",
				"scanning": scanner.Scanning(),
				"time":     time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scanner...")
	cancel()

	// Let an in-flight scan finish its message before the connection drops.
	deadline := time.Now().Add(30 * time.Second)
	for scanner.Scanning() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	zapLog.Info("Mail scanner stopped gracefully")
}
