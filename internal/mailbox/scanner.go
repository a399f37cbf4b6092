// internal/mailbox/scanner.go
package mailbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/metrics"
	"rfp-pipeline/internal/models"
)

// Matcher resolves an inbound email to the correspondence link it answers.
// Returns the link and the name of the strategy that matched, or
// commonerrors.ErrNoMatch when nothing did.
type Matcher interface {
	Match(ctx context.Context, email *ParsedEmail) (*models.CorrespondenceLink, string, error)
}

// Ingestor persists a matched email and hands it to the parse queue. It
// returns the id of the created proposal.
type Ingestor interface {
	IngestMatched(ctx context.Context, link *models.CorrespondenceLink, email *ParsedEmail, rawSource string) (string, error)
}

type ScannerConfig struct {
	Lookback           time.Duration
	BatchSize          int
	PollInterval       time.Duration
	MaxMatchesPerCycle int
}

// Scanner drives scan cycles over the mailbox. Cycles are single-flight:
// a trigger arriving while a scan is running is dropped, not queued, since
// the running scan already observes the state the trigger announced.
type Scanner struct {
	client   Client
	matcher  Matcher
	ingestor Ingestor
	cfg      ScannerConfig
	log      logger.Logger
	scanning atomic.Bool
}

func NewScanner(client Client, matcher Matcher, ingestor Ingestor, cfg ScannerConfig, log logger.Logger) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxMatchesPerCycle <= 0 {
		cfg.MaxMatchesPerCycle = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Scanner{
		client:   client,
		matcher:  matcher,
		ingestor: ingestor,
		cfg:      cfg,
		log:      log,
	}
}

// Scanning reports whether a scan cycle is currently in progress.
func (s *Scanner) Scanning() bool {
	return s.scanning.Load()
}

// Scan runs one cycle: search unseen mail within the lookback window,
// match and ingest up to MaxMatchesPerCycle messages, mark only durably
// ingested messages seen. Safe to call from any trigger; concurrent calls
// return immediately.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		s.log.Debug("Scan already in progress, skipping trigger", nil)
		metrics.ScanCycles.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.scanning.Store(false)

	release := s.client.Lock()
	defer release()

	started := time.Now()
	since := time.Now().Add(-s.cfg.Lookback)

	uids, err := s.client.SearchUnseenSince(ctx, since)
	if err != nil {
		metrics.ScanCycles.WithLabelValues("failed").Inc()
		return commonerrors.NewTransientConnectivityError("mailbox search", err)
	}

	examined := 0
	ingested := 0
	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		if examined >= s.cfg.BatchSize {
			s.log.Debug("Batch limit reached, deferring remaining messages", map[string]interface{}{
				"remaining": len(uids) - examined,
			})
			break
		}
		examined++
		metrics.MessagesExamined.Inc()

		if s.processMessage(ctx, uid) {
			ingested++
		}
		if ingested >= s.cfg.MaxMatchesPerCycle {
			break
		}
	}

	metrics.ScanCycles.WithLabelValues("completed").Inc()
	s.log.Info("Scan cycle completed", map[string]interface{}{
		"unseen":   len(uids),
		"examined": examined,
		"ingested": ingested,
		"duration": time.Since(started).String(),
	})
	return nil
}

// processMessage handles one message end to end. Failures are contained
// here: a bad message is logged and skipped, never aborting the cycle.
// Returns true only when the message was durably ingested.
func (s *Scanner) processMessage(ctx context.Context, uid uint32) bool {
	source, err := s.client.FetchSource(ctx, uid)
	if err != nil {
		s.log.Error("Failed to fetch message, skipping", map[string]interface{}{
			"uid":   uid,
			"error": err.Error(),
		})
		return false
	}

	email, err := ParseMessage(source)
	if err != nil {
		s.log.Warn("Malformed message skipped", map[string]interface{}{
			"uid":   uid,
			"error": err.Error(),
		})
		return false
	}

	link, strategy, err := s.matcher.Match(ctx, email)
	if err != nil {
		if errors.Is(err, commonerrors.ErrNoMatch) {
			// Leave unseen so later correspondence rows can claim it.
			s.log.Debug("No correspondence match for message", map[string]interface{}{
				"uid":        uid,
				"message_id": email.MessageID,
				"from":       email.From,
			})
		} else {
			s.log.Error("Match lookup failed, message left unseen", map[string]interface{}{
				"uid":   uid,
				"error": err.Error(),
			})
		}
		return false
	}

	proposalID, err := s.ingestor.IngestMatched(ctx, link, email, string(source))
	if err != nil {
		// Not marked seen, so the next cycle retries it.
		s.log.Error("Failed to ingest matched message", map[string]interface{}{
			"uid":    uid,
			"rfp_id": link.RFPID,
			"error":  err.Error(),
		})
		return false
	}

	metrics.MessagesMatched.WithLabelValues(strategy).Inc()
	s.log.Info("Proposal ingested from mailbox", map[string]interface{}{
		"uid":         uid,
		"rfp_id":      link.RFPID,
		"vendor_id":   link.VendorID,
		"proposal_id": proposalID,
		"strategy":    strategy,
	})

	if err := s.client.MarkSeen(ctx, uid); err != nil {
		// The proposal exists; a re-scan will re-match and create a
		// duplicate row, which the queue job id still dedupes downstream.
		s.log.Warn("Failed to mark ingested message seen", map[string]interface{}{
			"uid":   uid,
			"error": err.Error(),
		})
	}
	return true
}

// Run scans immediately, then loops on the two triggers: a mailbox push
// notification or the poll interval elapsing, whichever comes first. Runs
// until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	if err := s.Scan(ctx); err != nil {
		s.log.Error("Initial scan failed", map[string]interface{}{"error": err.Error()})
	}

	for {
		s.client.WaitUpdate(ctx, s.cfg.PollInterval)
		if ctx.Err() != nil {
			return
		}

		if !s.client.Usable() {
			if err := s.client.Connect(ctx); err != nil {
				s.log.Error("Mailbox reconnect failed, will retry", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
		}

		if err := s.Scan(ctx); err != nil {
			s.log.Error("Scan cycle failed", map[string]interface{}{"error": err.Error()})
		}
	}
}
