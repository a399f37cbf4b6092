// internal/workers/proposal/parse-proposal/handler.go
package parseproposal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/common/observability"
	"rfp-pipeline/internal/extract"
	"rfp-pipeline/internal/models"
	"rfp-pipeline/internal/queue"
)

const TaskType = "parse-proposal"

// ProposalStore is the persistence surface the worker needs.
type ProposalStore interface {
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	GetRFPByID(ctx context.Context, id string) (*models.RFP, error)
	UpdateResult(ctx context.Context, id string, parsed json.RawMessage, score float64, reason string) error
}

// Handler runs one extraction-and-score job per proposal. Collaborator
// failures are terminal: the proposal is persisted with a sentinel score
// and an explanation instead of being retried. Only the worker's own
// bookkeeping (fetch, final update) goes back to the queue's retry path.
type Handler struct {
	config    *Config
	store     ProposalStore
	extractor extract.Extractor
	scorer    extract.Scorer
	obs       *observability.Observability
	logger    logger.Logger
}

func NewHandler(config *Config, store ProposalStore, extractor extract.Extractor, scorer extract.Scorer, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		store:     store,
		extractor: extractor,
		scorer:    scorer,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	var input Input
	if err := json.Unmarshal(job.Payload, &input); err != nil {
		return commonerrors.NewInvalidJobError(fmt.Sprintf("job %s: %v", job.ID, err))
	}
	if input.ProposalID == "" {
		return commonerrors.NewInvalidJobError(fmt.Sprintf("job %s: missing proposalId", job.ID))
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	start := time.Now()
	output, err := h.execute(ctx, &input)
	status := "success"
	if err != nil {
		status = "error"
	}
	if h.obs != nil {
		h.obs.RecordJobProcessed(ctx, status)
		h.obs.RecordJobDuration(ctx, time.Since(start), status)
	}
	if err != nil {
		return err
	}

	h.logger.Info("Proposal parse job finished", map[string]interface{}{
		"proposal_id": output.ProposalID,
		"extracted":   output.Extracted,
		"scored":      output.Scored,
		"score":       output.Score,
	})
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	proposal, err := h.store.GetByID(ctx, input.ProposalID)
	if err != nil {
		return nil, err
	}
	rfp, err := h.store.GetRFPByID(ctx, proposal.RFPID)
	if err != nil {
		return nil, err
	}

	parsed, err := h.extractor.ExtractProposal(ctx, proposal.RawEmail)
	if err != nil {
		h.logger.Warn("Extraction failed, persisting sentinel result", map[string]interface{}{
			"proposal_id": proposal.ID,
			"error":       err.Error(),
		})
		output := &Output{ProposalID: proposal.ID, Reason: "Unable to score"}
		if uerr := h.store.UpdateResult(ctx, proposal.ID, nil, 0, output.Reason); uerr != nil {
			return nil, uerr
		}
		return output, nil
	}

	result, err := h.scorer.ScoreProposal(ctx, parsed, rfp.Structured)
	if err != nil {
		h.logger.Warn("Scoring failed, retaining extracted data", map[string]interface{}{
			"proposal_id": proposal.ID,
			"error":       err.Error(),
		})
		output := &Output{
			ProposalID: proposal.ID,
			Extracted:  true,
			Reason:     "Failed to score: " + err.Error(),
		}
		if uerr := h.store.UpdateResult(ctx, proposal.ID, parsed, 0, output.Reason); uerr != nil {
			return nil, uerr
		}
		return output, nil
	}

	score := clampScore(result.TotalScore)
	reason := result.RecommendationReason
	if reason == "" {
		reason = "No recommendation"
	}
	if err := h.store.UpdateResult(ctx, proposal.ID, parsed, score, reason); err != nil {
		return nil, err
	}

	return &Output{
		ProposalID: proposal.ID,
		Extracted:  true,
		Scored:     true,
		Score:      score,
		Reason:     reason,
	}, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
