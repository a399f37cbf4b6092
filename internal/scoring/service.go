// internal/scoring/service.go
package scoring

import (
	"context"

	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/models"
)

// ProposalLister supplies the scored-eligible proposals of one RFP.
type ProposalLister interface {
	ListParsedByRFP(ctx context.Context, rfpID string) ([]models.Proposal, error)
}

// Ranker produces on-demand ranked comparisons across the proposals of
// a single RFP.
type Ranker struct {
	proposals ProposalLister
	weights   Weights
	log       logger.Logger
}

func NewRanker(proposals ProposalLister, weights Weights, log logger.Logger) *Ranker {
	return &Ranker{proposals: proposals, weights: weights, log: log}
}

// Rank loads every proposal of the RFP that has extracted fields and
// returns them ordered best first. An RFP with no eligible proposals
// yields an empty slice, not an error.
func (r *Ranker) Rank(ctx context.Context, rfpID string) ([]RankedProposal, error) {
	proposals, err := r.proposals.ListParsedByRFP(ctx, rfpID)
	if err != nil {
		return nil, err
	}

	ranked := ComputeScores(proposals, r.weights)
	r.log.Info("ranked proposals", map[string]interface{}{
		"rfpId": rfpID,
		"count": len(ranked),
	})
	return ranked, nil
}
