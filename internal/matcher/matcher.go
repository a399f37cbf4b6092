// internal/matcher/matcher.go
package matcher

import (
	"context"
	"fmt"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/mailbox"
	"rfp-pipeline/internal/models"
)

// LinkSource is the correspondence lookup surface strategies query.
// Both methods return (nil, nil) when no active link exists.
type LinkSource interface {
	FindActiveByMessageID(ctx context.Context, messageID string) (*models.CorrespondenceLink, error)
	FindActiveByRFPAndEmail(ctx context.Context, rfpID, vendorEmail string) (*models.CorrespondenceLink, error)
}

// Strategy is one way of resolving an email to a correspondence link.
// Returns (nil, nil) when the strategy has no opinion on this email, so
// the chain moves on to the next one.
type Strategy interface {
	Name() string
	AttemptMatch(ctx context.Context, email *mailbox.ParsedEmail) (*models.CorrespondenceLink, error)
}

// Chain runs strategies in a fixed order and stops at the first hit.
// Order matters: explicit header beats reply threading beats text
// heuristics, so the strongest available signal always wins.
type Chain struct {
	strategies []Strategy
	log        logger.Logger
}

// NewChain builds the standard chain over the given link source.
func NewChain(links LinkSource, log logger.Logger) *Chain {
	return &Chain{
		strategies: []Strategy{
			&ExplicitHeaderStrategy{links: links},
			&ReplyChainStrategy{links: links},
			&TextHeuristicStrategy{links: links},
		},
		log: log,
	}
}

// Match resolves email against the chain. Returns the matched link and
// the winning strategy's name, or commonerrors.ErrNoMatch when every
// strategy declines.
func (c *Chain) Match(ctx context.Context, email *mailbox.ParsedEmail) (*models.CorrespondenceLink, string, error) {
	for _, strategy := range c.strategies {
		link, err := strategy.AttemptMatch(ctx, email)
		if err != nil {
			return nil, "", fmt.Errorf("strategy %s failed: %w", strategy.Name(), err)
		}
		if link != nil {
			c.log.Debug("Correspondence match found", map[string]interface{}{
				"strategy":   strategy.Name(),
				"rfp_id":     link.RFPID,
				"vendor_id":  link.VendorID,
				"message_id": email.MessageID,
			})
			return link, strategy.Name(), nil
		}
	}
	return nil, "", commonerrors.ErrNoMatch
}
