// internal/matcher/strategies.go
package matcher

import (
	"context"
	"regexp"
	"strings"

	"rfp-pipeline/internal/mailbox"
	"rfp-pipeline/internal/models"
)

// ExplicitHeaderStrategy matches on the X-RFP-ID header the outbound
// mailer stamps on every solicitation, cross-checked against the sender
// address so a forwarded header cannot claim someone else's thread.
type ExplicitHeaderStrategy struct {
	links LinkSource
}

func (s *ExplicitHeaderStrategy) Name() string { return "explicit-header" }

func (s *ExplicitHeaderStrategy) AttemptMatch(ctx context.Context, email *mailbox.ParsedEmail) (*models.CorrespondenceLink, error) {
	rfpID := strings.TrimSpace(email.Header.Get("X-RFP-ID"))
	if rfpID == "" || email.From == "" {
		return nil, nil
	}
	return s.links.FindActiveByRFPAndEmail(ctx, rfpID, email.From)
}

// ReplyChainStrategy matches threading headers against the message ids
// recorded when solicitations were sent. In-Reply-To is checked first;
// the References list is walked in order only if that misses.
type ReplyChainStrategy struct {
	links LinkSource
}

func (s *ReplyChainStrategy) Name() string { return "reply-chain" }

func (s *ReplyChainStrategy) AttemptMatch(ctx context.Context, email *mailbox.ParsedEmail) (*models.CorrespondenceLink, error) {
	if email.InReplyTo != "" {
		link, err := s.links.FindActiveByMessageID(ctx, email.InReplyTo)
		if err != nil || link != nil {
			return link, err
		}
	}
	for _, ref := range email.References {
		link, err := s.links.FindActiveByMessageID(ctx, ref)
		if err != nil || link != nil {
			return link, err
		}
	}
	return nil, nil
}

// Candidate id patterns, tried in order of confidence: an rfp URL path
// segment, an explicit rfp_id key-value, then a bare "RFP <id>" mention.
var (
	rfpURLPattern      = regexp.MustCompile(`(?i)/rfps?[/\-]([0-9a-fA-F-]{6,36})`)
	rfpKeyValuePattern = regexp.MustCompile(`(?i)rfp[_-]?id[=:\s]*([0-9a-fA-F-]{6,36})`)
	rfpMentionPattern  = regexp.MustCompile(`[Rr][Ff][Pp][\s:-]*([0-9a-fA-F-]{6,36})`)
)

// TextHeuristicStrategy scrapes an RFP id out of the subject and body as
// a last resort, for vendors whose mail clients drop threading headers.
// Any candidate id is still validated against the sender address.
type TextHeuristicStrategy struct {
	links LinkSource
}

func (s *TextHeuristicStrategy) Name() string { return "text-heuristic" }

func (s *TextHeuristicStrategy) AttemptMatch(ctx context.Context, email *mailbox.ParsedEmail) (*models.CorrespondenceLink, error) {
	if email.From == "" {
		return nil, nil
	}
	candidateID := ExtractRFPID(email.Subject + "\n" + email.TextBody)
	if candidateID == "" {
		return nil, nil
	}
	return s.links.FindActiveByRFPAndEmail(ctx, candidateID, email.From)
}

// ExtractRFPID returns the first candidate RFP id found in text, or "".
func ExtractRFPID(text string) string {
	if text == "" {
		return ""
	}
	for _, pattern := range []*regexp.Regexp{rfpURLPattern, rfpKeyValuePattern, rfpMentionPattern} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
