// internal/ingest/ingest.go
package ingest

import (
	"context"
	"fmt"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/mailbox"
	"rfp-pipeline/internal/models"
)

// AttachmentSaver persists one attachment blob, degrading to error
// metadata instead of failing.
type AttachmentSaver interface {
	Save(ctx context.Context, content []byte, filename, contentType string) models.AttachmentMeta
}

// ProposalWriter is the persistence surface ingestion needs.
type ProposalWriter interface {
	Insert(ctx context.Context, p *models.Proposal) (string, error)
	InsertAttachment(ctx context.Context, proposalID string, meta models.AttachmentMeta) error
}

// ParseDispatcher schedules the extraction job for a stored proposal.
type ParseDispatcher interface {
	EnqueueParse(ctx context.Context, queue, proposalID string) (bool, error)
}

// Ingestor turns a matched email into a durable Proposal plus its parse
// job. Attachment storage failures degrade, attachment row failures are
// logged and skipped, but a proposal that cannot be inserted or whose
// parse job cannot be scheduled fails the whole ingest: an unscheduled
// proposal would silently never be scored.
type Ingestor struct {
	storage    AttachmentSaver
	proposals  ProposalWriter
	dispatcher ParseDispatcher
	parseQueue string
	log        logger.Logger
}

func NewIngestor(storage AttachmentSaver, proposals ProposalWriter, dispatcher ParseDispatcher, parseQueue string, log logger.Logger) *Ingestor {
	return &Ingestor{
		storage:    storage,
		proposals:  proposals,
		dispatcher: dispatcher,
		parseQueue: parseQueue,
		log:        log,
	}
}

func (i *Ingestor) IngestMatched(ctx context.Context, link *models.CorrespondenceLink, email *mailbox.ParsedEmail, rawSource string) (string, error) {
	// One descriptor per incoming attachment, in the original order, with
	// failures recorded in place rather than dropped.
	metas := make([]models.AttachmentMeta, 0, len(email.Attachments))
	for _, att := range email.Attachments {
		meta := i.storage.Save(ctx, att.Content, att.Filename, att.ContentType)
		if meta.Error != "" {
			i.log.Warn("Attachment capture degraded", map[string]interface{}{
				"rfp_id":   link.RFPID,
				"filename": att.Filename,
				"error":    meta.Error,
			})
		}
		metas = append(metas, meta)
	}

	proposal := &models.Proposal{
		RFPID:          link.RFPID,
		VendorID:       link.VendorID,
		RawEmail:       rawSource,
		RawAttachments: metas,
		ReceivedAt:     email.Date,
	}
	proposalID, err := i.proposals.Insert(ctx, proposal)
	if err != nil {
		return "", commonerrors.NewInfrastructureError("proposal insert", err)
	}

	for _, meta := range metas {
		if err := i.proposals.InsertAttachment(ctx, proposalID, meta); err != nil {
			// The inline raw_attachments copy still records it.
			i.log.Error("Failed to insert attachment row", map[string]interface{}{
				"proposal_id": proposalID,
				"filename":    meta.Filename,
				"error":       err.Error(),
			})
		}
	}

	accepted, err := i.dispatcher.EnqueueParse(ctx, i.parseQueue, proposalID)
	if err != nil {
		return "", commonerrors.NewInfrastructureError("parse job enqueue", fmt.Errorf("proposal %s: %w", proposalID, err))
	}
	if !accepted {
		i.log.Warn("Parse job already scheduled for proposal", map[string]interface{}{
			"proposal_id": proposalID,
		})
	}

	return proposalID, nil
}
