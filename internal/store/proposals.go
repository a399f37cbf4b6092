// internal/store/proposals.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	commonerrors "rfp-pipeline/internal/common/errors"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/models"
)

// ProposalStore reads and writes proposals, their attachment rows, and
// the RFP rows the parse worker needs alongside them.
type ProposalStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewProposalStore(db *sql.DB, log logger.Logger) *ProposalStore {
	return &ProposalStore{db: db, log: log}
}

// Insert persists a new proposal and returns its id. Attachment metadata
// is stored inline as JSON so the raw capture survives even if the
// per-attachment rows fail later.
func (s *ProposalStore) Insert(ctx context.Context, p *models.Proposal) (string, error) {
	rawAttachments, err := json.Marshal(p.RawAttachments)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachment metadata: %w", err)
	}

	query := `
		INSERT INTO proposals (rfp_id, vendor_id, raw_email, raw_attachments, received_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		p.RFPID, p.VendorID, p.RawEmail, rawAttachments, p.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert proposal: %w", err)
	}
	return id, nil
}

// InsertAttachment adds one attachment row for a stored proposal.
func (s *ProposalStore) InsertAttachment(ctx context.Context, proposalID string, meta models.AttachmentMeta) error {
	query := `
		INSERT INTO attachments (proposal_id, filename, content_type, size, storage_url)
		VALUES ($1, $2, $3, $4, $5)`

	var storageURL sql.NullString
	if meta.StorageURL != nil {
		storageURL = sql.NullString{String: *meta.StorageURL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query, proposalID, meta.Filename, meta.ContentType, meta.Size, storageURL)
	if err != nil {
		return fmt.Errorf("failed to insert attachment row for proposal %s: %w", proposalID, err)
	}
	return nil
}

const proposalColumns = `id, rfp_id, vendor_id, raw_email, raw_attachments, received_at, parsed, score, recommendation_reason`

// GetByID fetches one proposal. A missing row is a business failure, not
// an infrastructure one, so it maps to a non-retryable error.
func (s *ProposalStore) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 LIMIT 1`

	p, err := scanProposal(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, commonerrors.NewProposalNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proposal %s: %w", id, err)
	}
	return p, nil
}

// GetRFPByID fetches the RFP a proposal answers, including its
// structured requirements document.
func (s *ProposalStore) GetRFPByID(ctx context.Context, id string) (*models.RFP, error) {
	query := `SELECT id, title, structured, created_at FROM rfps WHERE id = $1 LIMIT 1`

	var (
		rfp        models.RFP
		structured []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rfp.ID, &rfp.Title, &structured, &rfp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, commonerrors.NewRFPNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rfp %s: %w", id, err)
	}
	rfp.Structured = structured
	return &rfp, nil
}

// UpdateResult writes the terminal outcome of a parse job in a single
// statement, so readers never observe extraction without its score.
func (s *ProposalStore) UpdateResult(ctx context.Context, id string, parsed json.RawMessage, score float64, reason string) error {
	query := `
		UPDATE proposals
		SET parsed = $1, score = $2, recommendation_reason = $3
		WHERE id = $4`

	var parsedArg interface{}
	if len(parsed) > 0 {
		parsedArg = []byte(parsed)
	}

	result, err := s.db.ExecContext(ctx, query, parsedArg, score, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update proposal %s result: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return commonerrors.NewProposalNotFoundError(id)
	}
	return nil
}

// ListParsedByRFP returns every proposal for an RFP that has extracted
// fields available, for comparative ranking.
func (s *ProposalStore) ListParsedByRFP(ctx context.Context, rfpID string) ([]models.Proposal, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM proposals
		WHERE rfp_id = $1 AND parsed IS NOT NULL
		ORDER BY received_at`

	rows, err := s.db.QueryContext(ctx, query, rfpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals for rfp %s: %w", rfpID, err)
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func scanProposal(row rowScanner) (*models.Proposal, error) {
	var (
		p              models.Proposal
		rawAttachments []byte
		parsed         []byte
		score          sql.NullFloat64
		reason         sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.RFPID,
		&p.VendorID,
		&p.RawEmail,
		&rawAttachments,
		&p.ReceivedAt,
		&parsed,
		&score,
		&reason,
	)
	if err != nil {
		return nil, err
	}
	if len(rawAttachments) > 0 {
		if err := json.Unmarshal(rawAttachments, &p.RawAttachments); err != nil {
			return nil, fmt.Errorf("corrupt attachment metadata on proposal %s: %w", p.ID, err)
		}
	}
	if len(parsed) > 0 {
		p.Parsed = json.RawMessage(parsed)
	}
	if score.Valid {
		v := score.Float64
		p.Score = &v
	}
	if reason.Valid {
		r := reason.String
		p.RecommendationReason = &r
	}
	return &p, nil
}
