// internal/store/correspondence.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/models"
)

// CorrespondenceStore reads and writes rfp_vendors rows, the links
// between an RFP solicitation and the vendor it was sent to.
type CorrespondenceStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewCorrespondenceStore(db *sql.DB, log logger.Logger) *CorrespondenceStore {
	return &CorrespondenceStore{db: db, log: log}
}

const correspondenceColumns = `id, rfp_id, vendor_id, vendor_email, email_message_id, status, sent_at, superseded`

// FindActiveByMessageID looks up the link whose outbound message id
// matches, ignoring angle brackets on the stored side so older rows that
// kept them still match. Returns (nil, nil) when no row exists.
func (s *CorrespondenceStore) FindActiveByMessageID(ctx context.Context, messageID string) (*models.CorrespondenceLink, error) {
	mid := strings.Trim(strings.TrimSpace(messageID), "<>")
	if mid == "" {
		return nil, nil
	}

	query := `
		SELECT ` + correspondenceColumns + `
		FROM rfp_vendors
		WHERE email_message_id IS NOT NULL
		  AND replace(replace(email_message_id, '<', ''), '>', '') = $1
		  AND NOT superseded
		LIMIT 1`

	return s.queryOne(ctx, query, mid)
}

// FindActiveByRFPAndEmail looks up the link for an RFP and vendor email,
// case-insensitive on the address. Returns (nil, nil) when no row exists.
func (s *CorrespondenceStore) FindActiveByRFPAndEmail(ctx context.Context, rfpID, vendorEmail string) (*models.CorrespondenceLink, error) {
	if rfpID == "" || vendorEmail == "" {
		return nil, nil
	}

	query := `
		SELECT ` + correspondenceColumns + `
		FROM rfp_vendors
		WHERE rfp_id = $1
		  AND lower(vendor_email) = lower($2)
		  AND NOT superseded
		LIMIT 1`

	return s.queryOne(ctx, query, rfpID, vendorEmail)
}

// MarkDelivery records the outcome of sending one solicitation. The
// message id is stored normalized so inbound reply matching compares the
// same form it indexed.
func (s *CorrespondenceStore) MarkDelivery(ctx context.Context, linkID, status string, messageID *string) error {
	query := `
		UPDATE rfp_vendors
		SET status = $2, email_message_id = $3, sent_at = $4
		WHERE id = $1`

	var mid sql.NullString
	if messageID != nil {
		mid = sql.NullString{String: strings.Trim(strings.TrimSpace(*messageID), "<>"), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query, linkID, status, mid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark delivery for link %s: %w", linkID, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("correspondence link %s not found", linkID)
	}
	return nil
}

// ListPendingDelivery returns links that have not been sent yet, oldest
// first, for the outbound mail producer.
func (s *CorrespondenceStore) ListPendingDelivery(ctx context.Context, rfpID string) ([]models.CorrespondenceLink, error) {
	query := `
		SELECT ` + correspondenceColumns + `
		FROM rfp_vendors
		WHERE rfp_id = $1
		  AND status = $2
		  AND NOT superseded
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, rfpID, models.DeliveryNotSent)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries for rfp %s: %w", rfpID, err)
	}
	defer rows.Close()

	var links []models.CorrespondenceLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (s *CorrespondenceStore) queryOne(ctx context.Context, query string, args ...interface{}) (*models.CorrespondenceLink, error) {
	link, err := scanLink(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("correspondence lookup failed: %w", err)
	}
	return link, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row rowScanner) (*models.CorrespondenceLink, error) {
	var (
		link      models.CorrespondenceLink
		messageID sql.NullString
		sentAt    sql.NullTime
	)
	err := row.Scan(
		&link.ID,
		&link.RFPID,
		&link.VendorID,
		&link.VendorEmail,
		&messageID,
		&link.Status,
		&sentAt,
		&link.Superseded,
	)
	if err != nil {
		return nil, err
	}
	if messageID.Valid {
		link.EmailMessageID = &messageID.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		link.SentAt = &t
	}
	return &link, nil
}
