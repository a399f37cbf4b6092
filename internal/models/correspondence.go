// internal/models/correspondence.go
package models

import "time"

// Delivery status of an outbound invitation.
const (
	DeliveryNotSent = "not_sent"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// CorrespondenceLink records one invitation sent to one vendor for one RFP.
// The outbound send worker fills in EmailMessageID and Status; the ingestion
// pipeline only reads links. At most one non-superseded link per
// (rfp, vendor) pair is active for matching.
type CorrespondenceLink struct {
	ID             string     `json:"id"`
	RFPID          string     `json:"rfpId"`
	VendorID       string     `json:"vendorId"`
	VendorEmail    string     `json:"vendorEmail"`
	EmailMessageID *string    `json:"emailMessageId,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	Superseded     bool       `json:"superseded"`
}
