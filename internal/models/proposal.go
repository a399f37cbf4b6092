// internal/models/proposal.go
package models

import (
	"encoding/json"
	"time"
)

// AttachmentMeta describes one captured attachment. A failed capture keeps
// its slot in the list: StorageURL is nil and Error carries the cause, so
// the proposal record still accounts for every attachment the email had.
type AttachmentMeta struct {
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	StorageURL  *string `json:"storage_url"`
	Error       string  `json:"error,omitempty"`
}

// Proposal is one vendor's ingested reply. Raw fields are immutable after
// creation; Parsed, Score and RecommendationReason are written exactly once
// by the parse worker when the job reaches a terminal state.
type Proposal struct {
	ID                   string           `json:"id"`
	RFPID                string           `json:"rfpId"`
	VendorID             string           `json:"vendorId"`
	RawEmail             string           `json:"rawEmail"`
	RawAttachments       []AttachmentMeta `json:"rawAttachments"`
	ReceivedAt           time.Time        `json:"receivedAt"`
	Parsed               json.RawMessage  `json:"parsed,omitempty"`
	Score                *float64         `json:"score,omitempty"`
	RecommendationReason *string          `json:"recommendationReason,omitempty"`
}

// Attachment is the per-attachment row kept alongside the proposal.
type Attachment struct {
	ProposalID  string  `json:"proposalId"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"contentType"`
	StorageURL  *string `json:"storageUrl"`
}

// ParsedProposal is the structured form the extraction collaborator
// produces from a raw email. Every field is optional: vendors rarely state
// all of them, and the scoring engine treats nil as "missing" rather than
// zero.
type ParsedProposal struct {
	VendorName   string           `json:"vendorName,omitempty"`
	Cost         *float64         `json:"cost,omitempty"`
	TimelineDays *float64         `json:"timeline_days,omitempty"`
	Quality      *QualityMetrics  `json:"quality,omitempty"`
	Support      *SupportMetrics  `json:"support,omitempty"`
	Reliability  *ReliabilityInfo `json:"reliability,omitempty"`
	Compliance   map[string]bool  `json:"compliance,omitempty"`
	Business     *BusinessInfo    `json:"business,omitempty"`
	Notes        string           `json:"notes,omitempty"`
}

type QualityMetrics struct {
	DefectRate *float64 `json:"defectRate,omitempty"`
	ReturnRate *float64 `json:"returnRate,omitempty"`
}

type SupportMetrics struct {
	SLARespHours *float64 `json:"slaRespHours,omitempty"`
}

type ReliabilityInfo struct {
	FailureRate *float64 `json:"failureRate,omitempty"`
}

type BusinessInfo struct {
	YearsInOperation    *float64 `json:"yearsInOperation,omitempty"`
	ClientRetentionRate *float64 `json:"clientRetentionRate,omitempty"`
}

// ScoreResult is what the scoring collaborator returns for one proposal.
type ScoreResult struct {
	TotalScore           float64 `json:"totalScore"`
	RecommendationReason string  `json:"recommendation_reason"`
}
