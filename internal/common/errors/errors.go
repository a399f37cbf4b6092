package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

type ErrorCode string

const (
	// Matching outcomes. NO_MATCH is an expected result, not a fault: the
	// message stays unread for human triage.
	ErrCodeNoMatch ErrorCode = "NO_MATCH"

	// Mailbox / queue connectivity. Retried on the next trigger or attempt.
	ErrCodeTransientConnectivity ErrorCode = "TRANSIENT_CONNECTIVITY"

	// Attachment write failed; the proposal is still created with a null
	// locator and the error recorded on the descriptor.
	ErrCodeStorageDegraded ErrorCode = "STORAGE_DEGRADED"

	// Collaborator failures. Terminal for the job, non-fatal to the system.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	ErrCodeScoringFailed    ErrorCode = "SCORING_FAILED"

	// The worker's own bookkeeping (job fetch, DB write). Retried by the
	// queue up to its attempt limit, then dead-lettered.
	ErrCodeInfrastructureFailure ErrorCode = "INFRASTRUCTURE_FAILURE"

	ErrCodeProposalNotFound ErrorCode = "PROPOSAL_NOT_FOUND"
	ErrCodeRFPNotFound      ErrorCode = "RFP_NOT_FOUND"

	// A job whose payload cannot be decoded or is missing required fields.
	// Dead-lettered immediately; retrying cannot fix the payload.
	ErrCodeInvalidJob ErrorCode = "INVALID_JOB"
)

// ErrNoMatch is the sentinel returned by the matcher chain when every
// strategy declined the message.
var ErrNoMatch = errors.New("no matching correspondence link")

// ==========================
// 2. StandardError
// ==========================

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable reports whether err should go back to the queue for another
// attempt. Unknown errors are treated as retryable infrastructure faults so
// a transient blip never silently terminates a job.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// CodeOf extracts the ErrorCode from err, or INFRASTRUCTURE_FAILURE when
// err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInfrastructureFailure
}

// ==========================
// 3. Error Constructors
// ==========================

// NewTransientConnectivityError creates a retryable connectivity error.
func NewTransientConnectivityError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientConnectivity,
		Message:   "Connection failure during " + op,
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageDegradedError records a failed attachment write. Not raised to
// the ingest caller; carried on the attachment descriptor instead.
func NewStorageDegradedError(filename string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageDegraded,
		Message:   "Attachment storage write failed",
		Details:   fmt.Sprintf("filename: %s, error: %s", filename, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a terminal extraction error.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Extraction collaborator failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoringFailedError creates a terminal scoring error. Extracted data is
// retained by the caller.
func NewScoringFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoringFailed,
		Message:   "Scoring collaborator failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInfrastructureError creates a retryable infrastructure error.
func NewInfrastructureError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInfrastructureFailure,
		Message:   "Infrastructure failure during " + op,
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProposalNotFoundError creates a non-retryable lookup error.
func NewProposalNotFoundError(proposalID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProposalNotFound,
		Message:   "Proposal not found",
		Details:   "proposalId: " + proposalID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRFPNotFoundError creates a non-retryable lookup error.
func NewRFPNotFoundError(rfpID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRFPNotFound,
		Message:   "RFP not found",
		Details:   "rfpId: " + rfpID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidJobError creates a non-retryable payload error.
func NewInvalidJobError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidJob,
		Message:   "Job payload is invalid",
		Details:   reason,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
