// internal/models/rfp.go
package models

import (
	"encoding/json"
	"time"
)

// RFP is the request being solicited. The pipeline never mutates it; the
// Structured form is handed to the scoring collaborator as-is.
type RFP struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Structured json.RawMessage `json:"structured,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
