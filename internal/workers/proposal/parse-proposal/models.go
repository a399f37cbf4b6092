// internal/workers/proposal/parse-proposal/models.go
package parseproposal

type Input struct {
	ProposalID string `json:"proposalId"`
}

type Output struct {
	ProposalID string  `json:"proposalId"`
	Extracted  bool    `json:"extracted"`
	Scored     bool    `json:"scored"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
}
