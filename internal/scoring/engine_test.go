// internal/scoring/engine_test.go
package scoring

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfp-pipeline/internal/models"
)

func proposalWithParsed(id string, parsed string) models.Proposal {
	return models.Proposal{
		ID:       id,
		VendorID: "vendor-" + id,
		Parsed:   json.RawMessage(parsed),
	}
}

func findRanked(t *testing.T, results []RankedProposal, id string) RankedProposal {
	for _, r := range results {
		if r.ProposalID == id {
			return r
		}
	}
	t.Fatalf("proposal %s not in results", id)
	return RankedProposal{}
}

func TestComputeScoresCostOrdering(t *testing.T) {
	proposals := []models.Proposal{
		proposalWithParsed("a", `{"cost": 100}`),
		proposalWithParsed("b", `{"cost": 200}`),
		proposalWithParsed("c", `{"cost": 150}`),
	}

	results := ComputeScores(proposals, DefaultWeights)
	require.Len(t, results, 3)

	// Lower cost wins: a, then c, then b.
	assert.Equal(t, "a", results[0].ProposalID)
	assert.Equal(t, "c", results[1].ProposalID)
	assert.Equal(t, "b", results[2].ProposalID)

	assert.Equal(t, 1.0, findRanked(t, results, "a").Scores.Cost)
	assert.Equal(t, 0.5, findRanked(t, results, "c").Scores.Cost)
	assert.Equal(t, 0.0, findRanked(t, results, "b").Scores.Cost)
}

func TestComputeScoresDegenerateEqualMetric(t *testing.T) {
	// Every proposal has the same cost: no information, reward presence.
	proposals := []models.Proposal{
		proposalWithParsed("a", `{"cost": 1000}`),
		proposalWithParsed("b", `{"cost": 1000}`),
		proposalWithParsed("c", `{"cost": 1000}`),
	}

	results := ComputeScores(proposals, DefaultWeights)
	for _, r := range results {
		assert.Equal(t, 1.0, r.Scores.Cost, "proposal %s", r.ProposalID)
	}
}

func TestComputeScoresMissingMetricIsNeutral(t *testing.T) {
	proposals := []models.Proposal{
		proposalWithParsed("a", `{"cost": 100}`),
		proposalWithParsed("b", `{"cost": 300}`),
		proposalWithParsed("c", `{}`),
	}

	results := ComputeScores(proposals, DefaultWeights)
	assert.Equal(t, 0.5, findRanked(t, results, "c").Scores.Cost)
	// Presence of the missing value does not shift the others.
	assert.Equal(t, 1.0, findRanked(t, results, "a").Scores.Cost)
	assert.Equal(t, 0.0, findRanked(t, results, "b").Scores.Cost)
}

func TestComputeScoresStableTies(t *testing.T) {
	// Identical documents produce identical totals; order must match
	// input order.
	proposals := []models.Proposal{
		proposalWithParsed("first", `{"cost": 100, "timeline_days": 30}`),
		proposalWithParsed("second", `{"cost": 100, "timeline_days": 30}`),
	}

	results := ComputeScores(proposals, DefaultWeights)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ProposalID)
	assert.Equal(t, "second", results[1].ProposalID)
	assert.Equal(t, results[0].TotalScore, results[1].TotalScore)
}

func TestComputeScoresQualityAveragesComponents(t *testing.T) {
	proposals := []models.Proposal{
		proposalWithParsed("a", `{"quality": {"defectRate": 0.01, "returnRate": 0.05}}`),
		proposalWithParsed("b", `{"quality": {"defectRate": 0.10, "returnRate": 0.01}}`),
	}

	results := ComputeScores(proposals, DefaultWeights)

	// a: defect best (1.0), return worst (0.0) -> 0.5
	// b: defect worst (0.0), return best (1.0) -> 0.5
	assert.InDelta(t, 0.5, findRanked(t, results, "a").Scores.Quality, 1e-9)
	assert.InDelta(t, 0.5, findRanked(t, results, "b").Scores.Quality, 1e-9)
}

func TestComputeScoresCompliance(t *testing.T) {
	tests := []struct {
		name     string
		parsed   string
		expected float64
	}{
		{
			name:     "all flags satisfied",
			parsed:   `{"compliance": {"iso9001": true, "insurance": true}}`,
			expected: 1.0,
		},
		{
			name:     "half satisfied",
			parsed:   `{"compliance": {"iso9001": true, "insurance": false}}`,
			expected: 0.5,
		},
		{
			name:     "none satisfied",
			parsed:   `{"compliance": {"iso9001": false}}`,
			expected: 0.0,
		},
		{
			name:     "absent is neutral",
			parsed:   `{}`,
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := ComputeScores([]models.Proposal{proposalWithParsed("p", tt.parsed)}, DefaultWeights)
			require.Len(t, results, 1)
			assert.Equal(t, tt.expected, results[0].Scores.Compliance)
		})
	}
}

func TestComputeScoresBusinessStability(t *testing.T) {
	proposals := []models.Proposal{
		proposalWithParsed("young", `{"business": {"yearsInOperation": 2, "clientRetentionRate": 0.6}}`),
		proposalWithParsed("established", `{"business": {"yearsInOperation": 20, "clientRetentionRate": 0.95}}`),
	}

	results := ComputeScores(proposals, DefaultWeights)
	assert.Equal(t, 1.0, findRanked(t, results, "established").Scores.Business)
	assert.Equal(t, 0.0, findRanked(t, results, "young").Scores.Business)
	assert.Equal(t, "established", results[0].ProposalID)
}

func TestComputeScoresClampsOutOfRange(t *testing.T) {
	// Values are clamped into the observed range before normalizing, so
	// the math never leaves [0,1] even with adversarial input ordering.
	proposals := []models.Proposal{
		proposalWithParsed("a", `{"cost": 50, "timeline_days": 10}`),
		proposalWithParsed("b", `{"cost": 500, "timeline_days": 90}`),
	}

	for _, r := range ComputeScores(proposals, DefaultWeights) {
		for i, v := range []float64{r.Scores.Cost, r.Scores.Timeline, r.Scores.Quality, r.Scores.Support, r.Scores.Reliability, r.Scores.Compliance, r.Scores.Business} {
			assert.GreaterOrEqual(t, v, 0.0, fmt.Sprintf("%s metric %d", r.ProposalID, i))
			assert.LessOrEqual(t, v, 1.0, fmt.Sprintf("%s metric %d", r.ProposalID, i))
		}
		assert.GreaterOrEqual(t, r.TotalScore, 0.0)
		assert.LessOrEqual(t, r.TotalScore, 1.0)
	}
}

func TestComputeScoresAllMissingDocument(t *testing.T) {
	results := ComputeScores([]models.Proposal{
		proposalWithParsed("empty", `{}`),
	}, DefaultWeights)
	require.Len(t, results, 1)

	// Every metric neutral: total is half the weight sum.
	assert.InDelta(t, 0.5, results[0].TotalScore, 1e-9)
}

func TestComputeScoresEmptyInput(t *testing.T) {
	assert.Empty(t, ComputeScores(nil, DefaultWeights))
}
