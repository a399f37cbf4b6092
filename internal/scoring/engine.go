// internal/scoring/engine.go

// Package scoring ranks competing proposals for one request with
// cross-proposal min-max normalization and a fixed-weight aggregate.
package scoring

import (
	"encoding/json"
	"sort"

	"rfp-pipeline/internal/models"
)

// Weights for the per-metric contributions. Must sum to 1.0 for totals to
// land in [0,1].
type Weights struct {
	Cost        float64 `json:"cost"`
	Timeline    float64 `json:"timeline"`
	Quality     float64 `json:"quality"`
	Support     float64 `json:"support"`
	Reliability float64 `json:"reliability"`
	Compliance  float64 `json:"compliance"`
	Business    float64 `json:"business"`
}

var DefaultWeights = Weights{
	Cost:        0.25,
	Timeline:    0.15,
	Quality:     0.15,
	Support:     0.10,
	Reliability: 0.10,
	Compliance:  0.10,
	Business:    0.15,
}

// MetricScores holds the normalized per-metric contributions, each in
// [0,1].
type MetricScores struct {
	Cost        float64 `json:"cost"`
	Timeline    float64 `json:"timeline"`
	Quality     float64 `json:"quality"`
	Support     float64 `json:"support"`
	Reliability float64 `json:"reliability"`
	Compliance  float64 `json:"compliance"`
	Business    float64 `json:"business"`
}

// RankedProposal is one row of the comparison output.
type RankedProposal struct {
	ProposalID string       `json:"proposalId"`
	VendorID   string       `json:"vendorId"`
	Scores     MetricScores `json:"scores"`
	TotalScore float64      `json:"totalScore"`
}

// bounds tracks the observed range of one raw metric across the set.
type bounds struct {
	min, max float64
	seen     bool
}

func (b *bounds) observe(v *float64) {
	if v == nil {
		return
	}
	if !b.seen {
		b.min, b.max = *v, *v
		b.seen = true
		return
	}
	if *v < b.min {
		b.min = *v
	}
	if *v > b.max {
		b.max = *v
	}
}

// normalizeLower maps a lower-is-better value into [0,1]. Missing values
// are neutral (0.5); a degenerate range where every observation is equal
// scores 1 for any present value, since there is nothing to discriminate.
func normalizeLower(v *float64, b bounds) float64 {
	if v == nil {
		return 0.5
	}
	if b.min == b.max {
		return 1
	}
	return 1 - (clamp(*v, b.min, b.max)-b.min)/(b.max-b.min)
}

func normalizeHigher(v *float64, b bounds) float64 {
	if v == nil {
		return 0.5
	}
	if b.min == b.max {
		return 1
	}
	return (clamp(*v, b.min, b.max) - b.min) / (b.max - b.min)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// complianceScore is the fraction of satisfied compliance flags; absent or
// empty compliance data is neutral.
func complianceScore(flags map[string]bool) float64 {
	if len(flags) == 0 {
		return 0.5
	}
	satisfied := 0
	for _, ok := range flags {
		if ok {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(flags))
}

type parsedFields struct {
	cost         *float64
	timelineDays *float64
	defectRate   *float64
	returnRate   *float64
	slaRespHours *float64
	failureRate  *float64
	compliance   map[string]bool
	years        *float64
	retention    *float64
}

func decodeParsed(p *models.Proposal) parsedFields {
	var doc models.ParsedProposal
	if len(p.Parsed) > 0 {
		// An undecodable document scores as all-missing rather than
		// excluding the proposal from the comparison.
		_ = json.Unmarshal(p.Parsed, &doc)
	}
	f := parsedFields{
		cost:         doc.Cost,
		timelineDays: doc.TimelineDays,
		compliance:   doc.Compliance,
	}
	if doc.Quality != nil {
		f.defectRate = doc.Quality.DefectRate
		f.returnRate = doc.Quality.ReturnRate
	}
	if doc.Support != nil {
		f.slaRespHours = doc.Support.SLARespHours
	}
	if doc.Reliability != nil {
		f.failureRate = doc.Reliability.FailureRate
	}
	if doc.Business != nil {
		f.years = doc.Business.YearsInOperation
		f.retention = doc.Business.ClientRetentionRate
	}
	return f
}

// ComputeScores ranks proposals by weighted normalized metrics, highest
// total first. The sort is stable, so equal totals keep their input
// order.
func ComputeScores(proposals []models.Proposal, weights Weights) []RankedProposal {
	fields := make([]parsedFields, len(proposals))
	var costB, timelineB, defectB, returnB, slaB, failureB, yearsB, retentionB bounds
	for i := range proposals {
		f := decodeParsed(&proposals[i])
		fields[i] = f
		costB.observe(f.cost)
		timelineB.observe(f.timelineDays)
		defectB.observe(f.defectRate)
		returnB.observe(f.returnRate)
		slaB.observe(f.slaRespHours)
		failureB.observe(f.failureRate)
		yearsB.observe(f.years)
		retentionB.observe(f.retention)
	}

	results := make([]RankedProposal, 0, len(proposals))
	for i := range proposals {
		f := fields[i]
		scores := MetricScores{
			Cost:        normalizeLower(f.cost, costB),
			Timeline:    normalizeLower(f.timelineDays, timelineB),
			Quality:     (normalizeLower(f.defectRate, defectB) + normalizeLower(f.returnRate, returnB)) / 2,
			Support:     normalizeLower(f.slaRespHours, slaB),
			Reliability: normalizeLower(f.failureRate, failureB),
			Compliance:  complianceScore(f.compliance),
			Business:    (normalizeHigher(f.years, yearsB) + normalizeHigher(f.retention, retentionB)) / 2,
		}

		total := weights.Cost*scores.Cost +
			weights.Timeline*scores.Timeline +
			weights.Quality*scores.Quality +
			weights.Support*scores.Support +
			weights.Reliability*scores.Reliability +
			weights.Compliance*scores.Compliance +
			weights.Business*scores.Business

		results = append(results, RankedProposal{
			ProposalID: proposals[i].ID,
			VendorID:   proposals[i].VendorID,
			Scores:     scores,
			TotalScore: total,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].TotalScore > results[b].TotalScore
	})
	return results
}
