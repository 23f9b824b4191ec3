package memoryactor

import (
	"sort"
	"time"
)

// Recommendation is one row of the ranked recommendation table.
type Recommendation struct {
	Model             string
	Score             float64
	SmoothedSuccess   float64
	RecencyConfidence float64
	Stats             Stats
}

// Recommendations is the full ranking query response.
type Recommendations struct {
	QuickTriage string   // lowest-latency model with >80% success & confidence >30%
	Thorough    []string // up to two picks with >90% success & confidence >30%
	Table       []Recommendation
}

func (a *Actor) computeRecommendations() []Recommendation {
	allStats := a.computeAllStats()
	now := time.Now()

	out := make([]Recommendation, 0, len(allStats))
	for model, stats := range allStats {
		if stats.SampleCount == 0 {
			continue
		}
		smoothed := smoothedSuccess(stats)
		confidence := recencyConfidence(now, stats.LastSeen)
		out = append(out, Recommendation{
			Model:             model,
			Score:             confidence * smoothed,
			SmoothedSuccess:   smoothed,
			RecencyConfidence: confidence,
			Stats:             stats,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// smoothedSuccess applies PRIOR_COUNT=5, PRIOR_RATE=0.5 Bayesian smoothing
// so a 1-out-of-1 model cannot outrank a 95-out-of-100 model.
func smoothedSuccess(s Stats) float64 {
	successes := s.SuccessRate * float64(s.SampleCount)
	return (successes + priorRate*priorCount) / (float64(s.SampleCount) + priorCount)
}

// recencyConfidence floors at 0.1 and treats same-day events (days=0) as
// full confidence 1.0, per the spec's resolved open question.
func recencyConfidence(now, lastSeen time.Time) float64 {
	if lastSeen.IsZero() {
		return 0.1
	}
	days := int(now.Sub(lastSeen).Hours() / 24)
	if days <= 0 {
		return 1.0
	}
	c := 1 - float64(days)/90
	if c < 0.1 {
		return 0.1
	}
	return c
}

// BuildTriage derives the quick-triage and thorough picks from a ranking
// table, applying the spec's latency/success/confidence thresholds.
func BuildTriage(table []Recommendation) Recommendations {
	rec := Recommendations{Table: table}

	var quickCandidates []Recommendation
	for _, r := range table {
		if r.Stats.SuccessRate > 0.80 && r.RecencyConfidence > 0.30 {
			quickCandidates = append(quickCandidates, r)
		}
	}
	sort.Slice(quickCandidates, func(i, j int) bool {
		return quickCandidates[i].Stats.AvgLatencySec < quickCandidates[j].Stats.AvgLatencySec
	})
	if len(quickCandidates) > 0 {
		rec.QuickTriage = quickCandidates[0].Model
	}

	for _, r := range table {
		if r.Stats.SuccessRate > 0.90 && r.RecencyConfidence > 0.30 {
			rec.Thorough = append(rec.Thorough, r.Model)
			if len(rec.Thorough) >= 2 {
				break
			}
		}
	}

	return rec
}
