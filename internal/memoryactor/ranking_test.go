package memoryactor

import (
	"testing"
	"time"
)

func TestSmoothedSuccess_PullsSmallSamplesTowardPrior(t *testing.T) {
	oneForOne := smoothedSuccess(Stats{SampleCount: 1, SuccessRate: 1.0})
	ninetyFiveOfHundred := smoothedSuccess(Stats{SampleCount: 100, SuccessRate: 0.95})
	if oneForOne >= ninetyFiveOfHundred {
		t.Errorf("a 1/1 model (%f) should not outrank a 95/100 model (%f) after smoothing", oneForOne, ninetyFiveOfHundred)
	}
}

func TestRecencyConfidence_SameDayIsFullConfidence(t *testing.T) {
	now := time.Now()
	if got := recencyConfidence(now, now); got != 1.0 {
		t.Errorf("recencyConfidence(same day) = %f, want 1.0", got)
	}
}

func TestRecencyConfidence_ZeroLastSeenIsFloor(t *testing.T) {
	if got := recencyConfidence(time.Now(), time.Time{}); got != 0.1 {
		t.Errorf("recencyConfidence(zero) = %f, want 0.1", got)
	}
}

func TestRecencyConfidence_DecaysAndFloors(t *testing.T) {
	now := time.Now()
	last := now.AddDate(0, 0, -200) // far beyond the 90-day decay window
	if got := recencyConfidence(now, last); got != 0.1 {
		t.Errorf("recencyConfidence(200 days) = %f, want floor 0.1", got)
	}

	last45 := now.AddDate(0, 0, -45)
	got := recencyConfidence(now, last45)
	if got <= 0.1 || got >= 1.0 {
		t.Errorf("recencyConfidence(45 days) = %f, want strictly between 0.1 and 1.0", got)
	}
}

func TestBuildTriage_QuickPicksLowestLatencyAboveThresholds(t *testing.T) {
	table := []Recommendation{
		{Model: "slow-reliable", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.85, AvgLatencySec: 10}},
		{Model: "fast-reliable", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.82, AvgLatencySec: 2}},
		{Model: "fast-unreliable", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.5, AvgLatencySec: 1}},
		{Model: "stale", RecencyConfidence: 0.1, Stats: Stats{SuccessRate: 0.99, AvgLatencySec: 0.5}},
	}
	rec := BuildTriage(table)
	if rec.QuickTriage != "fast-reliable" {
		t.Errorf("QuickTriage = %q, want fast-reliable", rec.QuickTriage)
	}
}

func TestBuildTriage_ThoroughCapsAtTwo(t *testing.T) {
	table := []Recommendation{
		{Model: "a", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.95}},
		{Model: "b", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.92}},
		{Model: "c", RecencyConfidence: 0.5, Stats: Stats{SuccessRate: 0.91}},
	}
	rec := BuildTriage(table)
	if len(rec.Thorough) != 2 {
		t.Errorf("len(Thorough) = %d, want 2", len(rec.Thorough))
	}
}

func TestBuildTriage_EmptyTableNoPicks(t *testing.T) {
	rec := BuildTriage(nil)
	if rec.QuickTriage != "" || len(rec.Thorough) != 0 {
		t.Errorf("rec = %+v, want empty picks", rec)
	}
}
