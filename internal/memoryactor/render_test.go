package memoryactor

import (
	"strings"
	"testing"
	"time"
)

func TestEscapePipes(t *testing.T) {
	got := escapePipes("a|b\nc")
	want := `a\|b c`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderEventLog_OrdersMostRecentFirst(t *testing.T) {
	now := time.Now()
	events := []Event{
		{Timestamp: now.Add(-time.Hour), Model: "m", Status: "success"},
		{Timestamp: now, Model: "m", Status: "error", Error: "boom"},
	}
	stats := map[string]Stats{"m": {SampleCount: 2, SuccessRate: 0.5}}

	md := renderEventLog(events, stats)
	firstIdx := strings.Index(md, "boom")
	secondIdx := strings.Index(md, "## Events")
	if firstIdx < secondIdx {
		t.Errorf("expected the most recent event (with error) to appear after the Events header, got:\n%s", md)
	}
	if !strings.Contains(md, "## Summary") {
		t.Error("expected a Summary section")
	}
}

func TestRenderPatterns_MarksConfirmed(t *testing.T) {
	patterns := []Pattern{
		{Category: "style", Scope: "codebase", Evidence: confirmThreshold, Content: "use early returns", Confirmed: true},
		{Category: "bug", Scope: "codebase", Evidence: 1, Content: "not yet confirmed"},
	}
	md := renderPatterns(patterns)
	if !strings.Contains(md, "[confirmed] use early returns") {
		t.Errorf("expected confirmed marker, got:\n%s", md)
	}
	if strings.Contains(md, "[confirmed] not yet confirmed") {
		t.Errorf("unconfirmed pattern should not carry the marker, got:\n%s", md)
	}
}
