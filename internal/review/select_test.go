package review

import (
	"reflect"
	"testing"

	"github.com/dsado88/squall/internal/dispatch"
)

func TestSelectModels_DedupesPreservingOrder(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]dispatch.ModelEntry{
		"a": {}, "b": {}, "c": {},
	}}
	ex := newTestExecutor(reg, nil)

	targets, notStarted := ex.selectModels(Request{Models: []string{"a", "b", "a", "c"}})

	if !reflect.DeepEqual(targets, []string{"a", "b", "c"}) {
		t.Errorf("targets = %v, want [a b c]", targets)
	}
	if len(notStarted) != 0 {
		t.Errorf("notStarted = %v, want empty", notStarted)
	}
}

func TestSelectModels_FallsBackToDefaults(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]dispatch.ModelEntry{"d": {}}}
	ex := newTestExecutor(reg, nil)

	targets, _ := ex.selectModels(Request{DefaultModels: []string{"d"}})

	if !reflect.DeepEqual(targets, []string{"d"}) {
		t.Errorf("targets = %v, want [d]", targets)
	}
}

func TestSelectModels_CapsAtMaxModels(t *testing.T) {
	entries := make(map[string]dispatch.ModelEntry)
	var requested []string
	for i := 0; i < MaxModels+5; i++ {
		key := string(rune('a' + i))
		entries[key] = dispatch.ModelEntry{}
		requested = append(requested, key)
	}
	reg := &fakeRegistry{entries: entries}
	ex := newTestExecutor(reg, nil)

	targets, _ := ex.selectModels(Request{Models: requested})

	if len(targets) != MaxModels {
		t.Errorf("len(targets) = %d, want %d", len(targets), MaxModels)
	}
}

func TestSelectModels_PartitionsUnknownIntoNotStarted(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]dispatch.ModelEntry{"known": {}}}
	ex := newTestExecutor(reg, nil)

	targets, notStarted := ex.selectModels(Request{Models: []string{"known", "unknown"}})

	if !reflect.DeepEqual(targets, []string{"known"}) {
		t.Errorf("targets = %v, want [known]", targets)
	}
	if !reflect.DeepEqual(notStarted, []string{"unknown"}) {
		t.Errorf("notStarted = %v, want [unknown]", notStarted)
	}
}

func TestApplyHardGate_NoMemoryIsNoOp(t *testing.T) {
	ex := newTestExecutor(&fakeRegistry{}, nil)
	targets, warnings := ex.applyHardGate([]string{"a", "b"})
	if !reflect.DeepEqual(targets, []string{"a", "b"}) || warnings != nil {
		t.Errorf("targets = %v, warnings = %v, want unchanged passthrough", targets, warnings)
	}
}

func TestApplyHardGate_ExcludesLowQualityModel(t *testing.T) {
	gate := &fakeGate{stats: map[string][2]float64{
		"bad":  {10, 0.2},
		"good": {10, 0.9},
	}}
	ex := newTestExecutor(&fakeRegistry{}, gate)

	targets, warnings := ex.applyHardGate([]string{"bad", "good"})

	if !reflect.DeepEqual(targets, []string{"good"}) {
		t.Errorf("targets = %v, want [good]", targets)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one entry", warnings)
	}
}

func TestApplyHardGate_BelowMinSamplesIsNotExcluded(t *testing.T) {
	gate := &fakeGate{stats: map[string][2]float64{
		"new": {2, 0.0}, // below hardGateMinSamples
	}}
	ex := newTestExecutor(&fakeRegistry{}, gate)

	targets, warnings := ex.applyHardGate([]string{"new"})

	if !reflect.DeepEqual(targets, []string{"new"}) || warnings != nil {
		t.Errorf("targets = %v, warnings = %v, want [new]/nil", targets, warnings)
	}
}

func TestApplyHardGate_AllExcludedFallsBackToAll(t *testing.T) {
	gate := &fakeGate{stats: map[string][2]float64{
		"bad1": {10, 0.1},
		"bad2": {10, 0.1},
	}}
	ex := newTestExecutor(&fakeRegistry{}, gate)

	targets, warnings := ex.applyHardGate([]string{"bad1", "bad2"})

	if !reflect.DeepEqual(targets, []string{"bad1", "bad2"}) {
		t.Errorf("targets = %v, want all candidates restored", targets)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one fallback warning", warnings)
	}
}

func TestValidateOverrideKeys_WarnsOnUnknownTarget(t *testing.T) {
	ex := newTestExecutor(&fakeRegistry{}, nil)

	warnings := ex.validateOverrideKeys(Request{
		PerModelSystemPrompts: map[string]string{"ghost": "x"},
		PerModelTimeoutSecs:   map[string]float64{"known": 5},
	}, []string{"known"})

	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one entry for ghost", warnings)
	}
}

func TestValidateOverrideKeys_NoWarningsWhenAllKnown(t *testing.T) {
	ex := newTestExecutor(&fakeRegistry{}, nil)

	warnings := ex.validateOverrideKeys(Request{
		PerModelSystemPrompts: map[string]string{"known": "x"},
	}, []string{"known"})

	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want empty", warnings)
	}
}
