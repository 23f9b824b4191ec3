package review

import (
	"fmt"
)

// selectModels dedupes the caller's requested models preserving order and
// caps at MaxModels, or falls back to the configured default review
// models. It partitions the result into models known to the registry and
// those that are not (not_started).
func (ex *Executor) selectModels(req Request) (targets, notStarted []string) {
	requested := req.Models
	if len(requested) == 0 {
		requested = req.DefaultModels
	}

	seen := make(map[string]bool, len(requested))
	var deduped []string
	for _, m := range requested {
		if seen[m] {
			continue
		}
		seen[m] = true
		deduped = append(deduped, m)
		if len(deduped) >= MaxModels {
			break
		}
	}

	for _, m := range deduped {
		if _, err := ex.Registry.Lookup(m); err != nil {
			notStarted = append(notStarted, m)
			continue
		}
		targets = append(targets, m)
	}
	return targets, notStarted
}

// hardGateMinSamples and hardGateMaxRate are the spec's fixed thresholds:
// a model is excluded once it has accumulated at least 5 quality samples
// with a success rate below 70%.
const (
	hardGateMinSamples = 5
	hardGateMaxRate    = 0.70
)

// applyHardGate excludes models whose historical quality stats cross the
// gate threshold. If every candidate would be excluded, the original list
// is restored and a fallback warning is emitted instead.
func (ex *Executor) applyHardGate(targets []string) ([]string, []string) {
	if ex.Memory == nil || len(targets) == 0 {
		return targets, nil
	}

	var kept, excluded []string
	for _, m := range targets {
		count, rate, ok := ex.Memory.Stats(m)
		if ok && count >= hardGateMinSamples && rate < hardGateMaxRate {
			excluded = append(excluded, m)
			continue
		}
		kept = append(kept, m)
	}

	if len(excluded) == 0 {
		return targets, nil
	}
	if len(kept) == 0 {
		return targets, []string{fmt.Sprintf("hard gate would exclude all %d candidate(s); dispatching all anyway", len(targets))}
	}
	return kept, []string{fmt.Sprintf("excluded %d model(s) on historical quality: %v", len(excluded), excluded)}
}

// validateOverrideKeys warns about per-model override maps naming a model
// key that isn't actually one of the targets being dispatched.
func (ex *Executor) validateOverrideKeys(req Request, targets []string) []string {
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	var warnings []string
	for k := range req.PerModelSystemPrompts {
		if !targetSet[k] {
			warnings = append(warnings, fmt.Sprintf("per_model_system_prompts names unknown target %q", k))
		}
	}
	for k := range req.PerModelTimeoutSecs {
		if !targetSet[k] {
			warnings = append(warnings, fmt.Sprintf("per_model_timeout_secs names unknown target %q", k))
		}
	}
	return warnings
}
