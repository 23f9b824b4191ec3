package memoryactor

import (
	"fmt"
	"strings"
	"time"
)

// Pattern is one memorize entry, keyed by ContentHash(content, scope).
type Pattern struct {
	Hash      string
	Category  string
	Content   string
	Model     string
	Tags      []string
	Scope     string
	Metadata  map[string]string
	Evidence  int
	FirstSeen time.Time
	LastSeen  time.Time
	Confirmed bool
}

// confirmThreshold is the evidence count at which a pattern is marked
// [confirmed].
const confirmThreshold = 5

// MemorizeRequest mirrors the memorize tool's input contract.
type MemorizeRequest struct {
	Category string
	Content  string
	Model    string
	Tags     []string
	Scope    string
	Metadata map[string]string
}

// Memorize inserts or reinforces a pattern entry. It is routed through
// the command channel to preserve single-writer discipline over
// a.patterns.
func (a *Actor) Memorize(req MemorizeRequest) (path string, err error) {
	reply := make(chan memorizeResult, 1)
	a.cmds <- command{kind: cmdMemorize, memorizeReq: req, memorizeReply: reply}
	r := <-reply
	return r.path, r.err
}

type memorizeResult struct {
	path string
	err  error
}

func (a *Actor) handleMemorize(req MemorizeRequest) memorizeResult {
	hash := ContentHash(req.Content, req.Scope)
	now := time.Now()

	for i := range a.patterns {
		if a.patterns[i].Hash == hash {
			a.patterns[i].Evidence++
			a.patterns[i].LastSeen = now
			if a.patterns[i].Evidence >= confirmThreshold {
				a.patterns[i].Confirmed = true
			}
			a.persistPatterns()
			return memorizeResult{path: "patterns.md"}
		}
	}

	p := Pattern{
		Hash: hash, Category: req.Category, Content: req.Content, Model: req.Model,
		Tags: req.Tags, Scope: req.Scope, Metadata: req.Metadata,
		Evidence: 1, FirstSeen: now, LastSeen: now,
	}
	a.patterns = append(a.patterns, p)
	if len(a.patterns) > maxPatternEntries {
		a.prunePatterns()
	}
	a.persistPatterns()
	return memorizeResult{path: "patterns.md"}
}

// prunePatterns removes the oldest (by FirstSeen) entries down to
// maxPatternEntries.
func (a *Actor) prunePatterns() {
	for len(a.patterns) > maxPatternEntries {
		oldest := 0
		for i, p := range a.patterns {
			if p.FirstSeen.Before(a.patterns[oldest].FirstSeen) {
				oldest = i
			}
		}
		a.patterns = append(a.patterns[:oldest], a.patterns[oldest+1:]...)
	}
}

func (a *Actor) persistPatterns() {
	if a.store == nil {
		return
	}
	if err := a.store.WritePatterns(renderPatterns(a.patterns)); err != nil {
		a.logger.Warn("memoryactor: persisting patterns failed", "error", err)
	}
}

// FlushReport summarises a flush call's graduation/archival outcome.
type FlushReport struct {
	Graduated []string // pattern hashes rewritten from branch scope to codebase
	Archived  []string // pattern hashes removed and archived
	Pruned    int      // events older than 30 days removed
}

// graduateEvidence is the minimum evidence count for a branch pattern to
// graduate to codebase scope on flush.
const graduateEvidence = 3

func (a *Actor) handleFlush(branch string, prNumber int) FlushReport {
	report := FlushReport{}
	scope := "branch:" + branch

	var archived []Pattern
	var kept []Pattern
	for _, p := range a.patterns {
		if p.Scope != scope {
			kept = append(kept, p)
			continue
		}
		if p.Evidence >= graduateEvidence {
			p.Scope = "codebase"
			kept = append(kept, p)
			report.Graduated = append(report.Graduated, p.Hash)
		} else {
			archived = append(archived, p)
			report.Archived = append(report.Archived, p.Hash)
		}
	}

	if len(archived) > 0 {
		// Archive write happens first; only on success are entries removed
		// from the active pattern set.
		existing, _ := a.store.ReadArchive()
		combined := existing + renderArchiveAppend(archived, prNumber)
		if err := a.store.WriteArchive(combined); err != nil {
			a.logger.Warn("memoryactor: archiving patterns failed", "error", err)
			return report
		}
	}
	a.patterns = kept
	a.persistPatterns()

	cutoff := time.Now().AddDate(0, 0, -eventRetentionDays)
	var remaining []Event
	for _, e := range a.events {
		if e.Timestamp.Before(cutoff) {
			report.Pruned++
			continue
		}
		remaining = append(remaining, e)
	}
	a.events = remaining
	a.persistEventLog()

	return report
}

func renderArchiveAppend(patterns []Pattern, prNumber int) string {
	var b strings.Builder
	for _, p := range patterns {
		b.WriteString(fmt.Sprintf("- [archived pr=%d evidence=%d] %s\n", prNumber, p.Evidence, escapePipes(p.Content)))
	}
	return b.String()
}
