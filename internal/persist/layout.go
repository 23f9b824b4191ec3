package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dsado88/squall/internal/clidispatch"
)

const maxFilenameBytes = 255

var unsafeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SafeModelName sanitises a model key for use in a filename component.
func SafeModelName(model string) string {
	return unsafeFilenameChar.ReplaceAllString(model, "_")
}

// Layout writes squall's on-disk artefacts under a review caller's working
// directory, following .squall/{reviews,research,raw}/….
type Layout struct {
	writer *Writer
}

func NewLayout() *Layout {
	return &Layout{writer: NewWriter()}
}

// WriteReview persists a review response JSON to
// .squall/reviews/{ts_ms}_{pid}_{seq}.json.
func (l *Layout) WriteReview(workingDir string, response any) (string, error) {
	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return "", fmt.Errorf("persist: marshalling review: %w", err)
	}
	name := fmt.Sprintf("%d_%d_%d.json", time.Now().UnixMilli(), os.Getpid(), NextSeq())
	return l.writer.WriteFile(filepath.Join(workingDir, ".squall", "reviews"), name, data)
}

// WriteResearch persists a completed async-poll payload to
// .squall/research/{ts_ms}_{seq}_{safe_model}.json.
func (l *Layout) WriteResearch(workingDir, model string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("persist: marshalling research: %w", err)
	}
	prefix := fmt.Sprintf("%d_%d_", time.Now().UnixMilli(), NextSeq())
	name := prefix + ClampFilename(SafeModelName(model), maxFilenameBytes-len(prefix)-len(".json")) + ".json"
	return l.writer.WriteFile(filepath.Join(workingDir, ".squall", "research"), name, data)
}

// WriteRaw persists a raw CLI capture envelope to
// .squall/raw/{ts_ms}_{pid}_{seq}_{safe_model}.json. Persistence is
// fire-and-forget; callers must not let a failure affect the dispatch.
func (l *Layout) WriteRaw(workingDir, model string, envelope any) {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return
	}
	prefix := fmt.Sprintf("%d_%d_%d_", time.Now().UnixMilli(), os.Getpid(), NextSeq())
	name := prefix + ClampFilename(SafeModelName(model), maxFilenameBytes-len(prefix)-len(".json")) + ".json"
	_, _ = l.writer.WriteFile(filepath.Join(workingDir, ".squall", "raw"), name, data)
}

// ResearchPersisterForDir binds a Layout to one working directory so it
// satisfies asyncpoll.ResearchPersister's single-model-argument signature;
// the review executor constructs one per dispatch.
type ResearchPersisterForDir struct {
	Layout     *Layout
	WorkingDir string
}

func (p ResearchPersisterForDir) PersistResearch(model string, payload any) (string, error) {
	return p.Layout.WriteResearch(p.WorkingDir, model, payload)
}

// RawPersisterAdapter satisfies clidispatch.RawPersister.
type RawPersisterAdapter struct {
	Layout *Layout
}

func (p RawPersisterAdapter) PersistRaw(workingDir string, envelope clidispatch.RawEnvelope) {
	p.Layout.WriteRaw(workingDir, envelope.Model, envelope)
}

// memoryDir is fixed, not rooted at a caller's working directory: the
// memory actor owns one process-wide location.
func MemoryDir(dataDir string) string {
	return filepath.Join(dataDir, ".squall", "memory")
}
