package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// indexReadme is the fixed content written to .squall/memory/index.md the
// first time anything is persisted to the memory directory.
const indexReadme = `# squall memory

This directory is owned by squall's memory actor. Do not edit these files
by hand; they are rewritten atomically on every flush.

- models.md — per-model event log and summary statistics.
- patterns.md — curated patterns reinforced across reviews.
- tactics.md — prompt tactics (reserved; not yet populated by any operation).
- archive.md — branch-scoped patterns archived on flush.
`

// MemoryStore persists the memory actor's markdown artefacts under
// MemoryDir(dataDir). It satisfies memoryactor.Store structurally.
type MemoryStore struct {
	dir       string
	writer    *Writer
	indexOnce sync.Once
}

func NewMemoryStore(dataDir string) *MemoryStore {
	return &MemoryStore{dir: MemoryDir(dataDir), writer: NewWriter()}
}

func (s *MemoryStore) ensureIndex() {
	s.indexOnce.Do(func() {
		path := filepath.Join(s.dir, "index.md")
		if _, err := os.Stat(path); err == nil {
			return
		}
		_, _ = s.writer.WriteFile(s.dir, "index.md", []byte(indexReadme))
	})
}

func (s *MemoryStore) WriteEventLog(markdown string) error {
	s.ensureIndex()
	_, err := s.writer.WriteFile(s.dir, "models.md", []byte(markdown))
	return err
}

func (s *MemoryStore) WritePatterns(markdown string) error {
	s.ensureIndex()
	_, err := s.writer.WriteFile(s.dir, "patterns.md", []byte(markdown))
	return err
}

func (s *MemoryStore) WriteArchive(markdown string) error {
	s.ensureIndex()
	_, err := s.writer.WriteFile(s.dir, "archive.md", []byte(markdown))
	return err
}

func (s *MemoryStore) ReadArchive() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "archive.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("persist: reading archive: %w", err)
	}
	return string(data), nil
}
