// Package parsers converts raw CLI stdout into review text, one parser per
// provider output shape.
package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parser extracts review text from a CLI provider's stdout.
type Parser interface {
	Parse(stdout []byte) (string, error)
}

// Registry of named parsers. "raw" is always present and is the default
// for CLI model entries that name no parser.
var named = map[string]Parser{
	"raw":    rawParser{},
	"gemini": geminiParser{},
	"codex":  codexParser{},
}

// Lookup resolves a parser by name. An empty name resolves to "raw". An
// unknown non-empty name is an error — the registry must not silently
// fall back.
func Lookup(name string) (Parser, error) {
	if name == "" {
		name = "raw"
	}
	p, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("parsers: unknown parser %q", name)
	}
	return p, nil
}

// rawParser passes stdout through unmodified, trimmed of trailing
// whitespace. It is the fallback for CLI providers that emit plain text.
type rawParser struct{}

func (rawParser) Parse(stdout []byte) (string, error) {
	return strings.TrimRight(string(stdout), " \t\r\n"), nil
}

// geminiParser extracts the top-level "response" field from a single
// Gemini CLI JSON document.
type geminiParser struct{}

func (geminiParser) Parse(stdout []byte) (string, error) {
	var doc struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if doc.Response == "" {
		return "", fmt.Errorf("gemini: missing response field")
	}
	return doc.Response, nil
}

// codexParser concatenates the text of every "item.completed" agent_message
// event in a Codex JSONL stream, in emission order.
type codexParser struct{}

type codexEvent struct {
	Type string `json:"type"`
	Item struct {
		Type string `json:"item_type"`
		Text string `json:"text"`
	} `json:"item"`
}

func (codexParser) Parse(stdout []byte) (string, error) {
	var b strings.Builder
	found := false
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // malformed lines are skipped, not fatal
		}
		if ev.Type != "item.completed" || ev.Item.Type != "agent_message" {
			continue
		}
		b.WriteString(ev.Item.Text)
		found = true
	}
	if !found {
		return "", fmt.Errorf("codex: no agent_message events found")
	}
	return b.String(), nil
}
