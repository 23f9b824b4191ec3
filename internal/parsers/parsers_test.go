package parsers

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		want    string // type name via Parse smoke
		wantErr bool
	}{
		{"raw", "raw", false},
		{"", "raw", false},
		{"gemini", "gemini", false},
		{"codex", "codex", false},
		{"unknown", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Lookup(%q) = nil error, want error", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q): %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("Lookup(%q) returned nil parser", tt.name)
			}
		})
	}
}

func TestRawParser_TrimsTrailingWhitespace(t *testing.T) {
	p := rawParser{}
	got, err := p.Parse([]byte("hello world\n\n  \t"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestGeminiParser_ExtractsResponse(t *testing.T) {
	p := geminiParser{}
	got, err := p.Parse([]byte(`{"response":"the answer"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "the answer" {
		t.Errorf("got %q, want %q", got, "the answer")
	}
}

func TestGeminiParser_MissingResponseIsError(t *testing.T) {
	p := geminiParser{}
	if _, err := p.Parse([]byte(`{"other":"field"}`)); err == nil {
		t.Error("expected error for missing response field")
	}
}

func TestGeminiParser_InvalidJSON(t *testing.T) {
	p := geminiParser{}
	if _, err := p.Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCodexParser_ConcatenatesAgentMessages(t *testing.T) {
	p := codexParser{}
	stream := `{"type":"item.started","item":{"item_type":"agent_message","text":"ignored"}}
{"type":"item.completed","item":{"item_type":"agent_message","text":"hello "}}
{"type":"item.completed","item":{"item_type":"reasoning","text":"skip me"}}
{"type":"item.completed","item":{"item_type":"agent_message","text":"world"}}
`
	got, err := p.Parse([]byte(stream))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestCodexParser_SkipsMalformedLines(t *testing.T) {
	p := codexParser{}
	stream := "not json at all\n" + `{"type":"item.completed","item":{"item_type":"agent_message","text":"ok"}}`
	got, err := p.Parse([]byte(stream))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}

func TestCodexParser_NoAgentMessagesIsError(t *testing.T) {
	p := codexParser{}
	stream := `{"type":"item.completed","item":{"item_type":"reasoning","text":"thinking"}}`
	if _, err := p.Parse([]byte(stream)); err == nil {
		t.Error("expected error when no agent_message events found")
	}
}
