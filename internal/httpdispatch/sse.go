package httpdispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// maxAccumulator bounds how much streamed content a single dispatch will
// buffer, independent of the response-body cap checked before reading.
const maxAccumulator = 8 << 20 // 8 MiB

// scannerBufSize matches the teacher's SSE reader: events can be larger
// than bufio.Scanner's default token size.
const scannerBufSize = 1 << 20 // 1 MiB

type terminationReason int

const (
	terminateDone terminationReason = iota
	terminateNoBytes
	terminatePartial
	terminateEmpty
	terminateUpstream
)

type sseChunk struct {
	content string
	done    bool
	errMsg  string
}

// readOpenAISSE scans an OpenAI-compatible "data: {...}" SSE body,
// returning the accumulated content, whether it is partial, and why the
// read stopped. It never blocks past ctx's deadline, the first-byte
// budget, or the inter-event stall budget.
func readOpenAISSE(ctx context.Context, body io.Reader, firstByte, stall time.Duration) (string, bool, terminationReason) {
	lines := make(chan string, 16)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), scannerBufSize)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	var acc strings.Builder
	gotAnyEvent := false
	gotAnyContent := false
	budget := firstByte

	for {
		timer := time.NewTimer(budget)
		select {
		case <-ctx.Done():
			timer.Stop()
			if gotAnyContent {
				return acc.String(), true, terminatePartial
			}
			return "", false, terminateNoBytes

		case <-timer.C:
			if gotAnyContent {
				return acc.String(), true, terminatePartial
			}
			return "", false, terminateNoBytes

		case line, ok := <-lines:
			timer.Stop()
			if !ok {
				if err := <-scanErr; err != nil {
					if gotAnyContent {
						return acc.String(), true, terminatePartial
					}
					return "", false, terminateUpstream
				}
				if !gotAnyEvent {
					return "", false, terminateEmpty
				}
				if gotAnyContent {
					return acc.String(), true, terminatePartial
				}
				return "", false, terminateEmpty
			}

			budget = stall
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, ":") {
				continue // keepalive / comment line
			}
			data, found := strings.CutPrefix(line, "data:")
			if !found {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				if !gotAnyContent {
					return "", false, terminateEmpty
				}
				return acc.String(), false, terminateDone
			}

			gotAnyEvent = true
			chunk, ok := parseOpenAIChunk(data)
			if !ok {
				continue // malformed JSON, silently skipped
			}
			if chunk.content != "" {
				gotAnyContent = true
				if acc.Len()+len(chunk.content) <= maxAccumulator {
					acc.WriteString(chunk.content)
				}
			}
		}
	}
}

func parseOpenAIChunk(data string) (sseChunk, bool) {
	var doc struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return sseChunk{}, false
	}
	if len(doc.Choices) == 0 {
		return sseChunk{}, true
	}
	return sseChunk{content: doc.Choices[0].Delta.Content}, true
}
