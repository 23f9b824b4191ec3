package httpdispatch

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestReadOpenAISSE_AccumulatesContentUntilDone(t *testing.T) {
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"hello \"}}]}\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n" +
			"data: [DONE]\n",
	)
	text, partial, term := readOpenAISSE(context.Background(), body, time.Second, time.Second)
	if term != terminateDone {
		t.Fatalf("term = %v, want terminateDone", term)
	}
	if partial {
		t.Error("expected partial=false")
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}

func TestReadOpenAISSE_SkipsKeepaliveAndComments(t *testing.T) {
	body := strings.NewReader(
		": keepalive\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
			"data: [DONE]\n",
	)
	text, _, term := readOpenAISSE(context.Background(), body, time.Second, time.Second)
	if term != terminateDone {
		t.Fatalf("term = %v", term)
	}
	if text != "ok" {
		t.Errorf("text = %q, want %q", text, "ok")
	}
}

func TestReadOpenAISSE_SkipsMalformedChunks(t *testing.T) {
	body := strings.NewReader(
		"data: not json\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
			"data: [DONE]\n",
	)
	text, _, term := readOpenAISSE(context.Background(), body, time.Second, time.Second)
	if term != terminateDone {
		t.Fatalf("term = %v", term)
	}
	if text != "ok" {
		t.Errorf("text = %q, want %q", text, "ok")
	}
}

func TestReadOpenAISSE_NoEventsIsEmpty(t *testing.T) {
	body := strings.NewReader("")
	_, _, term := readOpenAISSE(context.Background(), body, time.Second, time.Second)
	if term != terminateEmpty {
		t.Fatalf("term = %v, want terminateEmpty", term)
	}
}

func TestReadOpenAISSE_DoneWithNoContentIsEmpty(t *testing.T) {
	body := strings.NewReader("data: [DONE]\n")
	_, _, term := readOpenAISSE(context.Background(), body, time.Second, time.Second)
	if term != terminateEmpty {
		t.Fatalf("term = %v, want terminateEmpty", term)
	}
}

// blockingReader never returns, simulating a stalled upstream connection.
type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}

func TestReadOpenAISSE_FirstByteBudgetExpires(t *testing.T) {
	_, partial, term := readOpenAISSE(context.Background(), blockingReader{}, 20*time.Millisecond, time.Second)
	if term != terminateNoBytes {
		t.Fatalf("term = %v, want terminateNoBytes", term)
	}
	if partial {
		t.Error("expected partial=false with zero bytes read")
	}
}

func TestReadOpenAISSE_StallAfterPartialContent(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n"))
		// Never write [DONE]; the stall budget should fire.
	}()
	text, partial, term := readOpenAISSE(context.Background(), r, time.Second, 30*time.Millisecond)
	if term != terminatePartial {
		t.Fatalf("term = %v, want terminatePartial", term)
	}
	if !partial {
		t.Error("expected partial=true")
	}
	if text != "partial" {
		t.Errorf("text = %q, want %q", text, "partial")
	}
}

func TestReadOpenAISSE_ContextCancelledMidStream(t *testing.T) {
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n"))
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	text, partial, term := readOpenAISSE(ctx, r, time.Second, time.Second)
	if term != terminatePartial {
		t.Fatalf("term = %v, want terminatePartial", term)
	}
	if !partial || text != "x" {
		t.Errorf("text = %q, partial = %v", text, partial)
	}
}
