package asyncpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dsado88/squall/internal/dispatch"
)

// geminiInteractionsDialect speaks the Gemini Interactions v1beta API:
// POST /v1beta/interactions with {agent,input,background:true} and an
// x-goog-api-key header, then GET /v1beta/interactions/{id}.
type geminiInteractionsDialect struct{}

func (geminiInteractionsDialect) backoffBase() time.Duration { return 45 * time.Second }
func (geminiInteractionsDialect) backoffCap() time.Duration  { return 120 * time.Second }
func (geminiInteractionsDialect) providerName() string       { return "gemini" }

type geminiLaunchBody struct {
	Agent      string `json:"agent"`
	Input      string `json:"input"`
	Background bool   `json:"background"`
}

func (geminiInteractionsDialect) launchRequest(req dispatch.Request, backend dispatch.AsyncPollBackend) (*http.Request, error) {
	body, err := jsonBody(geminiLaunchBody{
		Agent:      req.ProviderModelID,
		Input:      req.Prompt,
		Background: true,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, backend.BaseURL+"/v1beta/interactions", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if backend.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", backend.APIKey)
	}
	return httpReq, nil
}

func (geminiInteractionsDialect) extractJobID(body []byte) (string, error) {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if doc.ID == "" {
		return "", fmt.Errorf("missing id field")
	}
	return doc.ID, nil
}

func (geminiInteractionsDialect) pollRequest(ctx context.Context, backend dispatch.AsyncPollBackend, jobID string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.BaseURL+"/v1beta/interactions/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	if backend.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", backend.APIKey)
	}
	return httpReq, nil
}

// geminiOutput is one element of the Interactions "outputs" array.
type geminiOutput struct {
	Text string `json:"text"`
}

func (geminiInteractionsDialect) parseStatus(body []byte) (pollOutcome, error) {
	var doc struct {
		Status  string         `json:"status"`
		Outputs []geminiOutput `json:"outputs"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return pollOutcome{}, err
	}
	switch doc.Status {
	case "in_progress":
		return pollOutcome{state: stateInProgress}, nil
	case "completed":
		// The API is assumed to guarantee ordering; this reads the last
		// element of outputs[]. If a future version batches multi-step
		// outputs non-monotonically this assumption breaks.
		if len(doc.Outputs) == 0 {
			return pollOutcome{}, fmt.Errorf("completed with no outputs")
		}
		return pollOutcome{state: stateCompleted, text: doc.Outputs[len(doc.Outputs)-1].Text}, nil
	case "failed", "cancelled":
		msg := doc.Status
		if doc.Error != nil && doc.Error.Message != "" {
			msg = doc.Error.Message
		}
		return pollOutcome{state: stateFailed, msg: msg}, nil
	case "":
		return pollOutcome{}, fmt.Errorf("missing status field")
	default:
		return pollOutcome{state: stateInProgress}, nil
	}
}
