package asyncpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dsado88/squall/internal/dispatch"
)

// openAIResponsesDialect speaks the OpenAI Responses API: POST
// /v1/responses with background:true,store:true, then GET
// /v1/responses/{id}.
type openAIResponsesDialect struct{}

func (openAIResponsesDialect) backoffBase() time.Duration { return 5 * time.Second }
func (openAIResponsesDialect) backoffCap() time.Duration  { return 60 * time.Second }
func (openAIResponsesDialect) providerName() string       { return "openai" }

type openAIResponsesLaunchBody struct {
	Model      string    `json:"model"`
	Input      string    `json:"input"`
	Background bool      `json:"background"`
	Store      bool      `json:"store"`
	Tools      []toolRef `json:"tools"`
}

type toolRef struct {
	Type string `json:"type"`
}

func (openAIResponsesDialect) launchRequest(req dispatch.Request, backend dispatch.AsyncPollBackend) (*http.Request, error) {
	body, err := jsonBody(openAIResponsesLaunchBody{
		Model:      req.ProviderModelID,
		Input:      req.Prompt,
		Background: true,
		Store:      true,
		Tools:      []toolRef{{Type: "web_search_preview"}},
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, backend.BaseURL+"/v1/responses", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if backend.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+backend.APIKey)
	}
	return httpReq, nil
}

func (openAIResponsesDialect) extractJobID(body []byte) (string, error) {
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

func (openAIResponsesDialect) pollRequest(ctx context.Context, backend dispatch.AsyncPollBackend, jobID string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.BaseURL+"/v1/responses/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	if backend.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+backend.APIKey)
	}
	return httpReq, nil
}

func (openAIResponsesDialect) parseStatus(body []byte) (pollOutcome, error) {
	var doc struct {
		Status     string `json:"status"`
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return pollOutcome{}, err
	}
	switch doc.Status {
	case "queued", "in_progress":
		return pollOutcome{state: stateInProgress}, nil
	case "completed":
		return pollOutcome{state: stateCompleted, text: doc.OutputText}, nil
	case "failed", "incomplete", "cancelled":
		return pollOutcome{state: stateFailed, msg: doc.Status}, nil
	case "":
		return pollOutcome{}, fmt.Errorf("missing status field")
	default:
		return pollOutcome{state: stateInProgress}, nil
	}
}
