package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkarev/document-analysis-service/internal/models"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

// maxPromptChars bounds the document text included in the prompt.
const maxPromptChars = 16000

type Analyzer interface {
	Analyze(ctx context.Context, job models.AnalysisJob) (*models.AnalysisResult, error)
}

type openRouterAnalyzer struct {
	baseURL string
	apiKey  string
	model   string
	logger  *utils.Logger
	client  *http.Client
}

// NewOpenRouterAnalyzer builds the analysis backend client. The backend is
// any OpenAI-compatible chat endpoint supporting strict json_schema
// response formats.
func NewOpenRouterAnalyzer(baseURL, apiKey, model string, timeout time.Duration, logger *utils.Logger) Analyzer {
	return &openRouterAnalyzer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (a *openRouterAnalyzer) Analyze(ctx context.Context, job models.AnalysisJob) (*models.AnalysisResult, error) {
	opts := job.Options()

	text := job.DocumentText
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars] + "..."
	}

	schema, required := BuildSchema(opts)
	prompt := BuildPrompt(text, opts)

	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   "document_analysis",
				Strict: true,
				Schema: schema,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("Analysis backend error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("analysis backend returned status %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("analysis backend error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return ParseResult(chatResp.Choices[0].Message.Content, required)
}

// ParseResult validates the backend's JSON object against the required
// field list before accepting it: every required key must be present and
// no extra keys may appear.
func ParseResult(content string, required []string) (*models.AnalysisResult, error) {
	content = extractJSON(content)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis result as JSON: %w", err)
	}

	for _, key := range required {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("analysis result missing required field %q", key)
		}
	}
	if len(raw) != len(required) {
		return nil, fmt.Errorf("analysis result has %d fields, schema requires exactly %d", len(raw), len(required))
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	return &result, nil
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(content string) string {
	if len(content) > 7 && content[:3] == "```" {
		start := 0
		end := len(content)

		for i := 3; i < len(content); i++ {
			if content[i] == '\n' {
				start = i + 1
				break
			}
		}

		for i := len(content) - 1; i >= 0; i-- {
			if i >= 2 && content[i-2:i+1] == "```" {
				end = i - 2
				break
			}
		}

		if start < end {
			content = content[start:end]
		}
	}

	return content
}
