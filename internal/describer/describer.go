package describer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkarev/document-analysis-service/internal/utils"
)

const descriptionPrompt = "Describe the content of this image in a concise manner."

// Describer turns an image blob into a short natural-language description.
// Describe never fails: any transport or backend problem is embedded in the
// returned string so one bad image cannot abort extraction of the rest of
// the document.
type Describer interface {
	Describe(ctx context.Context, imageName string, imageData []byte) string
}

type visionDescriber struct {
	baseURL string
	apiKey  string
	model   string
	logger  *utils.Logger
	client  *http.Client
}

// NewVisionDescriber builds a Describer backed by an OpenAI-compatible
// vision endpoint. Each call is bounded by the given timeout.
func NewVisionDescriber(baseURL, apiKey, model string, timeout time.Duration, logger *utils.Logger) Describer {
	return &visionDescriber{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type visionRequest struct {
	Model     string          `json:"model"`
	Messages  []visionMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type visionMessage struct {
	Role    string       `json:"role"`
	Content []visionPart `json:"content"`
}

type visionPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (d *visionDescriber) Describe(ctx context.Context, imageName string, imageData []byte) string {
	description, err := d.describe(ctx, imageData)
	if err != nil {
		d.logger.Warn("Image description failed", "image", imageName, "error", err)
		return fmt.Sprintf("Error describing image %s: %v", imageName, err)
	}
	return description
}

func (d *visionDescriber) describe(ctx context.Context, imageData []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageData)

	reqBody := visionRequest{
		Model: d.model,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []visionPart{
					{Type: "text", Text: descriptionPrompt},
					{
						Type:     "image_url",
						ImageURL: &visionImageURL{URL: "data:image/png;base64," + encoded},
					},
				},
			},
		},
		MaxTokens: 100,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision API returned status %d", resp.StatusCode)
	}

	var visionResp visionResponse
	if err := json.Unmarshal(body, &visionResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if visionResp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", visionResp.Error.Message)
	}

	if len(visionResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return visionResp.Choices[0].Message.Content, nil
}
