package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ChatCompletionsProvider talks to any OpenAI-compatible /chat/completions
// endpoint. DeepSeek and Qwen (DashScope compatible mode) both use it.
type ChatCompletionsProvider struct {
	Name         string
	URL          string
	DefaultModel string
	APIKeyEnv    []string // checked in order
	APIKey       string
	HTTPClient   *http.Client
}

var _ Provider = (*ChatCompletionsProvider)(nil)

// NewDeepSeekProvider returns a provider for the DeepSeek chat API.
func NewDeepSeekProvider() *ChatCompletionsProvider {
	return &ChatCompletionsProvider{
		Name:         "deepseek",
		URL:          "https://api.deepseek.com/chat/completions",
		DefaultModel: "deepseek-chat",
		APIKeyEnv:    []string{"DEEPSEEK_API_KEY"},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *ChatCompletionsProvider) apiKey(options map[string]interface{}) string {
	if key := stringOption(options, OptionAPIKey, ""); key != "" {
		return key
	}
	if p.APIKey != "" {
		return p.APIKey
	}
	for _, env := range p.APIKeyEnv {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func (p *ChatCompletionsProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := p.apiKey(options)
	if apiKey == "" {
		return "", fmt.Errorf("%s: %w (set %v)", p.Name, ErrMissingAPIKey, p.APIKeyEnv)
	}

	reqBody := chatRequest{
		Model: stringOption(options, OptionModel, p.DefaultModel),
		Messages: []Message{
			{Content: systemPrompt, Role: "system"},
			{Content: prompt, Role: "user"},
		},
		MaxTokens:   4096,
		Temperature: floatOption(options, OptionTemperature, 1.0),
	}
	if boolOption(options, OptionJSONMode) {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal request: %w", p.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("%s: failed to create request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: API call failed: %w", p.Name, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%s: failed to read body: %w", p.Name, err)
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: API error: status=%d body=%s", p.Name, res.StatusCode, truncate(string(body), 512))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%s: failed to decode response: %w", p.Name, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", p.Name)
	}

	return response.Choices[0].Message.Content, nil
}

func (p *ChatCompletionsProvider) AdaptInstructions(raw string) string {
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
