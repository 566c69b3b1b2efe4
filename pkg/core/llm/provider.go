// Package llm wraps the chat models that rate narrative filing sections.
package llm

import (
	"context"
	"errors"
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
}

// Option keys understood by every provider.
const (
	OptionModel       = "model"
	OptionJSONMode    = "json_mode"
	OptionTemperature = "temperature"
	OptionAPIKey      = "api_key"
)

// ErrMissingAPIKey is returned when a provider has no credentials.
var ErrMissingAPIKey = errors.New("LLM API key not configured")

func stringOption(options map[string]interface{}, key, def string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOption(options map[string]interface{}, key string) bool {
	v, _ := options[key].(bool)
	return v
}

func floatOption(options map[string]interface{}, key string, def float64) float64 {
	switch v := options[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}
