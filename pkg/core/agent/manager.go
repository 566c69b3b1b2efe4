package agent

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"filing_rating/pkg/core/llm"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// Config routes agents to LLM providers (config/models.yaml).
type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Agents         map[string]AgentConfig `yaml:"agents"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Model       string `yaml:"model"`    // Optional model override
	Description string `yaml:"description"`
}

// LoadConfig reads the provider routing file. A missing file yields the
// default routing (gemini).
func LoadConfig(path string) (Config, error) {
	cfg := Config{ActiveProvider: "gemini"}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultProviders returns the built-in providers keyed by name.
func DefaultProviders() map[string]llm.Provider {
	return map[string]llm.Provider{
		"gemini":   &llm.GeminiProvider{},
		"deepseek": llm.NewDeepSeekProvider(),
		"qwen":     llm.NewQwenProvider(),
	}
}

type Manager struct {
	mu        sync.RWMutex
	config    Config
	providers map[string]llm.Provider
	logger    zerolog.Logger
}

// NewManager creates a manager. A nil providers map uses DefaultProviders.
func NewManager(config Config, providers map[string]llm.Provider, logger zerolog.Logger) *Manager {
	if providers == nil {
		providers = DefaultProviders()
	}
	return &Manager{
		config:    config,
		providers: providers,
		logger:    logger,
	}
}

// resolve returns the provider name and model override for an agent.
func (m *Manager) resolve(agentType string) (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 1. Check for agent-specific override
	if agentConfig, ok := m.config.Agents[agentType]; ok && agentConfig.Provider != "" {
		if _, ok := m.providers[agentConfig.Provider]; ok {
			return agentConfig.Provider, agentConfig.Model
		}
	}

	model := ""
	if agentConfig, ok := m.config.Agents[agentType]; ok {
		model = agentConfig.Model
	}
	return m.config.ActiveProvider, model
}

// GetProvider returns the provider routed for agentType, or nil when the
// configured provider is unknown.
func (m *Manager) GetProvider(agentType string) llm.Provider {
	name, _ := m.resolve(agentType)
	return m.GetProviderByName(name)
}

// GetProviderByName retrieves a provider instance by its specific name (e.g. "deepseek", "gemini")
func (m *Manager) GetProviderByName(name string) llm.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[name]
}

// ExecutePrompt handles instruction adaptation before sending to the model
func (m *Manager) ExecutePrompt(ctx context.Context, agentType string, rawPrompt string, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	name, model := m.resolve(agentType)
	provider := m.GetProviderByName(name)
	if provider == nil {
		return "", fmt.Errorf("provider %q for agent %q not registered", name, agentType)
	}

	opts := make(map[string]interface{}, len(options)+1)
	for k, v := range options {
		opts[k] = v
	}
	if model != "" {
		if _, set := opts[llm.OptionModel]; !set {
			opts[llm.OptionModel] = model
		}
	}

	m.logger.Debug().
		Str("agent", agentType).
		Str("provider", name).
		Int("prompt_chars", len(rawPrompt)).
		Msg("Executing prompt")

	// Adapt instructions based on the model's specialized "teaching" style
	adaptedSystemPrompt := provider.AdaptInstructions(rawSystemPrompt)

	return provider.GenerateResponse(ctx, rawPrompt, adaptedSystemPrompt, opts)
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	m.logger.Info().Str("provider", newProvider).Msg("Global provider switched")
	return nil
}

func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// AvailableProviders lists registered provider names in sorted order.
func (m *Manager) AvailableProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
