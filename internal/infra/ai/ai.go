// Package ai adapts hosted model APIs to the recovery Generator interface.
package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/rescue/internal/recovery"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrDisabled is returned by New when no provider is configured.
var ErrDisabled = errors.New("ai provider disabled")

// Config selects and configures the model provider.
type Config struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// New builds the generator named by cfg.Provider.
func New(cfg Config) (recovery.Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, ErrDisabled
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	case ProviderAnthropic:
		return NewAnthropicGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func maxTokens(requested int, configured int64) int64 {
	if requested > 0 && (configured <= 0 || int64(requested) < configured) {
		return int64(requested)
	}
	if configured > 0 {
		return configured
	}
	return 1024
}
