package generator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Fixed models and request bounds used for every run.
const (
	TextModel        = "gpt-4o-mini"
	ImageModel       = "dall-e-3"
	MaxTokens        = 1500
	ImageSize        = "1024x1024"
	ImageQuality     = "standard"
	RequestTimeout   = 60 * time.Second
	ValidateTimeout  = 10 * time.Second
	defaultProvider  = "openai"
	providerDeepSeek = "deepseek"
	providerMock     = "mock"
)

// TextGenerator 抽象文本补全客户端，便于替换/Mock。
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator synthesizes one image and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

func (s *LLMSettings) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return RequestTimeout
}

// NewClients builds the text and image clients for the configured provider.
func NewClients(cfg *LLMSettings) (TextGenerator, ImageGenerator, error) {
	if cfg == nil {
		return nil, nil, errors.New("llm config is nil")
	}
	provider := cfg.Provider
	if provider == "" {
		provider = defaultProvider
	}
	switch provider {
	case providerMock:
		return MockLLM{}, MockImage{}, nil
	case providerDeepSeek:
		// OpenAI 兼容网关，必须显式提供 base_url。
		if cfg.BaseURL == "" {
			return nil, nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", provider)
		}
		fallthrough
	case defaultProvider:
		text, err := NewOpenAIText(cfg)
		if err != nil {
			return nil, nil, err
		}
		image, err := NewOpenAIImage(cfg)
		if err != nil {
			return nil, nil, err
		}
		return text, image, nil
	default:
		return nil, nil, fmt.Errorf("llm provider %s not supported", provider)
	}
}
