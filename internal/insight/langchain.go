package insight

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported model providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Defaults for the local model backend.
const (
	DefaultModel       = "llama3:latest"
	DefaultServerURL   = "http://localhost:11434"
	DefaultTemperature = 0.1
)

// BackendConfig selects and configures a model backend.
type BackendConfig struct {
	Provider  string
	Model     string
	ServerURL string
	// APIKey is only used by hosted providers.
	APIKey     string
	HTTPClient *http.Client
}

// LangChainCompleter adapts a langchaingo model to the Completer interface.
type LangChainCompleter struct {
	llm   llms.Model
	model string
}

var _ Completer = (*LangChainCompleter)(nil)

// NewLangChainCompleter builds a completer for the configured provider.
func NewLangChainCompleter(cfg BackendConfig) (*LangChainCompleter, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "", ProviderOllama:
		if cfg.ServerURL == "" {
			cfg.ServerURL = DefaultServerURL
		}
		opts := []ollama.Option{
			ollama.WithServerURL(cfg.ServerURL),
			ollama.WithModel(cfg.Model),
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, ollama.WithHTTPClient(cfg.HTTPClient))
		}
		llm, err = ollama.New(opts...)
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.ServerURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.ServerURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", cfg.Provider, err)
	}

	return &LangChainCompleter{llm: llm, model: cfg.Model}, nil
}

// Model returns the configured model name.
func (c *LangChainCompleter) Model() string {
	return c.model
}

// Complete implements Completer.
func (c *LangChainCompleter) Complete(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
}
