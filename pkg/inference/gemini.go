// pkg/inference/gemini.go
package inference

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pixelpilot/internal/config"
)

// GeminiClient implements ModelClient against the Gemini API.
type GeminiClient struct {
	logger *zap.Logger
	client *genai.Client
	model  string
	cfg    *genai.GenerateContentConfig
}

// NewGeminiClient creates a client for the configured model. The API key
// falls back to GEMINI_API_KEY when not set in the config. The system
// instruction is fixed for the client's lifetime.
func NewGeminiClient(ctx context.Context, logger *zap.Logger, cfg config.LLMConfig, systemInstruction string) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key missing: set llm.api_key or GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	if systemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	logger.Info("Gemini client initialized", zap.String("model", cfg.Model))
	return &GeminiClient{
		logger: logger.Named("gemini"),
		client: client,
		model:  cfg.Model,
		cfg:    genCfg,
	}, nil
}

// Generate submits the content list and returns the accumulated text of the
// first candidate.
func (c *GeminiClient) Generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return text, nil
}
