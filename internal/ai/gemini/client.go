package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/hh-screener/internal/ai"
	"github.com/spigell/hh-screener/internal/logger"
	"github.com/spigell/hh-screener/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-pro"

	defaultMaxRetries      = 5
	defaultBaseDelay       = 2 * time.Second
	defaultMaxOutputTokens = 2500
	defaultTemperature     = 0.2
)

// sleep is replaced in tests to avoid real delays.
var sleep = utils.WaitFor

// contentModels is the part of genai.Models used by the generator.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the generator settings. Zero values fall back to defaults.
type Config struct {
	Model           string        `mapstructure:"model"`
	MaxRetries      int           `mapstructure:"max-retries"`
	BaseDelay       time.Duration `mapstructure:"base-delay"`
	MaxOutputTokens int32         `mapstructure:"max-output-tokens"`
	Temperature     float32       `mapstructure:"temperature"`
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models          contentModels
	model           string
	maxRetries      int
	baseDelay       time.Duration
	maxOutputTokens int32
	temperature     float32
	logger          *zap.Logger
}

// Generation is the text returned by the model with its token usage.
type Generation struct {
	Text  string
	Usage ai.Usage
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, log *zap.Logger, apiKey string, cfg Config) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, log, cfg), nil
}

func newGenerator(models contentModels, log *zap.Logger, cfg Config) *Generator {
	g := &Generator{
		models:          models,
		model:           strings.TrimSpace(cfg.Model),
		maxRetries:      cfg.MaxRetries,
		baseDelay:       cfg.BaseDelay,
		maxOutputTokens: cfg.MaxOutputTokens,
		temperature:     cfg.Temperature,
	}

	if g.model == "" {
		g.model = defaultModel
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.baseDelay <= 0 {
		g.baseDelay = defaultBaseDelay
	}
	if g.maxOutputTokens <= 0 {
		g.maxOutputTokens = defaultMaxOutputTokens
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	g.logger = logger.WithCommonFields(log, providerName, g.model)

	return g
}

// Generate sends the system instruction and prompt to Gemini and asks for a JSON answer.
// Throttling and server errors are retried with exponential backoff.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (*Generation, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  g.maxOutputTokens,
		Temperature:      genai.Ptr(g.temperature),
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	var failures []error
	for attempt := 0; ; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			return g.collect(resp)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", ai.ErrGeneration, err)
		}

		failures = append(failures, fmt.Errorf("attempt %d: %w", attempt+1, err))
		if attempt >= g.maxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ai.ErrThrottled, attempt+1, errors.Join(failures...))
		}

		delay := utils.Backoff(g.baseDelay, attempt, 0)
		g.logger.Warn("gemini request throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (g *Generator) collect(resp *genai.GenerateContentResponse) (*Generation, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ai.ErrGeneration)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return nil, fmt.Errorf("%w: gemini api returned empty response", ai.ErrParse)
	}

	generation := &Generation{Text: output}
	if usage := resp.UsageMetadata; usage != nil {
		generation.Usage = ai.Usage{
			PromptTokens: int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}

	return generation, nil
}

func isRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return true
		}
		switch strings.ToUpper(apiErr.Status) {
		case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
			return true
		}
		return false
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code >= http.StatusInternalServerError
	}

	return false
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
