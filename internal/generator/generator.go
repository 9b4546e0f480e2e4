// Package generator produces answers from a question and retrieved context
// using a hosted OpenAI-compatible chat completion endpoint.
//
// Groq is the default endpoint:
//
//	gen, err := generator.New(generator.Config{
//	    APIKey: os.Getenv("GROQ_API_KEY"),
//	}, logger)
//	answer, err := gen.Generate(ctx, "What is RAG?", generator.BuildContext(chunks))
package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults for the hosted endpoint.
const (
	DefaultBaseURL       = "https://api.groq.com/openai/v1"
	DefaultModel         = "llama3-70b-8192"
	DefaultTemperature   = 0.3
	DefaultMaxTokens     = 400
	DefaultTimeout       = 60 * time.Second
	DefaultRatePerMinute = 30
	DefaultMaxRetries    = 2
	defaultBaseBackoff   = time.Second
)

var (
	// ErrGeneration indicates the completion call failed or returned nothing.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

var tracer = otel.Tracer("ragvisor.generator")

// Generator answers a question from the supplied context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Config configures the LLM generator.
type Config struct {
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key" json:"-"` // Never serialize API keys
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`

	// Temperature is nil for DefaultTemperature; 0 is a valid setting.
	Temperature *float64 `koanf:"temperature"`

	// RatePerMinute caps outgoing requests. Negative disables limiting.
	RatePerMinute int `koanf:"rate_per_minute"`
	MaxRetries    int `koanf:"max_retries"`

	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration `koanf:"-"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RatePerMinute == 0 {
		c.RatePerMinute = DefaultRatePerMinute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %v", ErrInvalidConfig, *c.Temperature)
	}
	return nil
}

// LLMGenerator implements Generator over langchaingo's OpenAI client.
type LLMGenerator struct {
	llm     llms.Model
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Generator = (*LLMGenerator)(nil)

// New creates a generator for the configured endpoint.
func New(cfg Config, logger *zap.Logger) (*LLMGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating client: %v", ErrInvalidConfig, err)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.RatePerMinute) / 60)
		burst = max(1, cfg.RatePerMinute/10)
	}

	return &LLMGenerator{
		llm:     llm,
		config:  cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Generate sends the system message and rendered prompt and returns the
// trimmed completion. Every failure wraps ErrGeneration.
func (g *LLMGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := tracer.Start(ctx, "LLMGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.config.Model),
		attribute.Int("context_length", len(contextText)),
	)

	answer, err := g.generate(ctx, question, contextText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "success")
	return answer, nil
}

func (g *LLMGenerator) generate(ctx context.Context, question, contextText string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrGeneration, err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemMessage),
		llms.TextParts(schema.ChatMessageTypeHuman, BuildPrompt(question, contextText)),
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.config.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrGeneration, ctx.Err())
			}
		}

		resp, err := g.llm.GenerateContent(ctx, messages,
			llms.WithTemperature(*g.config.Temperature),
			llms.WithMaxTokens(g.config.MaxTokens),
		)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response", ErrGeneration)
			}
			answer := strings.TrimSpace(resp.Choices[0].Content)
			if answer == "" {
				return "", fmt.Errorf("%w: empty completion", ErrGeneration)
			}
			return answer, nil
		}

		lastErr = err
		if !isRetryableError(ctx, err) {
			return "", fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		g.logger.Warn("generation attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("%w: max retries exceeded: %w", ErrGeneration, lastErr)
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// isRetryableError reports whether err is a rate limit, server error or
// network failure. Caller cancellation is never retried.
func isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == http.StatusTooManyRequests || code >= 500
	}
	return false
}
