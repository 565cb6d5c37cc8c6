package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
)

// fallbackResponseMessage is returned when the model produces an empty
// response.
const fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// StreamCallback receives each incremental text fragment of a streamed
// response, in generation order. Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, chunk string) error

// GeneratorConfig contains all parameters for the Generator.
type GeneratorConfig struct {
	Genkit    *genkit.Genkit
	Logger    log.Logger
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"

	Temperature float64       // sampling temperature for replies
	Timeout     time.Duration // per-call deadline; 0 = DefaultGenerateTimeout

	RetryConfig          RetryConfig          // zero-value uses defaults
	CircuitBreakerConfig CircuitBreakerConfig // zero-value uses defaults
	RateLimiter          *rate.Limiter        // nil = default limiter
}

// DefaultGenerateTimeout bounds a single completion call, streaming
// included.
const DefaultGenerateTimeout = 2 * time.Minute

func (cfg GeneratorConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Generator produces completions over one normalized message-list path,
// batch or streamed, behind a rate limiter, bounded retries, and a circuit
// breaker. Safe for concurrent use; all configuration is captured immutably
// at construction.
type Generator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	timeout     time.Duration

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	logger log.Logger
}

// NewGenerator creates a Generator with the given configuration.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}

	// Default: 10 requests/sec sustained, burst of 30.
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	return &Generator{
		g:              cfg.Genkit,
		modelName:      cfg.ModelName,
		temperature:    cfg.Temperature,
		timeout:        timeout,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,
		logger:         cfg.Logger,
	}, nil
}

// Generate produces the completion for the given message sequence.
//
// With a nil callback the call is batch: the full text returns at once.
// With a callback, fragments are delivered as the model emits them and the
// concatenated text is still returned at the end. Cancellation of ctx stops
// upstream consumption mid-stream.
func (g *Generator) Generate(ctx context.Context, messages []*ai.Message, callback StreamCallback) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: g.temperature}),
	}
	if g.modelName != "" {
		opts = append(opts, ai.WithModelName(g.modelName))
	}

	var streamed bool
	if callback != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			// Stop consuming upstream output once the client is gone.
			if err := ctx.Err(); err != nil {
				return err
			}
			streamed = true
			return callback(ctx, chunk.Text())
		}))
	}

	if err := g.circuitBreaker.Allow(); err != nil {
		g.logger.Warn("circuit breaker is open, rejecting generation",
			"state", g.circuitBreaker.State().String())
		return "", fmt.Errorf("service unavailable: %w: %w", fault.ErrUpstreamModel, err)
	}

	resp, err := g.generateWithRetry(ctx, opts, &streamed)
	if err != nil {
		g.circuitBreaker.Failure()
		return "", fmt.Errorf("generating response: %w: %w", fault.ErrUpstreamModel, err)
	}
	g.circuitBreaker.Success()

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		g.logger.Warn("model returned empty response")
		text = fallbackResponseMessage
	}
	return text, nil
}
