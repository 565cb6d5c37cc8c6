package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/testutil"
)

// fastRetry keeps failure-path tests from sleeping through real backoff.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestGenerator(t *testing.T, mock *testutil.MockLLM, mutate func(*GeneratorConfig)) *Generator {
	t.Helper()

	g := genkit.Init(context.Background())
	require.NotNil(t, g)
	mock.RegisterModel(g)

	cfg := GeneratorConfig{
		Genkit:      g,
		Logger:      log.NewNop(),
		ModelName:   "mock/test-model",
		RetryConfig: fastRetry(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	gen, err := NewGenerator(cfg)
	require.NoError(t, err)
	return gen
}

func question(text string) []*ai.Message {
	return []*ai.Message{ai.NewUserMessage(ai.NewTextPart(text))}
}

func TestGenerator_Batch(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback answer")
	mock.AddResponse("capital of france", "Paris is the capital of France.")
	gen := newTestGenerator(t, mock, nil)

	text, err := gen.Generate(context.Background(), question("What is the capital of France?"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", text)
}

func TestGenerator_Streaming(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("this reply arrives in several chunks")
	gen := newTestGenerator(t, mock, nil)

	var chunks []string
	text, err := gen.Generate(context.Background(), question("stream it"),
		func(_ context.Context, chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	require.NoError(t, err)

	assert.Greater(t, len(chunks), 1, "expected word-by-word delivery")
	assert.Equal(t, text, strings.Join(chunks, ""))
	assert.Equal(t, "this reply arrives in several chunks", text)
}

func TestGenerator_StreamCallbackError(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("one two three four")
	gen := newTestGenerator(t, mock, nil)

	boom := errors.New("client went away")
	_, err := gen.Generate(context.Background(), question("stream it"),
		func(_ context.Context, _ string) error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUpstreamModel)
}

func TestGenerator_EmptyResponseFallback(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("   ")
	gen := newTestGenerator(t, mock, nil)

	text, err := gen.Generate(context.Background(), question("anything"), nil)
	require.NoError(t, err)
	assert.Equal(t, fallbackResponseMessage, text)
}

func TestGenerator_SystemMessageForwarded(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("ok")
	gen := newTestGenerator(t, mock, nil)

	msgs := []*ai.Message{
		ai.NewSystemMessage(ai.NewTextPart("You are terse.")),
		ai.NewUserMessage(ai.NewTextPart("hello")),
	}
	_, err := gen.Generate(context.Background(), msgs, nil)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are terse.", calls[0].SystemText)
	assert.Equal(t, "hello", calls[0].UserMessage)
}

func TestGenerator_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailWith(errors.New("invalid request payload"))
	gen := newTestGenerator(t, mock, nil)

	start := time.Now()
	_, err := gen.Generate(context.Background(), question("anything"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUpstreamModel)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "non-retryable errors must not back off")
}

func TestGenerator_RetryableExhaustsRetries(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailWith(errors.New("upstream returned 503 unavailable"))
	gen := newTestGenerator(t, mock, nil)

	_, err := gen.Generate(context.Background(), question("anything"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrUpstreamModel)
	assert.Contains(t, err.Error(), "retries")
}

func TestGenerator_CircuitOpensAfterFailures(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailWith(errors.New("invalid request payload")) // non-retryable, one attempt per call
	gen := newTestGenerator(t, mock, func(cfg *GeneratorConfig) {
		cfg.CircuitBreakerConfig = CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
		}
	})

	for i := 0; i < 2; i++ {
		_, err := gen.Generate(context.Background(), question("anything"), nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := gen.Generate(context.Background(), question("anything"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, fault.ErrUpstreamModel)

	// Recovery is not visible until the open window elapses, even if the
	// upstream is healthy again.
	mock.FailWith(nil)
	_, err = gen.Generate(context.Background(), question("anything"), nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGenerator_CircuitRecovers(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("recovered")
	mock.FailWith(errors.New("invalid request payload"))
	gen := newTestGenerator(t, mock, func(cfg *GeneratorConfig) {
		cfg.CircuitBreakerConfig = CircuitBreakerConfig{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			Timeout:          time.Millisecond,
		}
	})

	_, err := gen.Generate(context.Background(), question("anything"), nil)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, gen.circuitBreaker.State())

	mock.FailWith(nil)
	time.Sleep(5 * time.Millisecond)

	text, err := gen.Generate(context.Background(), question("anything"), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, CircuitClosed, gen.circuitBreaker.State())
}

func TestGenerator_ContextCancellation(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("unused")
	mock.FailWith(errors.New("connection reset by peer"))
	gen := newTestGenerator(t, mock, func(cfg *GeneratorConfig) {
		cfg.RetryConfig = RetryConfig{
			MaxRetries:      5,
			InitialInterval: time.Second,
			MaxInterval:     time.Second,
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := gen.Generate(ctx, question("anything"), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "cancellation must interrupt backoff")
}

func TestNewGenerator_Validation(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	require.NotNil(t, g)

	t.Run("missing genkit", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(GeneratorConfig{Logger: log.NewNop()})
		assert.Error(t, err)
	})

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(GeneratorConfig{Genkit: g})
		assert.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()
		gen, err := NewGenerator(GeneratorConfig{Genkit: g, Logger: log.NewNop()})
		require.NoError(t, err)
		assert.Equal(t, DefaultGenerateTimeout, gen.timeout)
		assert.Equal(t, DefaultRetryConfig(), gen.retryConfig)
		assert.NotNil(t, gen.rateLimiter)
	})
}
