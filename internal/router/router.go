// Package router classifies queries as needing document retrieval or not.
//
// Classification is one deterministic-temperature model call returning a
// strict JSON verdict. The router itself reports failures as typed errors;
// the chat service collapses any failure to the fail-open default (no
// retrieval) so a broken router can never take down a chat turn.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
)

// classifyPrompt instructs the model to emit a routing verdict as JSON.
const classifyPrompt = `You are a query router for a chat system with a document retrieval capability.
Your job is to analyze the user's query and decide whether to use document retrieval
(RAG) to enhance the response or not.

Use document retrieval if:
1. The query is asking for specific information that might be in documents
2. The query refers to company/product details, data, or facts
3. The query is about specific processes, guidelines, or historical information
4. The query mentions "documents", "records", or specific document types

Do not use document retrieval if:
1. The query is a greeting or small talk
2. The query is asking for general opinions or creative content
3. The query is a follow-up that clearly relates to the conversation flow
4. The query is asking about capabilities of the chatbot itself

USER QUERY: %s

RESPONSE STRICTLY AS JSON:
{"use_rag": true/false, "reasoning": "Brief explanation of your decision"}`

// Decision is the routing verdict for one query.
type Decision struct {
	UseRetrieval bool   `json:"use_rag"`
	Reasoning    string `json:"reasoning"`
}

// FailOpen is the decision substituted when classification fails: skip
// retrieval and answer from the model alone.
func FailOpen() Decision {
	return Decision{UseRetrieval: false, Reasoning: "Error in routing decision"}
}

// Router classifies queries with a single model call.
// Safe for concurrent use.
type Router struct {
	g         *genkit.Genkit
	modelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	logger    log.Logger
}

// New creates a Router using the given model.
func New(g *genkit.Genkit, modelName string, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{g: g, modelName: modelName, logger: logger}
}

// Classify decides whether query warrants document retrieval.
//
// Errors are typed: fault.ErrUpstreamModel for a failed model call,
// fault.ErrParse when the model's output is not the required JSON object.
// Callers on the chat path substitute FailOpen() for any error.
func (r *Router) Classify(ctx context.Context, query string) (Decision, error) {
	opts := []ai.GenerateOption{
		ai.WithPrompt(classifyPrompt, query),
		// Routing must be deterministic.
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: 0}),
	}
	if r.modelName != "" {
		opts = append(opts, ai.WithModelName(r.modelName))
	}

	resp, err := genkit.Generate(ctx, r.g, opts...)
	if err != nil {
		return Decision{}, fmt.Errorf("routing call: %w: %w", fault.ErrUpstreamModel, err)
	}

	decision, err := parseDecision(resp.Text())
	if err != nil {
		return Decision{}, err
	}

	r.logger.Debug("routing decision",
		"use_retrieval", decision.UseRetrieval,
		"reasoning", decision.Reasoning)
	return decision, nil
}

// parseDecision extracts the JSON verdict from model text output.
// Tolerates markdown code fences and surrounding prose; anything without a
// decodable {...} object is a parse error.
func parseDecision(text string) (Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Decision{}, fmt.Errorf("routing output %q contains no JSON object: %w", snippet(text), fault.ErrParse)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(text[start:end+1]), &decision); err != nil {
		return Decision{}, fmt.Errorf("decoding routing output %q: %w: %w", snippet(text), fault.ErrParse, err)
	}
	return decision, nil
}

func snippet(s string) string {
	const max = 80
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
