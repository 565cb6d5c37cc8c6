// Package chat orchestrates one conversational turn: route the query,
// conditionally retrieve grounding chunks, assemble the prompt, generate the
// reply, and update conversation state.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/prompt"
	"github.com/bogachat/boga/internal/retrieve"
	"github.com/bogachat/boga/internal/router"
	"github.com/bogachat/boga/internal/store"
)

// ErrNoUserMessage indicates the request carried no user turn to answer.
var ErrNoUserMessage = errors.New("no user message in request")

// forcedReasoning annotates routing decisions the caller made for us.
const forcedReasoning = "Requested by caller"

// Request is one chat turn.
type Request struct {
	Messages       []conversation.Message
	ConversationID string // empty = start a new conversation
	UseRAG         *bool  // nil = consult the router; explicit bool forces the path
}

// Result is the outcome of one chat turn.
type Result struct {
	Response       string
	ConversationID string
	Documents      []store.Match // grounding chunks, empty on the plain path
	UseRAG         bool
	Routing        router.Decision
}

// StreamMeta identifies the turn a streamed fragment belongs to. Routing and
// retrieval complete before generation starts, so every fragment of one turn
// carries identical metadata.
type StreamMeta struct {
	ConversationID string
	Documents      []store.Match
	Routing        router.Decision
}

// StreamFunc receives each generated fragment together with the turn's
// metadata.
type StreamFunc func(ctx context.Context, chunk string, meta StreamMeta) error

// QueryRouter decides whether a query warrants retrieval.
type QueryRouter interface {
	Classify(ctx context.Context, query string) (router.Decision, error)
}

// ChunkRetriever finds chunks semantically similar to a query.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, opts ...retrieve.Option) ([]store.Match, error)
}

// Completer produces the reply text for an assembled message sequence.
type Completer interface {
	Generate(ctx context.Context, messages []*ai.Message, callback StreamCallback) (string, error)
}

// ServiceConfig contains all parameters for the chat Service.
type ServiceConfig struct {
	Router        QueryRouter
	Retriever     ChunkRetriever
	Generator     Completer
	Conversations *conversation.Manager
	Logger        log.Logger

	// Retrieval parameters for the chat path. Zero values fall back to
	// the retrieve package defaults.
	RetrievalLimit     int
	RetrievalThreshold float64
}

func (cfg ServiceConfig) validate() error {
	if cfg.Router == nil {
		return errors.New("router is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Conversations == nil {
		return errors.New("conversation manager is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service orchestrates chat turns. Safe for concurrent use; turns on the
// same conversation are serialized via the conversation manager's per-id
// locks.
type Service struct {
	router        QueryRouter
	retriever     ChunkRetriever
	generator     Completer
	conversations *conversation.Manager
	logger        log.Logger

	retrievalLimit     int
	retrievalThreshold float64
}

// NewService creates a chat Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	limit := cfg.RetrievalLimit
	if limit <= 0 {
		limit = retrieve.DefaultLimit
	}
	threshold := cfg.RetrievalThreshold
	if threshold <= 0 {
		threshold = retrieve.DefaultThreshold
	}

	return &Service{
		router:             cfg.Router,
		retriever:          cfg.Retriever,
		generator:          cfg.Generator,
		conversations:      cfg.Conversations,
		logger:             cfg.Logger,
		retrievalLimit:     limit,
		retrievalThreshold: threshold,
	}, nil
}

// Process handles one batch chat turn.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	return s.ProcessStream(ctx, req, nil)
}

// ProcessStream handles one chat turn, streaming fragments through callback
// when it is non-nil. The final Result is returned either way.
func (s *Service) ProcessStream(ctx context.Context, req Request, callback StreamFunc) (*Result, error) {
	query, ok := lastUserMessage(req.Messages)
	if !ok {
		return nil, ErrNoUserMessage
	}

	convID := s.conversations.GetOrCreate(req.ConversationID)
	release := s.conversations.Acquire(convID)
	defer release()

	decision := s.route(ctx, req.UseRAG, query)

	var docs []store.Match
	if decision.UseRetrieval {
		var err error
		docs, err = s.retriever.Retrieve(ctx, query,
			retrieve.WithLimit(s.retrievalLimit),
			retrieve.WithThreshold(s.retrievalThreshold))
		if err != nil {
			return nil, fmt.Errorf("retrieving context: %w", err)
		}
	}

	// History is everything before the turn being answered. An empty
	// retrieval set falls back to the plain template even when routing
	// asked for grounding.
	history := req.Messages[:len(req.Messages)-1]
	var messages []*ai.Message
	grounded := decision.UseRetrieval && len(docs) > 0
	if grounded {
		messages = prompt.Grounded(history, docs, query)
	} else {
		messages = prompt.Plain(history, query)
	}

	var genCallback StreamCallback
	if callback != nil {
		meta := StreamMeta{ConversationID: convID, Documents: docs, Routing: decision}
		genCallback = func(ctx context.Context, chunk string) error {
			return callback(ctx, chunk, meta)
		}
	}

	response, err := s.generator.Generate(ctx, messages, genCallback)
	if err != nil {
		return nil, err
	}

	s.conversations.Append(convID, conversation.Message{Role: conversation.RoleUser, Content: query})
	s.conversations.Append(convID, conversation.Message{Role: conversation.RoleAssistant, Content: response})
	if len(docs) > 0 {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text
		}
		s.conversations.MergeContextDocs(convID, texts)
	}

	s.logger.Debug("chat turn completed",
		"conversation_id", convID,
		"grounded", grounded,
		"documents", len(docs),
		"response_length", len(response))

	return &Result{
		Response:       response,
		ConversationID: convID,
		Documents:      docs,
		UseRAG:         decision.UseRetrieval,
		Routing:        decision,
	}, nil
}

// route resolves the routing decision for a turn. An explicit caller choice
// bypasses the router; router failures collapse to the fail-open default so
// a broken router degrades to ungrounded answers instead of failed turns.
func (s *Service) route(ctx context.Context, forced *bool, query string) router.Decision {
	if forced != nil {
		return router.Decision{UseRetrieval: *forced, Reasoning: forcedReasoning}
	}

	decision, err := s.router.Classify(ctx, query)
	if err != nil {
		s.logger.Warn("routing failed, defaulting to no retrieval", "error", err)
		return router.FailOpen()
	}
	return decision
}

// lastUserMessage returns the content of the most recent user turn.
func lastUserMessage(messages []conversation.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
