// Package api provides the HTTP REST API for Boga.
//
// Endpoints:
//
//	POST   /chat               - one chat turn (JSON request/response)
//	POST   /chat/stream        - one chat turn, streamed (SSE)
//	GET    /conversations/{id} - conversation history
//	POST   /documents/upload   - ingest a document (multipart)
//	POST   /documents/search   - semantic search over stored chunks
//	GET    /documents/{id}     - all chunks of a document
//	DELETE /documents/{id}     - remove a document
//	GET    /health             - liveness probe
//	GET    /ready              - readiness probe (db ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints (/health, /ready)
//   - chat.go: chat endpoints (sync + SSE)
//   - conversations.go: conversation history endpoint
//   - documents.go: document ingestion, search, retrieval, deletion
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bogachat/boga/internal/chat"
	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/retrieve"
	"github.com/bogachat/boga/internal/store"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generous because SSE responses stay open for the whole generation.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// ChatService handles one conversational turn.
type ChatService interface {
	Process(ctx context.Context, req chat.Request) (*chat.Result, error)
	ProcessStream(ctx context.Context, req chat.Request, callback chat.StreamFunc) (*chat.Result, error)
}

// ConversationReader exposes stored conversation history.
type ConversationReader interface {
	Known(id string) bool
	History(id string) []conversation.Message
}

// DocumentIngestor chunks, embeds, and persists a document.
type DocumentIngestor interface {
	Ingest(ctx context.Context, documentID, text string, metadata map[string]any, size, overlap int) ([]string, error)
}

// DocumentStore reads and deletes stored documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) ([]store.Chunk, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
}

// ChunkSearcher finds chunks semantically similar to a query.
type ChunkSearcher interface {
	Retrieve(ctx context.Context, query string, opts ...retrieve.Option) ([]store.Match, error)
}

// ServerConfig contains all dependencies for the HTTP server.
type ServerConfig struct {
	Chat          ChatService
	Conversations ConversationReader
	Ingestor      DocumentIngestor
	Documents     DocumentStore
	Searcher      ChunkSearcher
	Pool          *pgxpool.Pool // readiness checks; nil disables them
	Logger        log.Logger

	// Chunking parameters for uploads. Zero values fall back to the chunk
	// package defaults.
	ChunkSize    int
	ChunkOverlap int
}

// Server is the HTTP server for Boga's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health        *HealthHandler
	chat          *ChatHandler
	conversations *ConversationHandler
	documents     *DocumentHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:           mux,
		logger:        logger,
		health:        NewHealthHandler(cfg.Pool, logger),
		chat:          NewChatHandler(cfg.Chat, logger),
		conversations: NewConversationHandler(cfg.Conversations, logger),
		documents:     NewDocumentHandler(cfg.Ingestor, cfg.Documents, cfg.Searcher, cfg.ChunkSize, cfg.ChunkOverlap, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.conversations.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
