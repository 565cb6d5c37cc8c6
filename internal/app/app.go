// Package app wires configuration, storage, models, and services into a
// running application.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bogachat/boga/internal/chat"
	"github.com/bogachat/boga/internal/config"
	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/ingest"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/retrieve"
	"github.com/bogachat/boga/internal/router"
	"github.com/bogachat/boga/internal/store"
)

// App holds all initialized application components.
// Create with Setup; release with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Store         *store.ChunkStore
	Index         retrieve.VectorIndex
	Retriever     *retrieve.Retriever
	Router        *router.Router
	Conversations *conversation.Manager
	Ingestor      *ingest.Ingestor
	Generator     *chat.Generator
	Chat          *chat.Service

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse initialization order.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}
