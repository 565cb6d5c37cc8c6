package api

import (
	"net/http"

	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/log"
)

// ConversationHandler serves conversation history from the in-memory cache.
type ConversationHandler struct {
	conversations ConversationReader
	logger        log.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations ConversationReader, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /conversations/{id}", h.handleGet)
}

// conversationResponse is the JSON body of GET /conversations/{id}.
type conversationResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Messages       []conversation.Message `json:"messages"`
}

// handleGet returns the message history of one conversation.
// Evicted or never-seen conversations yield 404; history is process-local
// and vanishes on restart.
func (h *ConversationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.conversations.Known(id) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}

	messages := h.conversations.History(id)
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		ConversationID: id,
		Messages:       messages,
	})
}
