package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bogachat/boga/internal/chat"
	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/router"
	"github.com/bogachat/boga/internal/store"
)

// ChatHandler handles chat endpoints.
//
// Endpoints:
//   - POST /chat        - synchronous chat (JSON request/response)
//   - POST /chat/stream - streaming chat (SSE - Server-Sent Events)
//
// Both go through the same chat service; the stream variant forwards each
// generated fragment as an SSE chunk event before the final done event.
type ChatHandler struct {
	service ChatService
	logger  log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(service ChatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("POST /chat/stream", h.handleStream)
}

// chatRequest is the JSON body of both chat endpoints.
type chatRequest struct {
	Messages       []conversation.Message `json:"messages"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	UseRAG         *bool                  `json:"use_rag,omitempty"`
}

// chatResponse is the JSON body of POST /chat.
type chatResponse struct {
	Response        string          `json:"response"`
	ConversationID  string          `json:"conversation_id"`
	Documents       []store.Match   `json:"documents"`
	UseRAG          bool            `json:"use_rag"`
	RoutingDecision router.Decision `json:"routing_decision"`
}

// parseChatRequest decodes and validates the request body.
func parseChatRequest(r *http.Request) (chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if len(req.Messages) == 0 {
		return req, errors.New("messages is required")
	}
	for i, m := range req.Messages {
		if m.Role != conversation.RoleUser && m.Role != conversation.RoleAssistant {
			return req, fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		if m.Content == "" {
			return req, fmt.Errorf("messages[%d]: content is required", i)
		}
	}
	return req, nil
}

// handleChat handles the synchronous chat endpoint.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.Process(r.Context(), chat.Request{
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
		UseRAG:         req.UseRAG,
	})
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(result))
}

func toChatResponse(result *chat.Result) chatResponse {
	docs := result.Documents
	if docs == nil {
		docs = []store.Match{}
	}
	return chatResponse{
		Response:        result.Response,
		ConversationID:  result.ConversationID,
		Documents:       docs,
		UseRAG:          result.UseRAG,
		RoutingDecision: result.Routing,
	}
}

// writeChatError maps a service error to an opaque JSON error response.
// Internal details are logged, never sent to the client.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	h.logger.Error("chat turn failed", "error", err)
	switch {
	case errors.Is(err, chat.ErrNoUserMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one user message is required")
	case errors.Is(err, fault.ErrUpstreamModel):
		writeError(w, http.StatusBadGateway, "upstream_error", "model request failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process chat request")
	}
}

// sseChunkData is the payload of SSE "chunk" events. Each frame repeats the
// turn's metadata so consumers can attribute fragments without waiting for
// the done event.
type sseChunkData struct {
	Chunk           string          `json:"chunk"`
	ConversationID  string          `json:"conversation_id"`
	Documents       []store.Match   `json:"documents"`
	RoutingDecision router.Decision `json:"routing_decision"`
}

// sseDoneData is the payload of the final SSE "done" event.
type sseDoneData struct {
	FullResponse    string          `json:"full_response"`
	ConversationID  string          `json:"conversation_id"`
	Documents       []store.Match   `json:"documents"`
	UseRAG          bool            `json:"use_rag"`
	RoutingDecision router.Decision `json:"routing_decision"`
}

// sseErrorData is the payload of SSE "error" events.
type sseErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleStream handles the SSE streaming endpoint.
//
// Event types:
//   - chunk: partial text plus turn metadata
//     {"chunk": "...", "conversation_id": "...", "documents": [...], "routing_decision": {...}}
//   - done:  final result {"full_response": "...", "conversation_id": "...", ...}
//   - error: failure {"code": "...", "message": "..."}
//
// Client disconnects cancel the request context, which stops upstream
// generation; nothing further is written.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ctx := r.Context()
	h.logger.Debug("SSE stream started", "conversation_id", req.ConversationID)

	result, err := h.service.ProcessStream(ctx, chat.Request{
		Messages:       req.Messages,
		ConversationID: req.ConversationID,
		UseRAG:         req.UseRAG,
	}, func(_ context.Context, chunk string, meta chat.StreamMeta) error {
		docs := meta.Documents
		if docs == nil {
			docs = []store.Match{}
		}
		h.writeSSE(w, flusher, "chunk", sseChunkData{
			Chunk:           chunk,
			ConversationID:  meta.ConversationID,
			Documents:       docs,
			RoutingDecision: meta.Routing,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Debug("client disconnected", "conversation_id", req.ConversationID)
			return
		}
		h.logger.Error("stream failed", "error", err)
		h.writeSSE(w, flusher, "error", sseErrorData{
			Code:    "STREAM_ERROR",
			Message: "failed to process chat request",
		})
		return
	}

	docs := result.Documents
	if docs == nil {
		docs = []store.Match{}
	}
	h.writeSSE(w, flusher, "done", sseDoneData{
		FullResponse:    result.Response,
		ConversationID:  result.ConversationID,
		Documents:       docs,
		UseRAG:          result.UseRAG,
		RoutingDecision: result.Routing,
	})
	h.logger.Debug("SSE stream completed",
		"conversation_id", result.ConversationID,
		"response_length", len(result.Response))
}

// writeSSE writes one event to the SSE stream.
func (h *ChatHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
