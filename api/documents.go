package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bogachat/boga/internal/fault"
	"github.com/bogachat/boga/internal/log"
	"github.com/bogachat/boga/internal/retrieve"
	"github.com/bogachat/boga/internal/store"
)

// maxUploadBytes bounds document uploads (16 MiB of text is a big book).
const maxUploadBytes = 16 << 20

// DocumentHandler handles document ingestion, search, retrieval, and deletion.
type DocumentHandler struct {
	ingestor  DocumentIngestor
	documents DocumentStore
	searcher  ChunkSearcher
	logger    log.Logger

	chunkSize    int
	chunkOverlap int
}

// NewDocumentHandler creates a new document handler. chunkSize and
// chunkOverlap apply to uploads; zero values fall back to the chunk package
// defaults.
func NewDocumentHandler(ingestor DocumentIngestor, documents DocumentStore, searcher ChunkSearcher, chunkSize, chunkOverlap int, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{
		ingestor:     ingestor,
		documents:    documents,
		searcher:     searcher,
		logger:       logger,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /documents/upload", h.handleUpload)
	mux.HandleFunc("POST /documents/search", h.handleSearch)
	mux.HandleFunc("GET /documents/{id}", h.handleGet)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDelete)
}

// uploadResponse is the JSON body of POST /documents/upload.
type uploadResponse struct {
	DocumentID string         `json:"document_id"`
	ChunkCount int            `json:"chunk_count"`
	Metadata   map[string]any `json:"metadata"`
}

// handleUpload ingests a document from a multipart form.
//
// Form fields: file (required), title, author, source, tags (comma-separated).
// The file content is treated as UTF-8 text.
func (h *DocumentHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read file: "+err.Error())
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is empty")
		return
	}

	metadata := map[string]any{
		"filename": header.Filename,
	}
	for _, field := range []string{"title", "author", "source"} {
		if v := r.FormValue(field); v != "" {
			metadata[field] = v
		}
	}
	if tags := r.FormValue("tags"); tags != "" {
		var list []string
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				list = append(list, t)
			}
		}
		if len(list) > 0 {
			metadata["tags"] = list
		}
	}

	documentID := uuid.NewString()
	chunkIDs, err := h.ingestor.Ingest(r.Context(), documentID, string(content), metadata, h.chunkSize, h.chunkOverlap)
	if err != nil {
		h.logger.Error("document ingestion failed", "document_id", documentID, "error", err)
		if errors.Is(err, fault.ErrUpstreamModel) {
			writeError(w, http.StatusBadGateway, "upstream_error", "embedding request failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		DocumentID: documentID,
		ChunkCount: len(chunkIDs),
		Metadata:   metadata,
	})
}

// searchRequest is the JSON body of POST /documents/search.
type searchRequest struct {
	Query               string         `json:"query"`
	Limit               int            `json:"limit,omitempty"`
	SimilarityThreshold *float64       `json:"similarity_threshold,omitempty"`
	MetadataFilter      map[string]any `json:"metadata_filter,omitempty"`
}

// searchResponse is the JSON body of POST /documents/search.
type searchResponse struct {
	Results []store.Match `json:"results"`
	Count   int           `json:"count"`
}

// handleSearch performs a semantic search over stored chunks.
func (h *DocumentHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if req.SimilarityThreshold != nil {
		if t := *req.SimilarityThreshold; t < 0 || t > 1 {
			writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("similarity_threshold must be between 0 and 1, got %v", t))
			return
		}
	}

	opts := []retrieve.Option{}
	if req.Limit > 0 {
		opts = append(opts, retrieve.WithLimit(req.Limit))
	}
	if req.SimilarityThreshold != nil {
		opts = append(opts, retrieve.WithThreshold(*req.SimilarityThreshold))
	}
	if len(req.MetadataFilter) > 0 {
		opts = append(opts, retrieve.WithFilter(req.MetadataFilter))
	}

	matches, err := h.searcher.Retrieve(r.Context(), req.Query, opts...)
	if err != nil {
		h.logger.Error("document search failed", "error", err)
		if errors.Is(err, fault.ErrUpstreamModel) {
			writeError(w, http.StatusBadGateway, "upstream_error", "embedding request failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to search documents")
		return
	}

	if matches == nil {
		matches = []store.Match{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: matches, Count: len(matches)})
}

// documentResponse is the JSON body of GET /documents/{id}.
type documentResponse struct {
	DocumentID string        `json:"document_id"`
	Chunks     []store.Chunk `json:"chunks"`
	ChunkCount int           `json:"chunk_count"`
}

// handleGet returns all chunks of a document in chunk order.
func (h *DocumentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	chunks, err := h.documents.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("failed to load document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load document")
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{
		DocumentID: id,
		Chunks:     chunks,
		ChunkCount: len(chunks),
	})
}

// deleteResponse is the JSON body of DELETE /documents/{id}.
type deleteResponse struct {
	Message       string `json:"message"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

// handleDelete removes all chunks of a document.
func (h *DocumentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.documents.DeleteDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("failed to delete document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete document")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Message:       fmt.Sprintf("document %s deleted", id),
		ChunksDeleted: deleted,
	})
}
