package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/edusim/knowledge/internal/ingest"
	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/metadata"
	"github.com/edusim/knowledge/internal/retrieve"
	"github.com/edusim/knowledge/internal/status"
	"github.com/edusim/knowledge/internal/vectorindex"
)

// Upload validation constants.
const (
	MaxUploadBytes = 20 << 20 // 20 MiB
	MaxTitleLength = 200
	MaxQueryLength = 2000
	MaxSearchTopK  = 50
)

// Ingestor runs the ingestion pipeline. Satisfied by ingest.Coordinator.
type Ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (string, error)
}

// StatusReader polls ingestion runs. Satisfied by status.Tracker.
type StatusReader interface {
	Get(ctx context.Context, id string) (status.Status, error)
}

// Searcher retrieves knowledge context. Satisfied by retrieve.Retriever.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string, topK int) retrieve.Context
}

// Cataloger lists knowledge-base entries. Satisfied by metadata.Catalog.
type Cataloger interface {
	List(ctx context.Context, scope string) ([]metadata.Entry, error)
}

// Deleter removes documents. Satisfied by ingest.Reconciler.
type Deleter interface {
	Delete(ctx context.Context, sourceID, scope string) error
}

// KnowledgeHandler handles knowledge-base HTTP endpoints.
type KnowledgeHandler struct {
	ingestor Ingestor
	statuses StatusReader
	searcher Searcher
	catalog  Cataloger
	deleter  Deleter
	logger   log.Logger
}

// NewKnowledgeHandler creates a knowledge handler.
func NewKnowledgeHandler(
	ingestor Ingestor,
	statuses StatusReader,
	searcher Searcher,
	catalog Cataloger,
	deleter Deleter,
	logger log.Logger,
) *KnowledgeHandler {
	return &KnowledgeHandler{
		ingestor: ingestor,
		statuses: statuses,
		searcher: searcher,
		catalog:  catalog,
		deleter:  deleter,
		logger:   logger,
	}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/knowledge", h.upload)
	mux.HandleFunc("GET /api/knowledge", h.list)
	mux.HandleFunc("GET /api/knowledge/status/{id}", h.getStatus)
	mux.HandleFunc("GET /api/knowledge/search", h.search)
	mux.HandleFunc("DELETE /api/knowledge/{sourceId}", h.deleteDocument)
}

// scopeParam resolves the vector namespace from an avatarId query value.
func scopeParam(avatarID string) string {
	if avatarID == "" {
		return vectorindex.SharedNamespace
	}
	return vectorindex.AvatarNamespace(avatarID)
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	ProcessingID string `json:"processingId"`
}

// upload ingests a multipart document upload.
// Form fields:
//   - file: the document (required)
//   - title: display title (optional, defaults to the filename)
//   - avatarId: tenant scope (optional)
//   - shared: "true" forces the shared scope even with an avatarId
func (h *KnowledgeHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "expected multipart form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "file field is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_file", err.Error())
		return
	}

	title := r.FormValue("title")
	if len(title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "title_too_long", "title exceeds 200 characters")
		return
	}

	mediaType := header.Header.Get("Content-Type")

	req := ingest.Request{
		Data:      data,
		MediaType: mediaType,
		Filename:  header.Filename,
		Title:     title,
		TenantID:  r.FormValue("avatarId"),
		Shared:    r.FormValue("shared") == "true" || r.FormValue("avatarId") == "",
	}

	processingID, err := h.ingestor.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_document", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{ProcessingID: processingID})
}

// getStatus returns the processing status for one ingestion run.
func (h *KnowledgeHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	st, err := h.statuses.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			writeError(w, http.StatusNotFound, "status_not_found", id)
			return
		}
		h.logger.Error("loading processing status", "processing_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "status_unavailable", "")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// search retrieves knowledge chunks for a query.
// Query parameters:
//   - q: the query text (required)
//   - avatarId: also search this avatar's pool (optional)
//   - topK: number of matches (default 5, max 50)
func (h *KnowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	if len(query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "query_too_long", "q exceeds 2000 characters")
		return
	}

	topK := parseIntParam(r, "topK", retrieve.DefaultTopK, 1, MaxSearchTopK)
	avatarID := r.URL.Query().Get("avatarId")

	result := h.searcher.Search(r.Context(), query, avatarID, topK)
	writeJSON(w, http.StatusOK, result)
}

// ListResponse is returned by the list endpoint.
type ListResponse struct {
	Entries []metadata.Entry `json:"entries"`
	Total   int              `json:"total"`
	Scope   string           `json:"scope"`
}

// list returns the knowledge-base entries for a scope.
func (h *KnowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r.URL.Query().Get("avatarId"))

	entries, err := h.catalog.List(r.Context(), scope)
	if err != nil {
		h.logger.Error("listing knowledge base", "scope", scope, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}

	// An avatar's view spans its own documents and the shared pool, the
	// same corpus its searches draw from.
	if scope != vectorindex.SharedNamespace {
		shared, err := h.catalog.List(r.Context(), vectorindex.SharedNamespace)
		if err != nil {
			h.logger.Error("listing knowledge base", "scope", vectorindex.SharedNamespace, "error", err)
			writeError(w, http.StatusInternalServerError, "list_failed", "")
			return
		}
		entries = append(entries, shared...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].UploadedAt.After(entries[j].UploadedAt)
		})
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Entries: entries,
		Total:   len(entries),
		Scope:   scope,
	})
}

// deleteDocument removes a document and all its vectors.
func (h *KnowledgeHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("sourceId")
	scope := scopeParam(r.URL.Query().Get("avatarId"))

	if err := h.deleter.Delete(r.Context(), sourceID, scope); err != nil {
		if errors.Is(err, ingest.ErrPartialDeletion) {
			// The document is gone from listings; some vectors may linger.
			h.logger.Warn("partial deletion", "source_id", sourceID, "error", err)
			writeJSON(w, http.StatusOK, map[string]any{
				"deleted": true,
				"warning": "deletion could not be fully confirmed",
			})
			return
		}
		h.logger.Error("deleting document", "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
