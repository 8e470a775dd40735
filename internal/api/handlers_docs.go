package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/paperidx/internal/catalog"
	"github.com/dgallion1/paperidx/internal/doctree"
)

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var rec doctree.DocumentRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&rec); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	rec.DocID = strings.TrimSpace(rec.DocID)
	if rec.DocID == "" {
		src := rec.SourceURL()
		if src == "" {
			jsonError(w, "doc_id or url is required", http.StatusBadRequest)
			return
		}
		rec.DocID = catalog.DocIDFor(src)
	}

	if err := s.deps.Store.InsertDocument(r.Context(), rec); err != nil {
		s.log.Error("insert document failed", "doc_id", rec.DocID, "error", err)
		jsonError(w, "failed to store document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"doc_id": rec.DocID})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
	default:
		jsonError(w, fmt.Sprintf("unsupported catalog type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	recs, err := catalog.Read(filename, file)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := catalog.Import(r.Context(), s.deps.Store, recs, s.log)
	if err != nil {
		s.log.Error("catalog import failed", "file", filename, "error", err)
		jsonError(w, "import failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	rec, err := s.deps.Store.GetDocumentMetadata(r.Context(), docID)
	if err != nil {
		s.log.Error("get document failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to get document", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	indexed, err := s.deps.Store.CheckChunksExist(r.Context(), docID)
	if err != nil {
		s.log.Error("check chunks failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to get document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": rec,
		"indexed":  indexed,
	})
}

func (s *Server) handleDeleteChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.deps.Store.DeleteChunks(r.Context(), docID); err != nil {
		s.log.Error("delete chunks failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to delete chunks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "doc_id": docID})
}

// handleConferenceExists reports whether any paper of a conference edition
// is registered, so collectors can skip editions already imported.
func (s *Server) handleConferenceExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year <= 0 {
		jsonError(w, "year must be a positive integer", http.StatusBadRequest)
		return
	}
	round := strings.TrimSpace(q.Get("round"))

	ok, err := s.deps.Store.ConferenceExists(r.Context(), name, year, round)
	if err != nil {
		s.log.Error("conference lookup failed", "conference", name, "year", year, "error", err)
		jsonError(w, "failed to look up conference", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"year":   year,
		"round":  round,
		"exists": ok,
	})
}

func (s *Server) handleContextWindow(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	center, err := strconv.ParseInt(r.URL.Query().Get("center"), 10, 64)
	if err != nil || center < 0 {
		jsonError(w, "center must be a non-negative chunk index", http.StatusBadRequest)
		return
	}
	window := 1
	if v := r.URL.Query().Get("window"); v != "" {
		window, err = strconv.Atoi(v)
		if err != nil || window < 0 {
			jsonError(w, "window must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	text, err := s.deps.Store.GetContextWindow(r.Context(), docID, center, window)
	if err != nil {
		s.log.Error("context window failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to get context window", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": docID,
		"center": center,
		"window": window,
		"text":   text,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
