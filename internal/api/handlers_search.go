package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/store"
)

// MaxK caps the result count a search may ask for.
const MaxK = 100

func parseK(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("k")
	if v == "" {
		return store.DefaultK, true
	}
	k, err := strconv.Atoi(v)
	if err != nil || k <= 0 {
		return 0, false
	}
	return min(k, MaxK), true
}

func (s *Server) handleSearchAbstracts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	k, ok := parseK(r)
	if !ok {
		jsonError(w, "k must be a positive integer", http.StatusBadRequest)
		return
	}

	hits, err := s.deps.Store.SearchAbstracts(r.Context(), q, k)
	if err != nil {
		s.log.Error("abstract search failed", "error", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []store.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "hits": hits})
}

func (s *Server) handleSearchSections(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := strings.TrimSpace(params.Get("q"))
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	k, ok := parseK(r)
	if !ok {
		jsonError(w, "k must be a positive integer", http.StatusBadRequest)
		return
	}

	sq := store.SectionQuery{Query: q, K: k}
	for _, id := range params["doc_id"] {
		if id = strings.TrimSpace(id); id != "" {
			sq.DocIDs = append(sq.DocIDs, id)
		}
	}
	if v := params.Get("category"); v != "" {
		cat, err := doctree.ParseCategory(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		sq.Category = &cat
	}

	hits, err := s.deps.Store.SearchBySection(r.Context(), sq)
	if err != nil {
		s.log.Error("section search failed", "error", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []store.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "hits": hits})
}
