package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/pipeline"
)

type loadRequest struct {
	DocIDs []string `json:"doc_ids"`
}

// decodeDocIDs reads a load request and returns its ids trimmed, non-empty
// and deduplicated in request order.
func decodeDocIDs(r *http.Request) ([]string, error) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	seen := make(map[string]bool, len(req.DocIDs))
	var ids []string
	for _, id := range req.DocIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("doc_ids is required")
	}
	return ids, nil
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	ids, err := decodeDocIDs(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(ids) > MaxSyncLoad {
		jsonError(w, fmt.Sprintf("at most %d doc_ids per synchronous load, use /api/load/jobs", MaxSyncLoad), http.StatusBadRequest)
		return
	}

	results := s.deps.Loader.LoadBatch(r.Context(), ids)
	out := make([]loader.Result, 0, len(ids))
	for _, id := range ids {
		if res, ok := results[id]; ok {
			out = append(out, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		jsonError(w, "async jobs unavailable", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	ids, err := decodeDocIDs(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(ids)
	if err := s.deps.Orchestrator.Submit(job); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			jsonError(w, "queue full, try again later", http.StatusServiceUnavailable)
			return
		}
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.log.Info("load job submitted", "job_id", job.ID, "documents", len(ids))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": pipeline.StatusQueued,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		jsonError(w, "async jobs unavailable", http.StatusServiceUnavailable)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
