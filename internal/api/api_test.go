package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
	"github.com/dgallion1/paperidx/internal/latency"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/pipeline"
	"github.com/dgallion1/paperidx/internal/store"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeLoader) LoadBatch(ctx context.Context, ids []string) map[string]loader.Result {
	return f.LoadBatchObserved(ctx, ids, func(string, loader.Status) {})
}

func (f *fakeLoader) LoadBatchObserved(ctx context.Context, ids []string, obs loader.Observer) map[string]loader.Result {
	f.mu.Lock()
	f.calls = append(f.calls, ids)
	f.mu.Unlock()
	out := make(map[string]loader.Result, len(ids))
	for _, id := range ids {
		st := loader.StatusSuccess
		if id == "missing" {
			st = loader.StatusNotFound
		}
		obs(id, st)
		out[id] = loader.Result{DocID: id, Status: st}
	}
	return out
}

type testServer struct {
	*Server
	store  *store.Memory
	loader *fakeLoader
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	mem := store.NewMemory(embed.NewHash(32))
	fl := &fakeLoader{}

	orch := pipeline.NewOrchestrator(pipeline.Config{WorkerCount: 1, MaxQueueSize: 4}, fl, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	cfg := config.Config{APIKey: apiKey, MaxUploadBytes: 1 << 20}
	srv := NewServer(Deps{
		Store:        mem,
		Loader:       fl,
		Orchestrator: orch,
		Embedder:     "hash",
		EmbedStats:   latency.NewTracker(time.Hour),
	}, log, cfg)
	return &testServer{Server: srv, store: mem, loader: fl}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seed(t *testing.T, s *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, doctree.DocumentRecord{
		DocID: "d1", Title: "Paged Enclaves", Abstract: "page table side channels", URL: "https://example.org/d1.pdf",
	}))
	require.NoError(t, s.InsertChunks(ctx, "d1", "Paged Enclaves", []doctree.Chunk{
		{Text: "Enclaves protect code.", SectionTitle: "Introduction", Category: doctree.CategoryIntroduction},
		{Text: "We page secrets.", SectionTitle: "Design", Category: doctree.CategoryMethod},
		{Text: "Overhead is four percent.", SectionTitle: "Evaluation", Category: doctree.CategoryEvaluation},
	}))
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t, "secret")
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, "secret")

	rec := ts.do(t, http.MethodGet, "/api/documents/d1", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "missing authorization", decode[map[string]string](t, rec)["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/documents/d1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocuments(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/documents", map[string]any{
		"title": "No Id", "pdf_url": "https://example.org/x.pdf",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["doc_id"]
	require.Len(t, id, 16)

	rec = ts.do(t, http.MethodPost, "/api/documents", map[string]any{"title": "Nothing"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Document doctree.DocumentRecord `json:"document"`
		Indexed  bool                   `json:"indexed"`
	}](t, rec)
	require.Equal(t, "No Id", got.Document.Title)
	require.False(t, got.Indexed)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/documents/nope", nil).Code)
}

func TestDeleteChunksAndContext(t *testing.T) {
	ts := newTestServer(t, "")
	seed(t, ts.store)

	rec := ts.do(t, http.MethodGet, "/api/documents/d1/context?center=1&window=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	require.Equal(t, "Enclaves protect code.\n\nWe page secrets.\n\nOverhead is four percent.", got["text"])

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/documents/d1/context", nil).Code)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/documents/d1/context?center=0&window=-1", nil).Code)

	rec = ts.do(t, http.MethodDelete, "/api/documents/d1/chunks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, ts.store.Chunks("d1"))
}

func TestImport(t *testing.T) {
	ts := newTestServer(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "../../papers.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("doc_id,title,url,conference_name,conference_year\np1,One,https://e.org/1,NDSS,2024\np2,Two,https://e.org/2,NDSS,2024\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rep := decode[map[string]any](t, rec)
	require.EqualValues(t, 2, rep["inserted"])

	ok, err := ts.store.ConferenceExists(context.Background(), "ndss", 2024, "")
	require.NoError(t, err)
	require.True(t, ok)

	rec = ts.do(t, http.MethodGet, "/api/conferences?name=ndss&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decode[map[string]any](t, rec)["exists"])

	rec = ts.do(t, http.MethodGet, "/api/conferences?name=ndss&year=2023", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decode[map[string]any](t, rec)["exists"])

	rec = ts.do(t, http.MethodGet, "/api/conferences?name=ndss&year=soon", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_RejectsUnknownType(t *testing.T) {
	ts := newTestServer(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "papers.json")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("[]"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[map[string]string](t, rec)["error"], ".json")
}

func TestLoad_Sync(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/load", map[string]any{"doc_ids": []string{"a", " a ", "missing", ""}})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Results []loader.Result `json:"results"`
	}](t, rec)
	require.Len(t, got.Results, 2)
	require.Equal(t, loader.StatusSuccess, got.Results[0].Status)
	require.Equal(t, loader.StatusNotFound, got.Results[1].Status)
	require.Equal(t, [][]string{{"a", "missing"}}, ts.loader.calls)

	rec = ts.do(t, http.MethodPost, "/api/load", map[string]any{"doc_ids": []string{"1", "2", "3", "4", "5", "6"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/load", map[string]any{"doc_ids": []string{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoad_Job(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/load/jobs", map[string]any{"doc_ids": []string{"a", "b"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode[map[string]string](t, rec)["job_id"]
	require.NotEmpty(t, jobID)

	var snap pipeline.JobSnapshot
	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/load/jobs/"+jobID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		snap = decode[pipeline.JobSnapshot](t, rec)
		return snap.Status == pipeline.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 2, snap.Progress.Succeeded)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/load/jobs/unknown", nil).Code)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, "")
	seed(t, ts.store)

	rec := ts.do(t, http.MethodGet, "/api/search/abstracts?q=side+channels&k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	abs := decode[struct {
		Hits []store.Hit `json:"hits"`
	}](t, rec)
	require.Len(t, abs.Hits, 1)
	require.Equal(t, "d1", abs.Hits[0].Chunk.DocID)

	rec = ts.do(t, http.MethodGet, "/api/search/sections?q=overhead&doc_id=d1&category=evaluation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sec := decode[struct {
		Hits []store.Hit `json:"hits"`
	}](t, rec)
	require.Len(t, sec.Hits, 1)
	require.Equal(t, doctree.CategoryEvaluation, sec.Hits[0].Chunk.Category)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/search/sections?q=x&category=bogus", nil).Code)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/search/abstracts?q=", nil).Code)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/search/abstracts?q=x&k=zero", nil).Code)

	rec = ts.do(t, http.MethodGet, "/api/search/sections?q=x&doc_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"hits":[]`))
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/api/stats/embed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hash", decode[map[string]any](t, rec)["provider"])

	require.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/stats/llm", nil).Code)
}
