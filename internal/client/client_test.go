package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/paperidx/internal/api"
	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/pipeline"
	"github.com/dgallion1/paperidx/internal/store"
)

// indexer marks documents as loaded by writing a single chunk.
type indexer struct {
	mu    sync.Mutex
	store *store.Memory
}

func (ix *indexer) LoadBatch(ctx context.Context, ids []string) map[string]loader.Result {
	return ix.LoadBatchObserved(ctx, ids, func(string, loader.Status) {})
}

func (ix *indexer) LoadBatchObserved(ctx context.Context, ids []string, obs loader.Observer) map[string]loader.Result {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make(map[string]loader.Result, len(ids))
	for _, id := range ids {
		rec, _ := ix.store.GetDocumentMetadata(ctx, id)
		if rec == nil {
			obs(id, loader.StatusNotFound)
			out[id] = loader.Result{DocID: id, Status: loader.StatusNotFound}
			continue
		}
		err := ix.store.InsertChunks(ctx, id, rec.Title, []doctree.Chunk{
			{Text: rec.Abstract, SectionTitle: "Introduction", Category: doctree.CategoryIntroduction},
		})
		st := loader.StatusSuccess
		if err != nil {
			st = loader.StatusParseFailed
		}
		obs(id, st)
		out[id] = loader.Result{DocID: id, Status: st, Chunks: 1}
	}
	return out
}

func newClient(t *testing.T) *Client {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	mem := store.NewMemory(embed.NewHash(32))
	ix := &indexer{store: mem}

	orch := pipeline.NewOrchestrator(pipeline.Config{WorkerCount: 1}, ix, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	srv := api.NewServer(api.Deps{Store: mem, Loader: ix, Orchestrator: orch}, log,
		config.Config{APIKey: "k", MaxUploadBytes: 1 << 20})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL+"/", "k")
	t.Cleanup(c.Close)
	return c
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	require.NoError(t, c.Health(ctx))

	rep, err := c.ImportCatalog(ctx, "papers.csv", strings.NewReader(
		"doc_id,title,abstract,url\np1,Paged Enclaves,page tables leak enclave secrets,https://e.org/1\n"))
	require.NoError(t, err)
	require.Equal(t, 1, rep.Inserted)

	id, err := c.CreateDocument(ctx, doctree.DocumentRecord{DocID: "p2", Title: "Fuzzing Kernels", Abstract: "coverage guided kernel fuzzing",
		ConferenceName: "USENIX Security", ConferenceYear: 2024})
	require.NoError(t, err)
	require.Equal(t, "p2", id)

	collected, err := c.ConferenceExists(ctx, "usenix security", 2024, "")
	require.NoError(t, err)
	require.True(t, collected)
	collected, err = c.ConferenceExists(ctx, "usenix security", 2023, "")
	require.NoError(t, err)
	require.False(t, collected)

	results, err := c.Load(ctx, []string{"p1", "nope"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, loader.StatusSuccess, results[0].Status)
	require.Equal(t, loader.StatusNotFound, results[1].Status)

	jobID, err := c.SubmitJob(ctx, []string{"p2"})
	require.NoError(t, err)
	snap, err := c.WaitJob(ctx, jobID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusCompleted, snap.Status)

	doc, err := c.GetDocument(ctx, "p2")
	require.NoError(t, err)
	require.True(t, doc.Indexed)

	hits, err := c.SearchAbstracts(ctx, "kernel fuzzing", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	intro := doctree.CategoryIntroduction
	hits, err = c.SearchSections(ctx, store.SectionQuery{Query: "enclave", DocIDs: []string{"p1", "p2"}, Category: &intro, K: 5})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	text, err := c.ContextWindow(ctx, "p1", 0, 1)
	require.NoError(t, err)
	require.Equal(t, "page tables leak enclave secrets", text)

	require.NoError(t, c.DeleteChunks(ctx, "p1"))
	doc, err = c.GetDocument(ctx, "p1")
	require.NoError(t, err)
	require.False(t, doc.Indexed)

	doc, err = c.GetDocument(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestClient_StatusError(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	c.apiKey = "wrong"

	_, err := c.Load(ctx, []string{"p1"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)
	require.Equal(t, "invalid api key", se.Message)

	c.apiKey = "k"
	_, err = c.Load(ctx, []string{"1", "2", "3", "4", "5", "6"})
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
}
