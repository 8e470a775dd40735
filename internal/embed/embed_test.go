package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/latency"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	c.calls++
	vec := make([]float32, c.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

func (c *countingEmbedder) Dimension() int { return c.dim }
func (c *countingEmbedder) Name() string   { return "counting" }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHash_DeterministicAndNormalized(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Oblivious paging for enclaves", TaskDocument)
	require.NoError(t, err)
	b, err := h.Embed(ctx, "Oblivious paging for enclaves", TaskQuery)
	require.NoError(t, err)

	require.Len(t, a, 64)
	require.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, norm, 1e-5)
}

func TestHash_SimilarTextsScoreHigher(t *testing.T) {
	h := NewHash(256)
	ctx := context.Background()

	q, _ := h.Embed(ctx, "enclave paging attacks", TaskQuery)
	near, _ := h.Embed(ctx, "side channel attacks on enclave paging", TaskDocument)
	far, _ := h.Embed(ctx, "convolutional networks for image segmentation", TaskDocument)

	require.Greater(t, cosine(q, near), cosine(q, far))
}

func TestHash_EmptyTextIsZeroVector(t *testing.T) {
	vec, err := NewHash(8).Embed(context.Background(), "", TaskDocument)
	require.NoError(t, err)
	for _, v := range vec {
		require.Zero(t, v)
	}
}

func TestCached_HitsAndClones(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	e := NewCached(inner, 16, time.Minute)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "hello", TaskDocument)
	require.NoError(t, err)
	v1[0] = -1 // must not poison the cache

	v2, err := e.Embed(ctx, "hello", TaskDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, float32(5), v2[0])

	_, err = e.Embed(ctx, "hello", TaskQuery)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls, "task type is part of the key")
}

func TestCached_DisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	require.Same(t, Embedder(inner), NewCached(inner, 0, time.Minute))
}

func TestTimed_RecordsLatency(t *testing.T) {
	stats := latency.NewTracker(time.Hour)
	e := Timed(&countingEmbedder{dim: 2}, stats)

	_, err := e.Embed(context.Background(), "x", TaskDocument)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Snapshot().Count)
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "text-embedding-3-small", req.Model)
		require.Equal(t, 3, req.Dimensions)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAI(srv.URL+"/", "sk-test", "", 3)
	vec, err := e.Embed(context.Background(), "text", TaskDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAI_RetryableStatuses(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	e := NewOpenAI(srv.URL, "k", "m", 3)

	_, err := e.Embed(context.Background(), "text", TaskDocument)
	var re *RetryableError
	require.True(t, errors.As(err, &re))
	require.Equal(t, http.StatusTooManyRequests, re.StatusCode)

	status = http.StatusBadRequest
	_, err = e.Embed(context.Background(), "text", TaskDocument)
	require.Error(t, err)
	require.False(t, errors.As(err, &re))
}

type flakyEmbedder struct {
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []float32{1}, nil
}

func (f *flakyEmbedder) Dimension() int { return 1 }
func (f *flakyEmbedder) Name() string   { return "flaky" }

func TestRetrying_TransientFailures(t *testing.T) {
	inner := &flakyEmbedder{failures: 2, err: &RetryableError{StatusCode: http.StatusServiceUnavailable}}
	vec, err := Retrying(inner, 3, time.Millisecond).Embed(context.Background(), "x", TaskQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, 3, inner.calls)

	inner = &flakyEmbedder{failures: 5, err: &RetryableError{StatusCode: http.StatusTooManyRequests}}
	_, err = Retrying(inner, 3, time.Millisecond).Embed(context.Background(), "x", TaskQuery)
	var re *RetryableError
	require.ErrorAs(t, err, &re)
	require.Equal(t, 3, inner.calls)
}

func TestRetrying_PermanentErrorNotRetried(t *testing.T) {
	inner := &flakyEmbedder{failures: 5, err: errors.New("bad request")}
	_, err := Retrying(inner, 3, time.Millisecond).Embed(context.Background(), "x", TaskQuery)
	require.EqualError(t, err, "bad request")
	require.Equal(t, 1, inner.calls)
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := config.Config{EmbedProvider: "hash", EmbedDim: 32, EmbedCacheSize: 8, EmbedCacheTTL: time.Minute}
	e, err := New(context.Background(), cfg, latency.NewTracker(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 32, e.Dimension())
	require.Equal(t, "hash", e.Name())
	require.IsType(t, &Cached{}, e)

	cfg.EmbedProvider = "word2vec"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}
