// Package client talks to a running paperidx server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/paperidx/internal/catalog"
	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/pipeline"
	"github.com/dgallion1/paperidx/internal/store"
)

// Client communicates with the paperidx HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a client for baseURL. The timeout covers synchronous
// loads, which download and index documents before answering.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// StatusError is returned for any non-success response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, want int, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(respBody))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, in any, want int, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(body), "application/json", want, out)
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, "", http.StatusOK, nil)
}

// CreateDocument registers a document record and returns its id.
func (c *Client) CreateDocument(ctx context.Context, rec doctree.DocumentRecord) (string, error) {
	var out struct {
		DocID string `json:"doc_id"`
	}
	if err := c.postJSON(ctx, "create document", "/api/documents", rec, http.StatusCreated, &out); err != nil {
		return "", err
	}
	return out.DocID, nil
}

// ImportCatalog uploads a CSV or XLSX catalog.
func (c *Client) ImportCatalog(ctx context.Context, filename string, r io.Reader) (catalog.Report, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return catalog.Report{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return catalog.Report{}, fmt.Errorf("copy catalog: %w", err)
	}
	if err := mw.Close(); err != nil {
		return catalog.Report{}, err
	}

	var rep catalog.Report
	err = c.do(ctx, "import catalog", http.MethodPost, "/api/documents/import", &buf, mw.FormDataContentType(), http.StatusOK, &rep)
	return rep, err
}

// Document is a document record and whether its chunks are indexed.
type Document struct {
	Document doctree.DocumentRecord `json:"document"`
	Indexed  bool                   `json:"indexed"`
}

// GetDocument returns nil when the server does not know docID.
func (c *Client) GetDocument(ctx context.Context, docID string) (*Document, error) {
	var doc Document
	err := c.do(ctx, "get document", http.MethodGet, "/api/documents/"+url.PathEscape(docID), nil, "", http.StatusOK, &doc)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) DeleteChunks(ctx context.Context, docID string) error {
	return c.do(ctx, "delete chunks", http.MethodDelete, "/api/documents/"+url.PathEscape(docID)+"/chunks", nil, "", http.StatusOK, nil)
}

// ContextWindow returns the text of chunks center-window..center+window.
// ConferenceExists reports whether papers of a conference edition are
// registered. An empty round matches any round.
func (c *Client) ConferenceExists(ctx context.Context, name string, year int, round string) (bool, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("year", strconv.Itoa(year))
	if round != "" {
		q.Set("round", round)
	}
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, "conference exists", http.MethodGet, "/api/conferences?"+q.Encode(), nil, "", http.StatusOK, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) ContextWindow(ctx context.Context, docID string, center int64, window int) (string, error) {
	q := url.Values{}
	q.Set("center", strconv.FormatInt(center, 10))
	q.Set("window", strconv.Itoa(window))
	var out struct {
		Text string `json:"text"`
	}
	path := "/api/documents/" + url.PathEscape(docID) + "/context?" + q.Encode()
	if err := c.do(ctx, "context window", http.MethodGet, path, nil, "", http.StatusOK, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Load indexes up to five documents and waits for the results, returned in
// request order.
func (c *Client) Load(ctx context.Context, docIDs []string) ([]loader.Result, error) {
	var out struct {
		Results []loader.Result `json:"results"`
	}
	if err := c.postJSON(ctx, "load", "/api/load", map[string][]string{"doc_ids": docIDs}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// SubmitJob queues a background load and returns the job id.
func (c *Client) SubmitJob(ctx context.Context, docIDs []string) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.postJSON(ctx, "submit job", "/api/load/jobs", map[string][]string{"doc_ids": docIDs}, http.StatusAccepted, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) Job(ctx context.Context, jobID string) (*pipeline.JobSnapshot, error) {
	var snap pipeline.JobSnapshot
	if err := c.do(ctx, "get job", http.MethodGet, "/api/load/jobs/"+url.PathEscape(jobID), nil, "", http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WaitJob polls a job until it leaves the queued and running states.
func (c *Client) WaitJob(ctx context.Context, jobID string, every time.Duration) (*pipeline.JobSnapshot, error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		snap, err := c.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if snap.Status != pipeline.StatusQueued && snap.Status != pipeline.StatusRunning {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

type searchResponse struct {
	Hits []store.Hit `json:"hits"`
}

func (c *Client) SearchAbstracts(ctx context.Context, query string, k int) ([]store.Hit, error) {
	q := url.Values{}
	q.Set("q", query)
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}
	var out searchResponse
	if err := c.do(ctx, "search abstracts", http.MethodGet, "/api/search/abstracts?"+q.Encode(), nil, "", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

func (c *Client) SearchSections(ctx context.Context, sq store.SectionQuery) ([]store.Hit, error) {
	q := url.Values{}
	q.Set("q", sq.Query)
	for _, id := range sq.DocIDs {
		q.Add("doc_id", id)
	}
	if sq.Category != nil {
		q.Set("category", sq.Category.String())
	}
	if sq.K > 0 {
		q.Set("k", strconv.Itoa(sq.K))
	}
	var out searchResponse
	if err := c.do(ctx, "search sections", http.MethodGet, "/api/search/sections?"+q.Encode(), nil, "", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
