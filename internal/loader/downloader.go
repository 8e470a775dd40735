package loader

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dgallion1/paperidx/internal/backoff"
)

const (
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	acceptHeader  = "application/pdf,application/octet-stream,*/*"
	maxBodyBytes  = 200 << 20
	defaultName   = "document.pdf"
	defaultTries  = 3
	defaultDelay  = 2 * time.Second
	defaultExpiry = 120 * time.Second
)

// Download is a fetched document payload.
type Download struct {
	URL         string
	Name        string
	ContentType string
	Data        []byte
}

// Fetcher retrieves the document at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Download, error)
}

// DownloaderConfig configures a Downloader. A zero MaxAttempts or Timeout
// takes the default; a zero RetryDelay retries immediately.
type DownloaderConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	Cache       *Cache
	Log         *slog.Logger
}

// Downloader fetches papers over HTTP with retries. A certificate failure
// switches the remaining attempts to a transport that skips verification.
type Downloader struct {
	client      *http.Client
	insecure    *http.Client
	maxAttempts int
	retryDelay  time.Duration
	cache       *Cache
	log         *slog.Logger
}

var _ Fetcher = (*Downloader)(nil)

func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultTries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultExpiry
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &Downloader{
		client:      &http.Client{Timeout: cfg.Timeout},
		insecure:    &http.Client{Timeout: cfg.Timeout, Transport: insecure},
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		cache:       cfg.Cache,
		log:         cfg.Log,
	}
}

// Fetch downloads rawURL. An HTML landing page that names its PDF through a
// citation_pdf_url meta tag is followed once.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	log := d.log.With("url", rawURL)
	if d.cache != nil {
		if data, ok := d.cache.Get(rawURL); ok {
			log.Debug("download cache hit")
			return &Download{URL: rawURL, Name: nameOf(rawURL), ContentType: "application/pdf", Data: data}, nil
		}
	}

	dl, err := d.fetchWithRetry(ctx, rawURL, log)
	if err != nil {
		return nil, err
	}

	if !isPDF(dl.Data) && isHTML(dl) {
		if pdfURL := citationPDFURL(dl); pdfURL != "" && pdfURL != rawURL {
			log.Info("following citation_pdf_url", "pdf_url", pdfURL)
			next, err := d.fetchWithRetry(ctx, pdfURL, log.With("pdf_url", pdfURL))
			if err != nil {
				return nil, err
			}
			dl = next
		}
	}

	if !isPDF(dl.Data) {
		log.Warn("response is not a PDF", "content_type", dl.ContentType, "bytes", len(dl.Data))
	} else if d.cache != nil {
		if err := d.cache.Put(rawURL, dl.Data); err != nil {
			log.Warn("download cache write failed", "error", err)
		}
	}
	return dl, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, rawURL string, log *slog.Logger) (*Download, error) {
	client := d.client
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff.Linear(attempt-1, d.retryDelay)
			log.Warn("retrying download", "attempt", attempt+1, "wait", wait, "error", lastErr)
			if err := backoff.Sleep(ctx, wait); err != nil {
				return nil, &TransportError{URL: rawURL, Err: err}
			}
		}

		dl, err := d.get(ctx, client, rawURL)
		if err == nil {
			return dl, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if isCertificateError(err) && client != d.insecure {
			log.Warn("certificate verification failed, retrying without verification")
			client = d.insecure
			continue
		}
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (d *Downloader) get(ctx context.Context, client *http.Client, rawURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, StatusCode: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if ref := referer(req.URL); ref != "" {
		req.Header.Set("Referer", ref)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return &Download{
		URL:         rawURL,
		Name:        nameOf(resp.Request.URL.String()),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func referer(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func nameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultName
	}
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		return defaultName
	}
	return base
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF"))
}

func isHTML(dl *Download) bool {
	if strings.Contains(strings.ToLower(dl.ContentType), "text/html") {
		return true
	}
	head := bytes.ToLower(dl.Data[:min(len(dl.Data), 512)])
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html"))
}

// citationPDFURL returns the absolute URL of the citation_pdf_url meta tag,
// or "" when the page has none.
func citationPDFURL(dl *Download) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(dl.Data))
	if err != nil {
		return ""
	}
	content, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return ""
	}
	base, err := url.Parse(dl.URL)
	if err != nil {
		return content
	}
	ref, err := url.Parse(content)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func isCertificateError(err error) bool {
	var unknown x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var verify *tls.CertificateVerificationError
	switch {
	case errors.As(err, &unknown), errors.As(err, &invalid), errors.As(err, &hostname), errors.As(err, &verify):
		return true
	}
	return strings.Contains(err.Error(), "x509:")
}
