// Package afdb downloads predicted models and PAE documents from the
// AlphaFold Protein Structure Database.
package afdb

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the database has no entry for an accession.
var ErrNotFound = errors.New("not found in AlphaFold DB")

// DefaultBaseURL is the public AlphaFold DB.
const DefaultBaseURL = "https://alphafold.ebi.ac.uk"

var versionPattern = regexp.MustCompile(`_v(\d+)\.[a-z]+$`)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL           string
	Cache             *Cache
	RequestsPerSecond float64
	Timeout           time.Duration
	Attempts          int
	Backoff           time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client is a rate limited, caching AlphaFold DB client.
type Client struct {
	baseURL  string
	cache    *Cache
	http     *http.Client
	limiter  *rate.Limiter
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// New returns a client for opts.
func New(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		cache:    opts.Cache,
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		logger:   opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	if c.logger == nil {
		c.logger = slog.Default().With("component", "afdb")
	}
	return c
}

// Entry is one model listed by the prediction API.
type Entry struct {
	EntryID          string `json:"entryId"`
	UniprotAccession string `json:"uniprotAccession"`
	UniprotStart     int    `json:"uniprotStart"`
	UniprotEnd       int    `json:"uniprotEnd"`
	LatestVersion    int    `json:"latestVersion"`
	PdbURL           string `json:"pdbUrl"`
	CifURL           string `json:"cifUrl"`
	PaeDocURL        string `json:"paeDocUrl"`
}

// Version is the model version, from LatestVersion or the file URL.
func (e Entry) Version() int {
	if e.LatestVersion > 0 {
		return e.LatestVersion
	}
	if m := versionPattern.FindStringSubmatch(e.PdbURL); m != nil {
		v, _ := strconv.Atoi(m[1])
		return v
	}
	return 0
}

// Prediction lists the models of a UniProt accession.
func (c *Client) Prediction(ctx context.Context, accession string) ([]Entry, error) {
	accession = strings.TrimSpace(accession)
	if accession == "" {
		return nil, errors.New("empty accession")
	}
	body, err := c.fetchWithCache(ctx, "alphafold", accession, c.baseURL+"/api/prediction/"+url.PathEscape(accession))
	if err != nil {
		return nil, fmt.Errorf("alphafold lookup %s: %w", accession, err)
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("alphafold lookup %s: %w", accession, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("alphafold lookup %s: %w", accession, ErrNotFound)
	}
	return entries, nil
}

// Download is the pair of files written by Fetch.
type Download struct {
	Accession string `json:"accession"`
	Version   int    `json:"version"`
	Structure string `json:"structure"`
	PAE       string `json:"pae"`
}

// ModelFileName is the AlphaFold DB name of a model file.
func ModelFileName(accession string, version int) string {
	return fmt.Sprintf("AF-%s-F1-model_v%d.pdb", accession, version)
}

// PAEFileName is the AlphaFold DB name of a PAE document.
func PAEFileName(accession string, version int) string {
	return fmt.Sprintf("AF-%s-F1-predicted_aligned_error_v%d.json", accession, version)
}

// Fetch downloads the model and PAE document of accession into outDir.
// version 0 selects the latest version.
func (c *Client) Fetch(ctx context.Context, accession string, version int, outDir string) (*Download, error) {
	entries, err := c.Prediction(ctx, accession)
	if err != nil {
		return nil, err
	}
	entry := entries[0]
	acc := entry.UniprotAccession
	if acc == "" {
		acc = strings.ToUpper(strings.TrimSpace(accession))
	}

	pdbURL, paeURL := entry.PdbURL, entry.PaeDocURL
	if version == 0 {
		version = entry.Version()
	}
	if version == 0 {
		return nil, fmt.Errorf("alphafold entry %s has no model version", acc)
	}
	if version != entry.Version() || pdbURL == "" || paeURL == "" {
		pdbURL = c.baseURL + "/files/" + ModelFileName(acc, version)
		paeURL = c.baseURL + "/files/" + PAEFileName(acc, version)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	d := &Download{
		Accession: acc,
		Version:   version,
		Structure: filepath.Join(outDir, ModelFileName(acc, version)),
		PAE:       filepath.Join(outDir, PAEFileName(acc, version)),
	}
	key := fmt.Sprintf("%s_v%d", acc, version)
	for _, f := range []struct {
		namespace, url, path string
	}{
		{"alphafold-pdb", pdbURL, d.Structure},
		{"alphafold-pae", paeURL, d.PAE},
	} {
		body, err := c.fetchWithCache(ctx, f.namespace, key, f.url)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", f.url, err)
		}
		if err := os.WriteFile(f.path, body, 0o644); err != nil {
			return nil, err
		}
		c.logger.Info("downloaded", "accession", acc, "path", f.path, "bytes", len(body))
	}
	return d, nil
}

func (c *Client) fetchWithCache(ctx context.Context, namespace, key, rawURL string) ([]byte, error) {
	if payload, ok := c.cache.Get(namespace, key); ok {
		c.logger.Debug("cache hit", "namespace", namespace, "key", key)
		return payload, nil
	}
	payload, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(namespace, key, payload); err != nil {
		c.logger.Warn("cache write failed", "namespace", namespace, "key", key, "err", err)
	}
	return payload, nil
}

// get retries transient failures with linear backoff. A 404 is final.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, retry, err := c.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		c.logger.Debug("request failed", "url", rawURL, "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, fmt.Errorf("%w (%s)", ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, true, fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.Header.Get("Content-Encoding") == "gzip" || isGzip(body) {
		decoded, err := gunzip(body)
		if err != nil {
			return nil, false, err
		}
		return decoded, false, nil
	}
	return body, false, nil
}

func isGzip(body []byte) bool {
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

func gunzip(body []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
