package afdb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdbBody = "ATOM      1  CA  MET A   1       0.000   0.000   0.000  1.00 91.00           C\nEND\n"
const paeBody = `[{"predicted_aligned_error": [[0]], "max_predicted_aligned_error": 31.75}]`

type fakeDB struct {
	server   *httptest.Server
	requests atomic.Int32
	failures atomic.Int32
}

func newFakeDB(t *testing.T) *fakeDB {
	t.Helper()
	db := &fakeDB{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/prediction/P12345", func(w http.ResponseWriter, r *http.Request) {
		db.requests.Add(1)
		if db.failures.Load() > 0 {
			db.failures.Add(-1)
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		base := db.server.URL
		fmt.Fprintf(w, `[{"entryId": "AF-P12345-F1", "uniprotAccession": "P12345", "latestVersion": 4,
			"pdbUrl": "%s/files/AF-P12345-F1-model_v4.pdb",
			"paeDocUrl": "%s/files/AF-P12345-F1-predicted_aligned_error_v4.json"}]`, base, base)
	})
	mux.HandleFunc("/files/AF-P12345-F1-model_v4.pdb", func(w http.ResponseWriter, r *http.Request) {
		db.requests.Add(1)
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte(pdbBody))
		zw.Close()
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/files/AF-P12345-F1-predicted_aligned_error_v4.json", func(w http.ResponseWriter, r *http.Request) {
		db.requests.Add(1)
		w.Write([]byte(paeBody))
	})
	mux.HandleFunc("/files/AF-P12345-F1-model_v3.pdb", func(w http.ResponseWriter, r *http.Request) {
		db.requests.Add(1)
		w.Write([]byte(pdbBody))
	})
	mux.HandleFunc("/files/AF-P12345-F1-predicted_aligned_error_v3.json", func(w http.ResponseWriter, r *http.Request) {
		db.requests.Add(1)
		w.Write([]byte(paeBody))
	})
	db.server = httptest.NewServer(mux)
	t.Cleanup(db.server.Close)
	return db
}

func newTestClient(db *fakeDB, cacheDir string) *Client {
	return New(Options{
		BaseURL:           db.server.URL,
		Cache:             NewCache(cacheDir, time.Hour),
		RequestsPerSecond: 1000,
		Backoff:           time.Millisecond,
	})
}

func TestFetchWritesFilesAndCaches(t *testing.T) {
	db := newFakeDB(t)
	cacheDir := t.TempDir()
	out := t.TempDir()

	d, err := newTestClient(db, cacheDir).Fetch(context.Background(), "P12345", 0, out)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Version)
	assert.Equal(t, filepath.Join(out, "AF-P12345-F1-model_v4.pdb"), d.Structure)
	assert.Equal(t, filepath.Join(out, "AF-P12345-F1-predicted_aligned_error_v4.json"), d.PAE)

	structure, err := os.ReadFile(d.Structure)
	require.NoError(t, err)
	assert.Equal(t, pdbBody, string(structure))
	pae, err := os.ReadFile(d.PAE)
	require.NoError(t, err)
	assert.JSONEq(t, paeBody, string(pae))
	assert.Equal(t, int32(3), db.requests.Load())

	// A second client sharing the cache makes no requests.
	_, err = newTestClient(db, cacheDir).Fetch(context.Background(), "P12345", 0, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(3), db.requests.Load())
}

func TestFetchOlderVersion(t *testing.T) {
	db := newFakeDB(t)
	d, err := newTestClient(db, "").Fetch(context.Background(), "P12345", 3, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, d.Version)
	assert.FileExists(t, d.Structure)
	assert.Equal(t, "AF-P12345-F1-model_v3.pdb", filepath.Base(d.Structure))
}

func TestFetchNotFound(t *testing.T) {
	db := newFakeDB(t)
	_, err := newTestClient(db, "").Fetch(context.Background(), "Q99999", 0, t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetriesTransientErrors(t *testing.T) {
	db := newFakeDB(t)
	db.failures.Store(2)
	entries, err := newTestClient(db, "").Prediction(context.Background(), "P12345")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Version())
	assert.Equal(t, int32(3), db.requests.Load())

	db.failures.Store(5)
	_, err = newTestClient(db, "").Prediction(context.Background(), "P12345")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	db := newFakeDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(db, "").Prediction(ctx, "P12345")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(t.TempDir(), time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put("ns", "Key/1", []byte(`{"a": 1}`)))
	require.NoError(t, cache.Put("ns", "text", []byte("ATOM")))
	assert.FileExists(t, filepath.Join(cache.Dir, "ns", "key_1.json"))

	got, ok := cache.Get("ns", "Key/1")
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(got))
	got, ok = cache.Get("ns", "text")
	require.True(t, ok)
	assert.Equal(t, "ATOM", string(got))

	now = now.Add(2 * time.Hour)
	_, ok = cache.Get("ns", "Key/1")
	assert.False(t, ok)
}

func TestEntryVersionFromURL(t *testing.T) {
	e := Entry{PdbURL: "https://alphafold.ebi.ac.uk/files/AF-P1-F1-model_v2.pdb"}
	assert.Equal(t, 2, e.Version())
	assert.Zero(t, Entry{}.Version())
}
