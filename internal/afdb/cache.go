package afdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCacheTTL is how long cached responses stay fresh.
const DefaultCacheTTL = 30 * 24 * time.Hour

type cacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// Body holds payloads that are not JSON, such as PDB files.
	Body []byte `json:"body,omitempty"`
}

// Cache stores downloaded payloads on disk, one JSON file per key.
type Cache struct {
	Dir string
	TTL time.Duration

	now func() time.Time
}

// NewCache returns a cache rooted at dir. An empty dir disables caching.
func NewCache(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{Dir: dir, TTL: ttl, now: time.Now}
}

// DefaultCacheDir is $XDG_CACHE_HOME/afrigid, falling back to ~/.cache.
func DefaultCacheDir() string {
	if cache := os.Getenv("XDG_CACHE_HOME"); cache != "" {
		return filepath.Join(cache, "afrigid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".cache", "afrigid")
}

// Path is the file holding key within namespace.
func (c *Cache) Path(namespace, key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, " ", "_")
	return filepath.Join(c.Dir, namespace, fmt.Sprintf("%s.json", key))
}

// Get returns a fresh cached payload.
func (c *Cache) Get(namespace, key string) ([]byte, bool) {
	if c == nil || c.Dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.Path(namespace, key))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if c.now().Sub(entry.FetchedAt) > c.TTL {
		return nil, false
	}
	if entry.Body != nil {
		return entry.Body, true
	}
	return entry.Payload, true
}

// Put stores payload under key.
func (c *Cache) Put(namespace, key string, payload []byte) error {
	if c == nil || c.Dir == "" {
		return nil
	}
	path := c.Path(namespace, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	entry := cacheEntry{FetchedAt: c.now()}
	if json.Valid(payload) {
		entry.Payload = payload
	} else {
		entry.Body = payload
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
