package parliament

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"westminster/internal/platform/logger"
)

// DiskCache stores successful GET responses on disk so idempotent lookups
// (the overview API in particular) survive restarts. One body file per
// entry plus a .meta sidecar. Only 2xx responses ever reach Put, so
// failures are never served from cache.
type DiskCache struct {
	dir    string
	maxAge time.Duration // 0 = entries never expire
	log    logger.Logger
}

// cacheMeta is a tiny sidecar json with the fields we actually use
type cacheMeta struct {
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewDiskCache builds a cache rooted at dir; maxAge of 0 disables expiry
func NewDiskCache(dir string, maxAge time.Duration) *DiskCache {
	_ = os.MkdirAll(dir, 0o755)
	return &DiskCache{dir: dir, maxAge: maxAge, log: *logger.Named("httpcache")}
}

// key hashes the full request URL into a filename
func (c *DiskCache) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached body for url, or (nil, false) on miss or expiry
func (c *DiskCache) Get(url string) ([]byte, bool) {
	base := filepath.Join(c.dir, c.key(url))

	metaRaw, err := os.ReadFile(base + ".meta")
	if err != nil {
		return nil, false
	}
	var meta cacheMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(meta.FetchedAt) > c.maxAge {
		_ = os.Remove(base + ".body")
		_ = os.Remove(base + ".meta")
		return nil, false
	}

	body, err := os.ReadFile(base + ".body")
	if err != nil {
		return nil, false
	}
	return body, true
}

// Put stores body for url. Write failures are logged and ignored; the
// cache is an optimisation, not a source of truth.
func (c *DiskCache) Put(url string, body []byte) {
	base := filepath.Join(c.dir, c.key(url))

	if err := os.WriteFile(base+".body", body, 0o644); err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("cache body write failed")
		return
	}
	meta := cacheMeta{URL: url, Size: int64(len(body)), FetchedAt: time.Now().UTC()}
	raw, _ := json.Marshal(meta)
	if err := os.WriteFile(base+".meta", raw, 0o644); err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("cache meta write failed")
		_ = os.Remove(base + ".body")
	}
}
