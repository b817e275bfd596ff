package cache

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ResultCache is the on-disk, content-addressed store mapping
// (domain, scanner) to a JSON payload or the "invalid" sentinel. Its
// layout is <root>/<scanner>/<domain>.json.
type ResultCache struct {
	root    string
	enabled bool
}

// NewResultCache returns a ResultCache rooted at root. When enabled is
// false, Read always reports a miss but Write still persists, matching the
// "if cache mode is disabled, reads are skipped but writes always occur"
// policy.
func NewResultCache(root string, enabled bool) *ResultCache {
	return &ResultCache{root: root, enabled: enabled}
}

func (c *ResultCache) path(scanner, domain string) string {
	return filepath.Join(c.root, scanner, domain+".json")
}

// Read looks up the cached payload for (scanner, domain). hit is false
// when caching is disabled or no entry exists. A decoded value that is a
// JSON object with "invalid": true is reported as a hit with a nil
// payload, per the cache's invalid-sentinel contract: callers must not
// re-invoke the executor for it.
func (c *ResultCache) Read(scanner, domain string) (payload interface{}, hit bool, err error) {
	if !c.enabled {
		return nil, false, nil
	}

	data, err := os.ReadFile(c.path(scanner, domain))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(data, &probe); err == nil {
		if invalid, ok := probe["invalid"].(bool); ok && invalid {
			return nil, true, nil
		}
	}

	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false, err
	}

	return decoded, true, nil
}

type invalidSentinel struct {
	Invalid bool `json:"invalid"`
}

// Write persists payload for (scanner, domain), or the invalid sentinel
// when payload is nil. The replace is atomic: a temp file is written
// alongside the destination and renamed into place.
func (c *ResultCache) Write(scanner, domain string, payload interface{}) error {
	path := c.path(scanner, domain)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var data []byte
	var err error
	if payload == nil {
		data, err = json.Marshal(invalidSentinel{Invalid: true})
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
