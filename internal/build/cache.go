package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

// Workspace directory layout:
//
//	workspaceDir/
//	  <name>/                          # recipe-level dir (cacheDir)
//	    .cache.json                    # build cache: maps "version-combination" → buildEntry
//	    build/<combination>/           # native build tree
//	    src/<combination>/             # staged sources
//	  <name>@<version>-<combination>/  # install dir
//	    tiffpkg.yaml
//	    include/
//	    lib/
//	    lib/pkgconfig/
const cacheFile = ".cache.json"

// buildEntry contains metadata about a single successful build.
type buildEntry struct {
	Manifest   string    `json:"manifest"`
	Components []string  `json:"components"`
	BuildTime  time.Time `json:"build_time"`
}

// buildCache maps "version-combination" keys to their build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func cacheKey(version, combination string) string {
	return version + "-" + combination
}

func (c *buildCache) get(version, combination string) (*buildEntry, bool) {
	entry, ok := c.Cache[cacheKey(version, combination)]
	return entry, ok
}

func (c *buildCache) set(version, combination string, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[cacheKey(version, combination)] = entry
}

func (c *buildCache) remove(version, combination string) {
	delete(c.Cache, cacheKey(version, combination))
}

// loadCache reads the cache file in dir. A missing file is an empty cache.
func loadCache(dir string) (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(dir, cacheFile))
	if os.IsNotExist(err) {
		return &buildCache{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache atomically writes the cache file in dir.
func saveCache(dir string, cache *buildCache) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, cacheFile), data, 0o644)
}
