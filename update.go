package debloat

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultListURL is the canonical location of the curated package list.
const DefaultListURL = "https://raw.githubusercontent.com/Universal-Debloater-Alliance/universal-android-debloater-next-generation/main/resources/assets/uad_lists.json"

const listFileName = "uad_lists.json"

// FetchList downloads the curated list document. The caller hands the blob
// to LoadCatalog; fetching and parsing stay separate so a bad download
// never replaces a working catalog.
func FetchList(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		url = DefaultListURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build list request")
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch package list")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch package list: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read package list body")
	}
	log.Info().Str("url", url).Int("bytes", len(data)).Msg("package list downloaded")
	return data, nil
}

// CacheDir returns the directory for the cached list document.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user cache dir")
	}
	dir := filepath.Join(base, "uadbg")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}
	return dir, nil
}

// SaveCachedList writes a fetched list document to the local cache so
// later sessions can start without a network round trip.
func SaveCachedList(data []byte) (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, listFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write cached list")
	}
	return path, nil
}

// LoadCachedCatalog loads the catalog from the local cache file, reporting
// how stale it is.
func LoadCachedCatalog() (*Catalog, time.Time, error) {
	dir, err := CacheDir()
	if err != nil {
		return nil, time.Time{}, err
	}
	path := filepath.Join(dir, listFileName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "no cached package list, run update first")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "read cached list")
	}
	catalog, err := LoadCatalog(data, path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return catalog, info.ModTime(), nil
}

// UpdateCatalog fetches, parses and caches a fresh list, returning the new
// catalog handle. The cache file is only replaced after a successful parse.
func UpdateCatalog(ctx context.Context, url string) (*Catalog, error) {
	data, err := FetchList(ctx, url)
	if err != nil {
		return nil, err
	}
	source := url
	if source == "" {
		source = DefaultListURL
	}
	catalog, err := LoadCatalog(data, source)
	if err != nil {
		return nil, err
	}
	if path, err := SaveCachedList(data); err != nil {
		log.Warn().Err(err).Msg("caching package list failed")
	} else {
		log.Info().Str("path", path).Msg("package list cached")
	}
	return catalog, nil
}
