package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"

	"github.com/jpillora/backoff"
)

const cacheMaxAge = 24 * time.Hour

// DirectoryFetcher retrieves the server directory from the remote API.
// A cheap connectivity/shape probe runs before each real fetch; failures
// of either kind retry with exponential backoff. Successful results are
// written to the cache file before being returned.
type DirectoryFetcher struct {
	client     *http.Client
	cachePath  string
	maxRetries int
}

func NewDirectoryFetcher(cachePath string) *DirectoryFetcher {
	return &DirectoryFetcher{
		client:     &http.Client{Timeout: 10 * time.Second},
		cachePath:  cachePath,
		maxRetries: 3,
	}
}

func (f *DirectoryFetcher) Fetch(ctx context.Context, endpoint string) (*ServerDirectory, error) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		logger.Debugf("fetching servers (attempt %d/%d)", attempt+1, f.maxRetries)

		if err := f.probe(ctx, endpoint); err != nil {
			lastErr = fmt.Errorf("connectivity test: %w", err)
		} else if dir, err := f.fetchOnce(ctx, endpoint); err != nil {
			lastErr = err
		} else {
			if err := f.SaveCache(dir); err != nil {
				logger.Warning("saving servers cache: ", err)
			}
			return dir, nil
		}

		logger.Errorf("error fetching servers (attempt %d): %v", attempt+1, lastErr)
		if attempt < f.maxRetries-1 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return nil, &FetchError{Endpoint: endpoint, Attempts: attempt + 1, Err: ctx.Err()}
			}
		}
	}
	return nil, &FetchError{Endpoint: endpoint, Attempts: f.maxRetries, Err: lastErr}
}

// probe checks that the endpoint answers 2xx with a non-empty JSON array
// whose records carry the fields selection needs.
func (f *DirectoryFetcher) probe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return fmt.Errorf("invalid JSON structure: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("empty server list")
	}
	for _, field := range []string{"country", "location"} {
		if _, ok := records[0][field]; !ok {
			return fmt.Errorf("server records missing %q field", field)
		}
	}
	return nil
}

func (f *DirectoryFetcher) fetchOnce(ctx context.Context, endpoint string) (*ServerDirectory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	logger.Debugf("API request completed in %.2fs", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var servers []model.ServerRecord
	if err := json.Unmarshal(body, &servers); err != nil {
		return nil, fmt.Errorf("invalid server payload: %w", err)
	}
	if err := validateServers(servers); err != nil {
		return nil, err
	}

	logger.Infof("successfully fetched %d servers", len(servers))
	return &ServerDirectory{Servers: servers, FetchedAt: time.Now()}, nil
}

func validateServers(servers []model.ServerRecord) error {
	if len(servers) == 0 {
		return fmt.Errorf("invalid server data structure")
	}
	first := servers[0]
	if first.Country == "" || first.Location == "" || first.PubKey == "" || first.ConnectionName == "" {
		return fmt.Errorf("server data missing required fields")
	}
	return nil
}

// cacheDocument is the on-disk cache contract: server array, ISO
// timestamp, schema version.
type cacheDocument struct {
	Servers   []model.ServerRecord `json:"servers"`
	Timestamp string               `json:"timestamp"`
	Version   string               `json:"version"`
}

func (f *DirectoryFetcher) SaveCache(dir *ServerDirectory) error {
	doc := cacheDocument{
		Servers:   dir.Servers,
		Timestamp: dir.FetchedAt.Format(time.RFC3339),
		Version:   "1.0",
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path.Dir(f.cachePath), 0o750); err != nil {
		return err
	}
	return os.WriteFile(f.cachePath, data, 0o644)
}

// LoadCache reads the cache artifact. A cache older than 24 h is treated
// as absent.
func (f *DirectoryFetcher) LoadCache() (*ServerDirectory, error) {
	data, err := os.ReadFile(f.cachePath)
	if err != nil {
		return nil, err
	}
	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	cachedTime, err := time.Parse(time.RFC3339, doc.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid cache timestamp: %w", err)
	}
	if time.Since(cachedTime) > cacheMaxAge {
		return nil, fmt.Errorf("server cache is stale")
	}
	if len(doc.Servers) == 0 {
		return nil, fmt.Errorf("server cache is empty")
	}
	logger.Infof("loaded %d servers from cache", len(doc.Servers))
	return &ServerDirectory{Servers: doc.Servers, FetchedAt: cachedTime}, nil
}
