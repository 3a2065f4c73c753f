package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/cache"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

// SamplesClient fetches recent metric sample windows from the mirador-core
// aggregation API. Responses are cached for a short TTL so that tight poll
// intervals do not hammer the store.
type SamplesClient struct {
	baseURL     string
	samplesPath string
	httpClient  *http.Client
	cache       cache.Provider
	cacheTTL    time.Duration
}

// NewSamplesClient constructs a client targeting the configured mirador-core
// instance. cacheProvider may be a NoopProvider.
func NewSamplesClient(baseURL, samplesPath string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *SamplesClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &SamplesClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		samplesPath: samplesPath,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       cacheProvider,
		cacheTTL:    cacheTTL,
	}
}

// FetchRecentSamples returns up to window recent samples for the metric,
// oldest first.
func (c *SamplesClient) FetchRecentSamples(ctx context.Context, metric string, window int) ([]float64, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("mirador-core base URL not configured")
	}
	if metric == "" {
		return nil, fmt.Errorf("metric name is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("sample window must be positive")
	}

	cacheKey := fmt.Sprintf("sentinel:samples:%s:%d", metric, window)
	if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
		var samples []float64
		if err := json.Unmarshal(cached, &samples); err == nil {
			return samples, nil
		}
		// Unreadable payloads are evicted rather than served.
		_ = c.cache.Del(ctx, cacheKey)
	}

	payload := map[string]any{
		"metric": metric,
		"limit":  window,
	}

	var response struct {
		Samples []struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		} `json:"samples"`
	}

	if err := postJSON(ctx, c.httpClient, c.samplesURL(), payload, &response); err != nil {
		return nil, utils.NewOpError("repo.samples", "fetch from mirador-core", err)
	}

	samples := make([]float64, 0, len(response.Samples))
	for _, s := range response.Samples {
		samples = append(samples, s.Value)
	}
	if len(samples) == 0 {
		return nil, utils.NewOpError("repo.samples", fmt.Sprintf("no samples returned for %s", metric), nil)
	}

	if c.cacheTTL > 0 {
		if encoded, err := json.Marshal(samples); err == nil {
			_ = c.cache.Set(ctx, cacheKey, encoded, c.cacheTTL)
		}
	}
	return samples, nil
}

func (c *SamplesClient) samplesURL() string {
	return resolvePath(c.baseURL, c.samplesPath)
}

func resolvePath(baseURL, p string) string {
	if baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirador-core returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
