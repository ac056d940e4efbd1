// Package source talks to the remote campground listing API: one bounded
// search per grid region, paginated, retried, and paced.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opencamp/harvester/internal/config"
	"github.com/opencamp/harvester/internal/region"
	"github.com/opencamp/harvester/internal/resilience"
)

// Page is one page of raw listings plus the page count the source reported
// alongside it.
type Page struct {
	Raw        []map[string]any
	TotalPages int
}

// Client fetches campground listings for bounded regions.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	searchPath  string
	userAgent   string
	artifactDir string
	retry       resilience.RetryConfig
	limiter     *rate.Limiter
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.SourceConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = resilience.RetryLogger("source", "fetch-page")

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		searchPath:  cfg.SearchPath,
		userAgent:   cfg.UserAgent,
		artifactDir: cfg.ArtifactDir,
		retry:       retry,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchPage retrieves one page of listings for a region. Transient failures
// retry with exponential backoff; exhaustion propagates to the caller. An
// unrecognized response shape yields an empty page plus a diagnostic dump,
// not an error.
func (c *Client) FetchPage(ctx context.Context, r region.Region, page, pageSize int) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, eris.Wrap(err, "source: pacing wait")
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.getSearch(ctx, r, page, pageSize)
	})
	if err != nil {
		return Page{}, eris.Wrapf(err, "source: fetch page %d for region %s", page, r.ID)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Page{}, eris.Wrapf(err, "source: decode page %d for region %s", page, r.ID)
	}

	records, shape, ok := extract(payload)
	if !ok {
		c.dumpUnexpected(body, page)
		return Page{TotalPages: 1}, nil
	}

	zap.L().Debug("fetched listings page",
		zap.String("region", r.ID),
		zap.Int("page", page),
		zap.Int("records", len(records)),
		zap.String("envelope", shape),
	)

	return Page{Raw: records, TotalPages: totalPages(payload)}, nil
}

// FetchRegion paginates through every listing in a region. It stops on a
// short page, on the source's reported page count, or at maxPages as a
// guard against runaway pagination. The client's limiter paces requests.
func (c *Client) FetchRegion(ctx context.Context, r region.Region, maxPages, pageSize int) ([]map[string]any, error) {
	var all []map[string]any

	for page := 1; page <= maxPages; page++ {
		p, err := c.FetchPage(ctx, r, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Raw...)

		if len(p.Raw) < pageSize || page >= p.TotalPages {
			break
		}
	}

	zap.L().Info("region fetch complete",
		zap.String("region", r.ID),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func (c *Client) getSearch(ctx context.Context, r region.Region, page, pageSize int) ([]byte, error) {
	params := url.Values{
		"bounds":   {r.Bounds.String()},
		"sort":     {"recommended"},
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(pageSize)},
	}
	reqURL := c.baseURL + c.searchPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.baseURL+"/campgrounds")
	req.Header.Set("Origin", c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "source: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("source: status %d from %s", resp.StatusCode, reqURL), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("source: status %d from %s", resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "source: read body")
	}
	return body, nil
}

// dumpUnexpected persists an unrecognized payload for offline inspection.
func (c *Client) dumpUnexpected(body []byte, page int) {
	dir := c.artifactDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, fmt.Sprintf("unexpected_response_page%d.json", page))

	if err := os.WriteFile(path, body, 0644); err != nil {
		zap.L().Warn("could not save unexpected response", zap.Error(err))
		return
	}
	zap.L().Warn("unexpected response envelope, saved for inspection",
		zap.Int("page", page),
		zap.String("path", path),
	)
}
