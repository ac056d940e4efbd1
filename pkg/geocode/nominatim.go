package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/opencamp/harvester/internal/config"
	"github.com/opencamp/harvester/internal/resilience"
)

// nominatimZoom requests the most detailed address the service can build.
const nominatimZoom = 18

// Nominatim is the primary reverse-geocoding client against the
// OpenStreetMap Nominatim API.
type Nominatim struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	retry      resilience.RetryConfig
	limiter    *rate.Limiter
}

// NewNominatim builds the client from configuration.
func NewNominatim(cfg config.GeocodeConfig) *Nominatim {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1.0
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = resilience.RetryLogger("geocode", "reverse")

	return &Nominatim{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		retry:      retry,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Lookup reverse-geocodes the coordinates, retrying transient failures with
// the shared backoff policy. A miss — exhausted retries included — returns
// "" with a nil error; this path is never fatal for a record.
func (n *Nominatim) Lookup(ctx context.Context, lat, lon float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "geocode: pacing wait")
	}

	addr, err := resilience.DoVal(ctx, n.retry, func(ctx context.Context) (string, error) {
		return n.reverse(ctx, lat, lon)
	})
	if err != nil {
		if resilience.IsTransient(err) {
			return "", nil // retries exhausted: a miss, not an error
		}
		return "", err
	}
	return addr, nil
}

func (n *Nominatim) reverse(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{
		"format":          {"json"},
		"lat":             {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":             {strconv.FormatFloat(lon, 'f', -1, 64)},
		"zoom":            {strconv.Itoa(nominatimZoom)},
		"addressdetails":  {"1"},
		"accept-language": {"en"},
	}
	reqURL := n.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(
			eris.Errorf("geocode: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("geocode: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "geocode: read body")
	}

	var decoded struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", eris.Wrap(err, "geocode: decode response")
	}

	return decoded.DisplayName, nil
}
