// Package discogs is the HTTP adapter for the Discogs REST API. It exposes
// the two endpoints the pipeline consumes (collection pages and master
// records) behind a [Client] that paces every outbound request through a
// shared rate limiter, so both engines respect the API rate limit without
// sleeping in their own loops.
package discogs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Discogs API endpoint.
const DefaultBaseURL = "https://api.discogs.com"

// perPage is the fixed collection page size.
const perPage = 100

// Client talks to the Discogs API on behalf of one user. All requests carry
// the user's personal access token and a descriptive User-Agent, as the API
// terms require.
type Client struct {
	base      string
	username  string
	token     string
	userAgent string
	hc        *http.Client
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewClient creates a Client. requestInterval is the minimum spacing between
// any two outbound requests; the limiter admits one request per interval with
// no burst, which is the pacing the Discogs rate limit expects.
func NewClient(baseURL, username, token, version string, requestInterval time.Duration, logger *slog.Logger) *Client {
	return &Client{
		base:      strings.TrimRight(baseURL, "/"),
		username:  username,
		token:     token,
		userAgent: "discosync/" + version,
		hc:        &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(requestInterval), 1),
		log:       logger,
	}
}

// CollectionPage fetches one page of the user's collection (folder 0 = all).
func (c *Client) CollectionPage(ctx context.Context, page int) (*CollectionPage, error) {
	endpoint := fmt.Sprintf("%s/users/%s/collection/folders/0/releases?page=%d&per_page=%d",
		c.base, c.username, page, perPage)

	var result CollectionPage
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("fetching collection page %d: %w", page, err)
	}
	return &result, nil
}

// Master fetches the master record referenced by a release.
func (c *Client) Master(ctx context.Context, masterID int64) (*Master, error) {
	endpoint := fmt.Sprintf("%s/masters/%d", c.base, masterID)

	var result Master
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("fetching master %d: %w", masterID, err)
	}
	return &result, nil
}

// get performs one paced, authenticated GET and decodes the JSON response
// into out.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Discogs token="+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("Discogs returned 401 Unauthorized — check your token")
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("Discogs returned 429 Too Many Requests")
	case resp.StatusCode >= 300:
		// Surface a short error body fragment when present; Discogs puts a
		// "message" field in error responses.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("Discogs returned status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("Discogs returned unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
