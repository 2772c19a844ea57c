package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// Feeds are tiny, anything bigger than this is not a recent tracks feed
	maxBodySize = 1 << 20

	DefaultUserAgent = "recenttrack/1.0"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Response is the raw outcome of one feed request
type Response struct {
	StatusCode int
	Body       []byte
}

// Client issues the unauthenticated feed GET
type Client struct {
	HTTP      *http.Client
	UserAgent string

	// now is used for the cache busting parameter
	now func() time.Time
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		HTTP:      httpClient,
		UserAgent: DefaultUserAgent,
		now:       time.Now,
	}
}

// CacheBusted appends t={epoch-ms} to the feed URL
func CacheBusted(feedURL string, now time.Time) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse feed URL: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch requests the feed. Any HTTP status is returned as a Response, only
// transport failures and context cancellation produce an error.
func (c *Client) Fetch(ctx context.Context, feedURL string) (*Response, error) {
	target, err := CacheBusted(feedURL, c.now())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	log.WithFields(log.Fields{
		"url":    target,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}).Debug("Fetched feed")

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Err maps a response status to the error the CLI reports
func (r *Response) Err() error {
	switch r.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w %d", ErrUnexpectedStatus, r.StatusCode)
	}
}
