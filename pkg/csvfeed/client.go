package csvfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// MaxBodyBytes caps how much of a feed document is read into memory.
const MaxBodyBytes = 32 << 20

// ErrTooLarge is returned when a document exceeds MaxBodyBytes. The document
// is rejected whole rather than cut at the cap.
var ErrTooLarge = errors.New("feed document too large")

// Client retrieves raw CSV documents over HTTP(S) or from the local filesystem.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Get returns the document at location. Supported forms are http(s) URLs,
// file:// URLs and bare filesystem paths.
func (c *Client) Get(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}

	switch u.Scheme {
	case "http", "https":
		return c.getHTTP(ctx, u.String())
	case "file":
		return readFile(ctx, filepath.Join(u.Host, filepath.FromSlash(u.Path)))
	case "":
		return readFile(ctx, location)
	default:
		return nil, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

func (c *Client) getHTTP(ctx context.Context, endpoint string) ([]byte, error) {
	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, snippet)
	}

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body from %s: %w", endpoint, err)
	}
	return body, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	body, err := readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}

// readLimited reads one byte past the cap so an oversized document is
// detected instead of silently truncated.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxBodyBytes)
	}
	return body, nil
}
