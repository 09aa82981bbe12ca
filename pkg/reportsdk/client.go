package reportsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client talks to the edge.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
}

// NewClient returns a client authenticating with ts.
func NewClient(baseURL string, ts oauth2.TokenSource) *Client {
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		TokenSource: ts,
	}
}

// NewClientCredentials returns a client that obtains tokens with the
// OAuth2 client credentials grant.
func NewClientCredentials(ctx context.Context, baseURL string, cfg clientcredentials.Config) *Client {
	return NewClient(baseURL, cfg.TokenSource(ctx))
}

// IssueLink asks for a signed submission link valid for ttlSeconds
// (5 to 300; 0 lets the server choose).
func (c *Client) IssueLink(ctx context.Context, template string, ttlSeconds int) (*LinkResponse, error) {
	path := "/link/" + url.PathEscape(template)
	if ttlSeconds > 0 {
		path += "?ttl=" + strconv.Itoa(ttlSeconds)
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var link LinkResponse
	if err := decodeJSON(resp, &link, http.StatusOK); err != nil {
		return nil, err
	}
	return &link, nil
}

// SubmitLink posts params to a link from IssueLink.
func (c *Client) SubmitLink(ctx context.Context, link *LinkResponse, params any) (*DispatchResponse, error) {
	if link == nil || link.URL == "" {
		return nil, errors.New("reportsdk: empty link")
	}
	return c.post(ctx, link.URL, params)
}

// Submit posts params directly to the legacy route.
func (c *Client) Submit(ctx context.Context, template string, params any) (*DispatchResponse, error) {
	return c.post(ctx, "/generate-pdf/"+url.PathEscape(template), params)
}

func (c *Client) post(ctx context.Context, path string, params any) (*DispatchResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var out DispatchResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch downloads the rendered PDF. It returns ErrNotFound while the job
// is still queued or rendering.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pdf/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp, body)
	}
	return body, nil
}

// Await polls Fetch every interval until the PDF exists, ctx ends, or a
// non-NotFound error occurs.
func (c *Client) Await(ctx context.Context, id string, interval time.Duration) ([]byte, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pdf, err := c.Fetch(ctx, id)
		if err == nil {
			return pdf, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetLiveness calls /livez.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness calls /readyz.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var h HealthResponse
	if err := decodeJSON(resp, &h, http.StatusOK); err != nil {
		return nil, err
	}
	return &h, nil
}
