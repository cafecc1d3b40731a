// Package komga triggers library rescans on a downstream Komga server.
package komga

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Client calls the Komga library-scan endpoint.
type Client struct {
	client    *http.Client
	baseURL   string
	libraryID string
	apiKey    string
}

// NewClient validates the notification settings and returns a ready
// client. A missing setting is a configuration error the operator must
// fix before notifications work; callers that never notify never hit
// this path.
func NewClient(baseURL, libraryID, apiKey string) (*Client, error) {
	if baseURL == "" || libraryID == "" || apiKey == "" {
		return nil, fmt.Errorf("komga notification requires KOMGA_BASE_URL, KOMGA_LIBRARY_ID and KOMGA_API_KEY")
	}
	return &Client{
		client:    http.DefaultClient,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		libraryID: libraryID,
		apiKey:    apiKey,
	}, nil
}

// ScanLibrary fires the rescan trigger. Komga acknowledges with 202;
// anything else is returned as an error for the caller to log.
func (c *Client) ScanLibrary(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/libraries/%s/scan", c.baseURL, c.libraryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build scan request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach komga: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("komga scan returned %s", resp.Status)
	}
	return nil
}
