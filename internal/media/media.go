// Package media implements the external media-upload collaborator.
// Images and videos never live in the message store; they are handed to
// an object store that returns the URL stored as message content.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"parley/internal/data"
)

// HTTPUploader posts payloads to an upload endpoint that answers with
// {"url": "..."}. It satisfies the message store's upload contract.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

var _ data.Uploader = (*HTTPUploader)(nil)

// NewHTTPUploader builds an uploader for the given endpoint.
func NewHTTPUploader(endpoint string) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload sends the payload and returns the stored URL.
func (u *HTTPUploader) Upload(ctx context.Context, payload []byte, kind string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint+"?kind="+kind, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("upload endpoint returned unreadable body: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("upload endpoint returned no url")
	}
	return body.URL, nil
}
