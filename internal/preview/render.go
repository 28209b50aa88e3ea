package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Renderer turns a card's HTML into a fetchable image URL.
type Renderer interface {
	Render(ctx context.Context, html string) (imageURL string, err error)
}

// HTTPRenderer posts the HTML to an external render service and expects
// back a JSON body carrying the image URL.
type HTTPRenderer struct {
	endpoint string
	http     *http.Client
}

func NewHTTPRenderer(endpoint string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRenderer{
		endpoint: strings.TrimSpace(endpoint),
		http:     &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, html string) (string, error) {
	body, err := json.Marshal(struct {
		HTML string `json:"html"`
	}{HTML: html})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("preview: render service returned %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("preview: invalid render response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("preview: render response missing url")
	}
	return out.URL, nil
}
