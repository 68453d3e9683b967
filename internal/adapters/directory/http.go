// Package directory is the HTTP client for the session lifecycle
// service: token introspection on connect and the broadcast-flag reset.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	UserID domain.UserID `json:"user_id"`
}

func (d *HTTPDirectory) Authenticate(ctx context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return "", core.ErrUnauthorized
	}
	endpoint := fmt.Sprintf("%s/internal/sessions?token=%s", d.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", core.ErrUnauthorized
	}
	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("directory response: %w", err)
	}
	if body.UserID == "" {
		return "", core.ErrUnauthorized
	}
	return body.UserID, nil
}

func (d *HTTPDirectory) ClearBroadcast(ctx context.Context, id domain.HangoutID) error {
	endpoint := fmt.Sprintf("%s/internal/hangouts/%s/broadcast/clear", d.baseURL, url.PathEscape(string(id)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("directory returned %d", resp.StatusCode)
	}
	return nil
}
