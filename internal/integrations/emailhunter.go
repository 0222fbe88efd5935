// AngelaMos | 2026
// emailhunter.go

package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

const defaultEmailHunterURL = "https://api.hunter.io/v2/email-verifier"

type EmailHunter struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewEmailHunter(cfg config.EmailHunterConfig) *EmailHunter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultEmailHunterURL
	}

	return &EmailHunter{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

type emailHunterResponse struct {
	Data struct {
		Status string `json:"status"`
		Result string `json:"result"`
		Score  int    `json:"score"`
	} `json:"data"`
}

// Verify asks Hunter whether email can receive mail. Only an explicit
// invalid or disposable verdict counts as undeliverable; any transport or
// API failure is returned as an error so the caller can decide.
func (h *EmailHunter) Verify(ctx context.Context, email string) (bool, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("api_key", h.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("emailhunter: build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("emailhunter: %w: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("emailhunter: status %d: %w", resp.StatusCode, core.ErrUnavailable)
	}

	var body emailHunterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("emailhunter: decode response: %w", err)
	}

	switch body.Data.Status {
	case "invalid", "disposable":
		return false, nil
	}
	return body.Data.Result != "undeliverable", nil
}
