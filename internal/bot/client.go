package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// IssuedCode mirrors the backend response for a code request.
type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

type apiError struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("backend error %s: %s", e.Kind, e.Message)
}

// APIClient talks to the hub backend with the bot's shared key. One shot per
// request, no retries: the user can just tap the button again, and retrying
// here would only multiply load during an outage.
type APIClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewAPIClient(baseURL, apiKey string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) RequestCode(ctx context.Context, telegramID int64) (*IssuedCode, error) {
	payload, err := json.Marshal(map[string]int64{"telegram_id": telegramID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/auth/telegram/request-code",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		apiErr := &apiError{}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil || apiErr.Kind == "" {
			return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
		}
		return nil, apiErr
	}

	issued := &IssuedCode{}
	if err := json.NewDecoder(resp.Body).Decode(issued); err != nil {
		return nil, fmt.Errorf("decode code response: %w", err)
	}
	if issued.Code == "" {
		return nil, fmt.Errorf("backend returned empty code")
	}
	return issued, nil
}
