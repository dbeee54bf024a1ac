package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/alanyoungcy/auctionarb/internal/retry"
)

// Mailer sends one HTML email. Implementations make a single attempt and
// return errors that retry.Retryable can classify.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) (id string, err error)
}

// ResendMailer sends email through the Resend HTTP API.
type ResendMailer struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewResendMailer creates a mailer. Timeouts are left to the caller's
// context.
func NewResendMailer(apiURL, apiKey, from string) *ResendMailer {
	return &ResendMailer{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		from:   from,
		client: &http.Client{},
	}
}

// SendEmail posts to /emails and returns the provider's message id.
func (m *ResendMailer) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	body, err := json.Marshal(struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}{m.from, []string{to}, subject, html})
	if err != nil {
		return "", fmt.Errorf("resend: marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("resend: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend: send request: %w", err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse("resend", resp); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("resend: decode response: %w", err)
	}
	return out.ID, nil
}
