package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultResendBaseURL = "https://api.resend.com"

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	apiKey     string
	from       string
	replyTo    string
	baseURL    string
	httpClient *http.Client
}

func NewResendSender(apiKey, from, replyTo, baseURL string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY not set")
	}
	if from == "" {
		return nil, fmt.Errorf("EMAIL_FROM not set")
	}
	if baseURL == "" {
		baseURL = defaultResendBaseURL
	}
	return &ResendSender{
		apiKey:     apiKey,
		from:       from,
		replyTo:    replyTo,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func (r *ResendSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	payload, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		HTML:    body,
		ReplyTo: r.replyTo,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("resend error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out resendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return SendResult{}, fmt.Errorf("decode response: %w", err)
	}

	return SendResult{
		MessageID: out.ID,
		SentAt:    time.Now(),
	}, nil
}
