package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SMSConfig configures the HTTP SMS provider.
type SMSConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Sender  string `yaml:"sender"`
}

// SMSSender delivers text messages through the provider's HTTP API.
type SMSSender struct {
	cfg    SMSConfig
	client *http.Client
	logger *slog.Logger
}

func NewSMSSender(cfg SMSConfig, logger *slog.Logger) *SMSSender {
	return &SMSSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With("component", "sms"),
	}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Send submits one SMS and returns the provider's message id.
func (s *SMSSender) Send(ctx context.Context, msg *Message) (string, error) {
	payload, err := json.Marshal(smsRequest{
		To:   msg.To,
		From: s.cfg.Sender,
		Body: msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sms request: %w", err)
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read sms response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: provider returned %d", ErrCredentialsRejected, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out smsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode sms response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("sms provider error: %s", out.Error)
	}

	s.logger.Debug("sms submitted", "message_id", out.ID, "to", msg.To)
	return out.ID, nil
}
