package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender posts messages through the Telegram bot API.
type TelegramSender struct {
	// defaultToken and defaultChatID are used when a business has no bot or
	// chat of its own.
	defaultToken  string
	defaultChatID string
	client        *http.Client
	baseURL       string
}

// NewTelegramSender creates a new telegram sender with the given fallback
// bot token and chat.
func NewTelegramSender(token, defaultChatID string) *TelegramSender {
	return &TelegramSender{
		defaultToken:  token,
		defaultChatID: defaultChatID,
		client:        &http.Client{Timeout: 10 * time.Second},
		baseURL:       telegramAPIBase,
	}
}

// Send posts one HTML-formatted message. An empty token or chatID falls back
// to the configured defaults.
func (s *TelegramSender) Send(ctx context.Context, token, chatID, text string) error {
	if token == "" {
		token = s.defaultToken
	}
	if chatID == "" {
		chatID = s.defaultChatID
	}
	if token == "" || chatID == "" {
		return fmt.Errorf("telegram not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}
	return nil
}
