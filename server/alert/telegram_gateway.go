package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
)

// TelegramGateway posts alerts through the Telegram Bot API. The
// destination is a chat id.
type TelegramGateway struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

func NewTelegramGateway(cfg config.TelegramConfig, timeout time.Duration) (*TelegramGateway, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram gateway requires a bot token")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   cfg.BotToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *TelegramGateway) Name() string { return "telegram" }

func (g *TelegramGateway) Send(ctx context.Context, destination, message, _ string) error {
	if destination == "" {
		return Permanent(errors.New("telegram chat id is empty"))
	}

	payload := map[string]interface{}{
		"chat_id": destination,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal telegram payload: %w", err))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", g.baseURL, g.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse("telegram", resp)
}
