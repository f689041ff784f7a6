package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
)

// SMSGateway sends text messages through the Twilio REST API.
type SMSGateway struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

func NewSMSGateway(cfg config.SMSConfig, timeout time.Duration) (*SMSGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, errors.New("sms gateway requires account sid, auth token and sender number")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &SMSGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *SMSGateway) Name() string { return "sms" }

func (g *SMSGateway) Send(ctx context.Context, destination, message, eventID string) error {
	if destination == "" {
		return Permanent(errors.New("sms destination is empty"))
	}

	form := url.Values{}
	form.Set("From", g.from)
	form.Set("To", destination)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Permanent(fmt.Errorf("failed to create sms request: %w", err))
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("I-Twilio-Idempotency-Token", eventID+":"+destination)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse("twilio", resp)
}
