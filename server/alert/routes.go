package alert

import (
	"fmt"
	"strings"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"go.uber.org/zap"
)

// Route binds a named channel to a gateway and the destinations it serves.
type Route struct {
	Channel      string
	Gateway      Gateway
	Destinations []string
}

// BuildRoutes creates one route per configured channel name.
func BuildRoutes(cfg config.AlertsConfig, logger *zap.Logger) ([]Route, error) {
	var routes []Route
	seen := make(map[string]bool)

	for _, raw := range cfg.Channels {
		channel := strings.ToLower(strings.TrimSpace(raw))
		if channel == "" || seen[channel] {
			continue
		}
		seen[channel] = true

		route := Route{Channel: channel}
		switch channel {
		case "log":
			route.Gateway = NewLogGateway(logger)
			route.Destinations = []string{"log"}
		case "sms":
			gw, err := NewSMSGateway(cfg.SMS, cfg.AttemptTimeout)
			if err != nil {
				return nil, err
			}
			route.Gateway = gw
			route.Destinations = cfg.SMS.To
		case "email":
			gw, err := NewEmailGateway(cfg.Email)
			if err != nil {
				return nil, err
			}
			route.Gateway = gw
			route.Destinations = cfg.Email.To
		case "telegram":
			gw, err := NewTelegramGateway(cfg.Telegram, cfg.AttemptTimeout)
			if err != nil {
				return nil, err
			}
			route.Gateway = gw
			if cfg.Telegram.ChatID != "" {
				route.Destinations = []string{cfg.Telegram.ChatID}
			}
		case "webhook":
			route.Gateway = NewWebhookGateway(cfg.AttemptTimeout)
			if cfg.Webhook.URL != "" {
				route.Destinations = []string{cfg.Webhook.URL}
			}
		default:
			return nil, fmt.Errorf("unknown alert channel %q", raw)
		}

		if len(route.Destinations) == 0 {
			return nil, fmt.Errorf("alert channel %q has no destinations", channel)
		}
		routes = append(routes, route)
	}

	if len(routes) == 0 {
		routes = append(routes, Route{Channel: "log", Gateway: NewLogGateway(logger), Destinations: []string{"log"}})
	}
	return routes, nil
}
