package alert

import (
	"context"

	"go.uber.org/zap"
)

// LogGateway only logs the alert. It is the default channel when no
// provider credentials are configured.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Name() string { return "log" }

func (g *LogGateway) Send(_ context.Context, destination, message, eventID string) error {
	g.logger.Warn("ACCIDENT ALERT",
		zap.String("event_id", eventID),
		zap.String("destination", destination),
		zap.String("message", message))
	return nil
}
