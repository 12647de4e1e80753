package dispatcher

import (
	"context"

	"github.com/garyjia/claim-intake/internal/domain/event"
	"go.uber.org/zap"
)

// Handler processes pipeline events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler. AllTypes marks handlers that
// receive every event.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	AllTypes  bool
	Handler   Handler
}

// LogHandler writes every event it receives to the logger as an audit trail
func LogHandler(logger *zap.Logger) Handler {
	return func(_ context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.String("run_id", evt.RunID),
			zap.String("document_id", evt.DocumentID),
		}
		for k, v := range evt.Payload {
			fields = append(fields, zap.Any(k, v))
		}
		logger.Info("Pipeline event", fields...)
		return nil
	}
}
