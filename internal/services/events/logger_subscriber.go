package events

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs pipeline events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch p := event.Payload.(type) {
		case models.CaptureState:
			logEvent = logEvent.
				Str("user_id", p.UserID).
				Str("platform", string(p.Platform)).
				Str("phase", string(p.Phase)).
				Int("attempt", p.AttemptCount)
		case map[string]interface{}:
			if userID, ok := p["user_id"].(string); ok {
				logEvent = logEvent.Str("user_id", userID)
			}
			if platform, ok := p["platform"].(string); ok {
				logEvent = logEvent.Str("platform", platform)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range []interfaces.EventType{
		interfaces.EventCaptureStatus,
		interfaces.EventScrapeFinished,
		interfaces.EventBatchFinished,
	} {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}
	return nil
}
