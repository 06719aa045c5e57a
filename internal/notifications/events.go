package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

// Activity event types.
const (
	EventModelCreated    = "model_created"
	EventModelDeleted    = "model_deleted"
	EventModelDownloaded = "model_downloaded"
	EventModelLiked      = "model_liked"
	// EventDropped tells a slow viewer that some events were skipped.
	EventDropped = "events_dropped"
)

// Event is one catalog activity item as sent to clients.
type Event struct {
	Type     string    `json:"type"`
	ModelID  string    `json:"model_id,omitempty"`
	Title    string    `json:"title,omitempty"`
	Category string    `json:"category,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts activity events. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Feed publishes through Redis when available and straight to the local hub otherwise.
type Feed struct {
	hub      *Hub
	notifier *Notifier
	now      func() time.Time
}

// NewFeed builds a Feed. Either argument may be nil.
func NewFeed(hub *Hub, notifier *Notifier) *Feed {
	return &Feed{hub: hub, notifier: notifier, now: time.Now}
}

// Publish implements Publisher.
func (f *Feed) Publish(ctx context.Context, e Event) {
	if f == nil {
		return
	}
	if e.At.IsZero() {
		e.At = f.now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "encode activity event", slog.String("error", err.Error()))
		return
	}
	observability.ActivityEventsTotal.WithLabelValues(e.Type).Inc()

	if f.notifier.Enabled() {
		err := f.notifier.PublishActivity(ctx, string(payload))
		if err == nil {
			return
		}
		observability.RedisErrorRate.WithLabelValues("publish_activity").Inc()
		observability.GlobalLogger.WarnContext(ctx, "activity publish failed, delivering locally",
			slog.String("error", err.Error()))
	}
	if f.hub != nil {
		f.hub.BroadcastAll(payload)
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
