// Package notify delivers transient success/failure notices about staff
// actions to whoever displays them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "lunexops/contracts/mq"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
	LevelInfo    Level = "info"
)

type Event struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ProjectID string    `json:"project_id,omitempty"`
	LeadID    string    `json:"lead_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier accepts notices. Delivery failures are the notifier's problem,
// never the caller's.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

func Success(title, message string) Event {
	return Event{Level: LevelSuccess, Title: title, Message: message}
}

func Failure(title, message string) Event {
	return Event{Level: LevelFailure, Title: title, Message: message}
}

func stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e
}

// EventPublisher is the part of the MQ publisher the notifier needs.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// MQNotifier publishes notices on the events exchange.
type MQNotifier struct {
	publisher EventPublisher
	logger    *zap.Logger
}

func NewMQNotifier(publisher EventPublisher, logger *zap.Logger) *MQNotifier {
	return &MQNotifier{publisher: publisher, logger: logger}
}

func (n *MQNotifier) Notify(ctx context.Context, e Event) {
	e = stamp(e)
	payload := mqcontracts.NotificationEmittedPayload{
		ID:        e.ID,
		Level:     string(e.Level),
		Title:     e.Title,
		Message:   e.Message,
		ProjectID: e.ProjectID,
		LeadID:    e.LeadID,
		CreatedAt: e.CreatedAt,
	}
	if err := n.publisher.PublishWithContext(ctx, mqcontracts.RoutingNotificationEmitted, payload); err != nil {
		n.logger.Warn("Failed to publish notification",
			zap.String("level", string(e.Level)),
			zap.String("title", e.Title),
			zap.Error(err),
		)
	}
}

// Feed keeps the most recent notices in memory for polling clients.
type Feed struct {
	mu     sync.Mutex
	events []Event
	size   int
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 50
	}
	return &Feed{size: size}
}

func (f *Feed) Notify(_ context.Context, e Event) {
	e = stamp(e)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	if len(f.events) > f.size {
		f.events = f.events[len(f.events)-f.size:]
	}
}

// Recent returns notices newest first.
func (f *Feed) Recent() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	for i, e := range f.events {
		out[len(f.events)-1-i] = e
	}
	return out
}

// Fanout forwards every notice to each notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, e Event) {
	e = stamp(e)
	for _, n := range f {
		n.Notify(ctx, e)
	}
}
