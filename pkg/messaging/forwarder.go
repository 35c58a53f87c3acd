package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"speaker-diarizer/pkg/diarization"

	"github.com/sirupsen/logrus"
)

// EventPublisher delivers speaker events to a broker
type EventPublisher interface {
	PublishEvent(ctx context.Context, event SpeakerEvent) error
}

// EventForwarder is a diarization.Listener that queues speaker changes and
// publishes them from a background goroutine, so engines never block on the broker
type EventForwarder struct {
	logger         *logrus.Entry
	publisher      EventPublisher
	publishTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan SpeakerEvent
	done   chan struct{}

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// ForwarderStats counts forwarded events
type ForwarderStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// NewEventForwarder starts a forwarder with a queue of bufferSize events
func NewEventForwarder(logger *logrus.Logger, publisher EventPublisher, bufferSize int) *EventForwarder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	f := &EventForwarder{
		logger:         logger.WithField("component", "event_forwarder"),
		publisher:      publisher,
		publishTimeout: 2 * time.Second,
		events:         make(chan SpeakerEvent, bufferSize),
		done:           make(chan struct{}),
	}
	go f.run()
	return f
}

// OnAssignment is a no-op; only speaker changes are forwarded
func (f *EventForwarder) OnAssignment(string, diarization.Assignment) {}

// OnSpeakerChange queues the change, dropping it when the queue is full
func (f *EventForwarder) OnSpeakerChange(change diarization.SpeakerChange) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.dropped.Add(1)
		return
	}

	select {
	case f.events <- NewSpeakerEvent(change):
	default:
		f.dropped.Add(1)
		f.logger.WithField("session_id", change.SessionID).Warn("Event queue full, dropping speaker change")
	}
}

func (f *EventForwarder) run() {
	defer close(f.done)

	for event := range f.events {
		ctx, cancel := context.WithTimeout(context.Background(), f.publishTimeout)
		err := f.publisher.PublishEvent(ctx, event)
		cancel()

		if err != nil {
			f.failed.Add(1)
			f.logger.WithError(err).WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"type":       event.Type,
			}).Warn("Failed to publish speaker event")
			continue
		}
		f.published.Add(1)
	}
}

// Close stops accepting events and waits for the queue to drain
func (f *EventForwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	close(f.events)
	f.mu.Unlock()

	<-f.done
}

// Stats returns the forwarding counters
func (f *EventForwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Published: f.published.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}
