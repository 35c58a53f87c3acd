package messaging

import (
	"time"

	"speaker-diarizer/pkg/diarization"

	"github.com/google/uuid"
)

// Speaker event types
const (
	EventSpeakerChange  = "speaker_change"
	EventSpeakerCreated = "speaker_created"
)

// SpeakerEvent is the message published for every speaker transition
type SpeakerEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	FromID     int       `json:"from_speaker"`
	ToID       int       `json:"speaker_id"`
	Label      string    `json:"label"`
	NewSpeaker bool      `json:"new_speaker"`
	Confidence float64   `json:"confidence"`
	StreamTime float64   `json:"stream_time"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSpeakerEvent converts an engine speaker change into a publishable event
func NewSpeakerEvent(change diarization.SpeakerChange) SpeakerEvent {
	eventType := EventSpeakerChange
	if change.NewSpeaker {
		eventType = EventSpeakerCreated
	}
	return SpeakerEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		SessionID:  change.SessionID,
		FromID:     change.FromID,
		ToID:       change.ToID,
		Label:      change.Label,
		NewSpeaker: change.NewSpeaker,
		Confidence: change.Confidence,
		StreamTime: change.Timestamp,
		Timestamp:  time.Now().UTC(),
	}
}
