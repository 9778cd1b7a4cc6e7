package domain

import "time"

// EventType identifies the kind of event carried on the live connection.
type EventType string

const (
	EventNotification EventType = "notification"
	EventTyping       EventType = "typing"
	EventMessageRead  EventType = "message_read"
	EventStoryCreated EventType = "story_created"
)

// ConnectionPhase is the coarse state of the live connection.
type ConnectionPhase string

const (
	PhaseDisconnected ConnectionPhase = "disconnected"
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseReconnecting ConnectionPhase = "reconnecting"
)

// ConnectionState describes the live connection at a point in time. Attempt
// is only meaningful while Phase is PhaseReconnecting, where it is >= 1.
// GaveUp is set on the final transition to PhaseDisconnected after the
// reconnect budget is exhausted, distinguishing it from an explicit
// disconnect.
type ConnectionState struct {
	Phase   ConnectionPhase
	Attempt int
	GaveUp  bool
}

// InboundEvent is a decoded frame from the live connection. Type selects
// which of the payload pointers is populated; the others are nil. CreatedAt
// is the raw server timestamp from the frame envelope.
type InboundEvent struct {
	Type      EventType
	CreatedAt time.Time

	Notification *Notification
	Typing       *TypingEvent
	MessageRead  *MessageReadEvent
	Story        *EphemeralItem
}

// TypingEvent signals that a user started or stopped typing in a
// conversation with the current viewer.
type TypingEvent struct {
	SenderID string
	IsTyping bool
}

// MessageReadEvent signals that a previously sent message was read by its
// recipient.
type MessageReadEvent struct {
	MessageID string
}
