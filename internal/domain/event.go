package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventRegister        EventType = "register"
	EventRegisterConfirm EventType = "register_confirm"
	EventRegisterError   EventType = "register_error"
	EventPing            EventType = "ping"
	EventPong            EventType = "pong"
	EventNewActivity     EventType = "new_activity"
	EventReturned        EventType = "activity_returned"
	EventCompleted       EventType = "activity_completed"
	EventProgress        EventType = "activity_progress"
	EventReprintUpdate   EventType = "reprint_request_update"
)

// EventPayload is the closed set of channel message bodies. The unexported
// method keeps the union sealed so dispatch switches stay exhaustive.
type EventPayload interface {
	eventType() EventType
}

// Event is one typed channel message. Events are hints to refetch
// authoritative state, never the state itself: delivery is at-most-once and
// unordered, and a missed event is compensated by the next poll cycle.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	HighPriority bool
	Payload      EventPayload
}

// ActivityInfo is the order summary embedded in activity events.
type ActivityInfo struct {
	OrderID    int        `json:"order_id"`
	Title      string     `json:"title"`
	ClientRef  string     `json:"client_ref"`
	Department Department `json:"department"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

type RegisterPayload struct {
	Department Department `json:"department"`
}

type RegisterConfirmPayload struct {
	Department Department `json:"department"`
}

type RegisterErrorPayload struct {
	Department Department `json:"department"`
	Reason     string     `json:"reason"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"server_time"`
}

type NewActivityPayload struct {
	Activity ActivityInfo `json:"activity"`
}

type ReturnedPayload struct {
	Activity   ActivityInfo `json:"activity"`
	From       Department   `json:"from"`
	ReturnedBy string       `json:"returnedBy"`
	Notes      string       `json:"notes,omitempty"`
}

type CompletedPayload struct {
	Activity    ActivityInfo `json:"activity"`
	Department  Department   `json:"department"`
	CompletedBy string       `json:"completedBy"`
	// Final marks the order leaving the last stage.
	Final bool `json:"final,omitempty"`
}

type ProgressPayload struct {
	Activity   ActivityInfo   `json:"activity"`
	Department Department     `json:"department"`
	Status     ProgressStatus `json:"status"`
}

type ReprintUpdatePayload struct {
	RequestID     int           `json:"request_id"`
	OrderID       int           `json:"order_id"`
	ActivityTitle string        `json:"activityTitle"`
	Status        ReprintStatus `json:"status"`
	ProcessedBy   string        `json:"processedBy"`
}

func (RegisterPayload) eventType() EventType        { return EventRegister }
func (RegisterConfirmPayload) eventType() EventType { return EventRegisterConfirm }
func (RegisterErrorPayload) eventType() EventType   { return EventRegisterError }
func (PingPayload) eventType() EventType            { return EventPing }
func (PongPayload) eventType() EventType            { return EventPong }
func (NewActivityPayload) eventType() EventType     { return EventNewActivity }
func (ReturnedPayload) eventType() EventType        { return EventReturned }
func (CompletedPayload) eventType() EventType       { return EventCompleted }
func (ProgressPayload) eventType() EventType        { return EventProgress }
func (ReprintUpdatePayload) eventType() EventType   { return EventReprintUpdate }

// NewEvent stamps a payload into a sendable event.
func NewEvent(p EventPayload) Event {
	return Event{
		Type:      p.eventType(),
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}
}

// envelope is the wire form.
type envelope struct {
	Type         EventType       `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	HighPriority bool            `json:"high_priority,omitempty"`
}

// Encode serializes the event once; the dispatcher reuses the bytes for
// every endpoint in a fan-out.
func (e Event) Encode() ([]byte, error) {
	var raw json.RawMessage
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
		}
		raw = b
	}
	return json.Marshal(envelope{
		Type:         e.Type,
		Payload:      raw,
		Timestamp:    e.Timestamp,
		HighPriority: e.HighPriority,
	})
}

// DecodeEvent parses a wire frame into a typed event. Unknown types and
// malformed payloads are errors; callers log and drop the frame.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}

	var payload EventPayload
	switch env.Type {
	case EventRegister:
		payload = &RegisterPayload{}
	case EventRegisterConfirm:
		payload = &RegisterConfirmPayload{}
	case EventRegisterError:
		payload = &RegisterErrorPayload{}
	case EventPing:
		payload = &PingPayload{}
	case EventPong:
		payload = &PongPayload{}
	case EventNewActivity:
		payload = &NewActivityPayload{}
	case EventReturned:
		payload = &ReturnedPayload{}
	case EventCompleted:
		payload = &CompletedPayload{}
	case EventProgress:
		payload = &ProgressPayload{}
	case EventReprintUpdate:
		payload = &ReprintUpdatePayload{}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return Event{}, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}

	return Event{
		Type:         env.Type,
		Timestamp:    env.Timestamp,
		HighPriority: env.HighPriority,
		Payload:      payload,
	}, nil
}
