package store

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Timestamp is an epoch-seconds value. It decodes from either a JSON number
// or a numeric JSON string; anything else decodes to 0.
type Timestamp float64

// UnmarshalJSON accepts numbers and numeric strings.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Timestamp(CoerceTimestamp(v))
	return nil
}

// CoerceTimestamp converts a raw timestamp value of unknown representation
// into epoch seconds. Unparsable values yield 0.
func CoerceTimestamp(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case Timestamp:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Text holds a text message body.
type Text struct {
	Body string `json:"body"`
}

// Message is a persisted chat message. The JSON shape is the one the
// browser client renders.
type Message struct {
	InternalID  string    `json:"_id,omitempty"`
	ProviderID  string    `json:"wamid"`
	ID          string    `json:"id"`
	From        string    `json:"from,omitempty"`
	ContactID   string    `json:"wa_id"`
	ContactName string    `json:"name"`
	Timestamp   Timestamp `json:"timestamp"`
	Text        Text      `json:"text"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
}

// Public returns a copy without storage identifiers.
func (m Message) Public() Message {
	m.InternalID = ""
	return m
}

// StatusUpdate rewrites the status of the message whose provider id is TargetID.
type StatusUpdate struct {
	TargetID string
	Status   Status
}

// Contact is an entry of the contact directory.
type Contact struct {
	ContactID   string `json:"wa_id"`
	DisplayName string `json:"name"`
}

// ChatSummary is the per-contact row of the chat list.
type ChatSummary struct {
	ContactID     string    `json:"wa_id"`
	DisplayName   string    `json:"name"`
	LastMessage   string    `json:"last_message"`
	LastTimestamp Timestamp `json:"last_timestamp"`
	UnreadCount   int       `json:"unread_count"`
}

// Filter selects messages by equality. Empty fields are ignored.
type Filter struct {
	ProviderID  string
	ContactID   string
	ContactName string
}

// Patch is the set of fields UpdateOne may change.
type Patch struct {
	Status Status
}
