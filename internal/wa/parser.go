package wa

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matheus3301/wpprelay/internal/store"
)

const (
	unknownContactID   = "unknown"
	unknownContactName = "Unknown"
)

// ParseError reports a payload document that could not be normalized.
type ParseError struct {
	Source string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse payload"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Record is one normalized event: exactly one of Message or Status is set.
type Record struct {
	Message *store.Message
	Status  *store.StatusUpdate
}

// Document is the normalized content of one webhook payload.
type Document struct {
	Records  []Record
	Contacts []store.Contact
}

// Messages returns the message records in payload order.
func (d *Document) Messages() []store.Message {
	var msgs []store.Message
	for _, r := range d.Records {
		if r.Message != nil {
			msgs = append(msgs, *r.Message)
		}
	}
	return msgs
}

// ParseDocument normalizes a raw webhook payload. Both the stored form
// {"metaData": {"entry": [...]}} and the bare webhook body {"entry": [...]}
// are accepted. A document without entries yields an empty Document.
// Malformed nested elements are skipped; only invalid JSON or a wrong
// top-level shape produce a *ParseError.
func ParseDocument(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, &ParseError{Reason: fmt.Sprintf("top-level value is %s, want object", kindOf(raw))}
	}
	if meta, ok := root["metaData"]; ok {
		if root, ok = meta.(map[string]any); !ok {
			return nil, &ParseError{Reason: "metaData is not an object"}
		}
	}

	doc := &Document{}
	entries, present := root["entry"]
	if !present || entries == nil {
		return doc, nil
	}
	entryList, ok := entries.([]any)
	if !ok {
		return nil, &ParseError{Reason: "entry is not a list"}
	}

	for _, e := range entryList {
		for _, c := range list(object(e)["changes"]) {
			value := object(object(c)["value"])
			if value == nil {
				continue
			}
			doc.normalizeValue(value)
		}
	}
	return doc, nil
}

func (d *Document) normalizeValue(value map[string]any) {
	contacts := list(value["contacts"])
	for _, c := range contacts {
		contact := object(c)
		id := str(contact["wa_id"])
		name := str(object(contact["profile"])["name"])
		if id != "" && name != "" {
			d.Contacts = append(d.Contacts, store.Contact{ContactID: id, DisplayName: name})
		}
	}

	// The first contact is the attribution source for the whole value.
	contactID, contactName := unknownContactID, unknownContactName
	if len(contacts) > 0 {
		first := object(contacts[0])
		if id := str(first["wa_id"]); id != "" {
			contactID = id
		}
		if name := str(object(first["profile"])["name"]); name != "" {
			contactName = name
		}
	}

	for _, m := range list(value["messages"]) {
		if msg := normalizeMessage(object(m), contactID, contactName); msg != nil {
			d.Records = append(d.Records, Record{Message: msg})
		}
	}
	for _, s := range list(value["statuses"]) {
		if upd := normalizeStatus(object(s)); upd != nil {
			d.Records = append(d.Records, Record{Status: upd})
		}
	}
}

func normalizeMessage(raw map[string]any, contactID, contactName string) *store.Message {
	id := str(raw["id"])
	if id == "" {
		return nil
	}
	msgType := str(raw["type"])
	if msgType == "" {
		msgType = "text"
	}
	status := store.Status(str(raw["status"]))
	if status == "" {
		status = store.StatusSent
	}
	return &store.Message{
		ProviderID:  id,
		ID:          id,
		From:        str(raw["from"]),
		ContactID:   contactID,
		ContactName: contactName,
		Timestamp:   store.Timestamp(store.CoerceTimestamp(raw["timestamp"])),
		Text:        store.Text{Body: str(object(raw["text"])["body"])},
		Type:        msgType,
		Status:      status,
	}
}

func normalizeStatus(raw map[string]any) *store.StatusUpdate {
	target := str(raw["id"])
	if target == "" {
		target = str(object(raw["meta"])["meta_msg_id"])
	}
	status := str(raw["status"])
	if target == "" || status == "" {
		return nil
	}
	return &store.StatusUpdate{TargetID: target, Status: store.Status(status)}
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return "object"
	}
}
