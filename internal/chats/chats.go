// Package chats folds stored messages into per-contact chat summaries.
package chats

import (
	"sort"

	"github.com/matheus3301/wpprelay/internal/store"
)

const unknownName = "Unknown"

type fold struct {
	summary store.ChatSummary
	ts      float64
	seen    bool
}

// Aggregate builds one summary per contact. The last message is the one
// with the greatest timestamp; on ties the earlier message is kept.
// Messages with a status other than read count as unread. Contacts from
// directory without messages are appended with zero activity.
func Aggregate(messages []store.Message, directory []store.Contact) []store.ChatSummary {
	byID := make(map[string]*fold)
	var order []string

	for _, m := range messages {
		if m.ContactID == "" {
			continue
		}
		f, ok := byID[m.ContactID]
		if !ok {
			f = &fold{summary: store.ChatSummary{ContactID: m.ContactID}}
			byID[m.ContactID] = f
			order = append(order, m.ContactID)
		}
		if f.summary.DisplayName == "" && m.ContactName != "" {
			f.summary.DisplayName = m.ContactName
		}
		ts := float64(m.Timestamp)
		if !f.seen || ts > f.ts {
			f.seen = true
			f.ts = ts
			f.summary.LastMessage = m.Text.Body
			f.summary.LastTimestamp = m.Timestamp
		}
		if m.Status != store.StatusRead {
			f.summary.UnreadCount++
		}
	}

	names := make(map[string]string, len(directory))
	for _, c := range directory {
		if _, ok := names[c.ContactID]; !ok {
			names[c.ContactID] = c.DisplayName
		}
	}

	out := make([]store.ChatSummary, 0, len(order)+len(directory))
	for _, id := range order {
		s := byID[id].summary
		if s.DisplayName == "" {
			s.DisplayName = names[id]
		}
		if s.DisplayName == "" {
			s.DisplayName = unknownName
		}
		out = append(out, s)
	}
	for _, c := range directory {
		if _, ok := byID[c.ContactID]; ok || c.ContactID == "" {
			continue
		}
		name := c.DisplayName
		if name == "" {
			name = unknownName
		}
		// Mark as emitted so repeated directory entries appear once.
		byID[c.ContactID] = nil
		out = append(out, store.ChatSummary{ContactID: c.ContactID, DisplayName: name})
	}
	return out
}

// SortThread orders messages by ascending timestamp in place. Messages with
// equal timestamps keep their relative order.
func SortThread(messages []store.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
}
