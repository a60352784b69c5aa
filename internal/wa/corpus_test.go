package wa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wpprelay/internal/store"
)

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func conversationPayload(contactID, name, msgID, ts, body string) string {
	return `{"metaData":{"entry":[{"changes":[{"value":{` +
		`"contacts":[{"wa_id":"` + contactID + `","profile":{"name":"` + name + `"}}],` +
		`"messages":[{"id":"` + msgID + `","from":"` + contactID + `","timestamp":"` + ts + `","text":{"body":"` + body + `"},"type":"text"}]` +
		`}}]}]}}`
}

func TestCorpusSkipsCorruptFiles(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"01_a.json":   conversationPayload("1", "Alice", "m1", "10", "hello"),
		"02_bad.json": `{"metaData": {`,
		"03_arr.json": `[]`,
		"04_b.json":   conversationPayload("2", "Bob", "m2", "20", "hey"),
		"notes.txt":   "ignored",
	})
	c := NewCorpus(dir, nil)

	records, err := c.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (corrupt files skipped)", len(records))
	}
	if records[0].Message.ProviderID != "m1" || records[1].Message.ProviderID != "m2" {
		t.Errorf("records out of file order: %q, %q", records[0].Message.ProviderID, records[1].Message.ProviderID)
	}
}

func TestCorpusContactsDedup(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.json": conversationPayload("1", "Alice", "m1", "10", "hello"),
		"b.json": conversationPayload("1", "Alice Renamed", "m2", "20", "again"),
		"c.json": conversationPayload("2", "Bob", "m3", "30", "hey"),
		"d.json": `{"metaData":{"entry":[{"changes":[{"value":{"contacts":[{"wa_id":"3"}]}}]}]}}`,
	})
	contacts, err := NewCorpus(dir, nil).Contacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2: %+v", len(contacts), contacts)
	}
	if contacts[0].ContactID != "1" || contacts[0].DisplayName != "Alice" {
		t.Errorf("first occurrence should win, got %+v", contacts[0])
	}
	if contacts[1].ContactID != "2" {
		t.Errorf("contacts[1] = %+v", contacts[1])
	}
}

func TestCorpusMessagesFor(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.json": conversationPayload("1", "Alice", "m1", "10", "hello"),
		"b.json": conversationPayload("2", "Bob", "m2", "20", "hey"),
		"c.json": conversationPayload("1", "Alice", "m3", "5", "earlier"),
	})
	msgs, err := NewCorpus(dir, nil).MessagesFor("1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.ContactID != "1" {
			t.Errorf("message for wrong contact: %+v", m)
		}
	}
}

func TestCorpusMessagesForSkipsUnattributed(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"a.json": `{"metaData":{"entry":[{"changes":[{"value":{
			"messages":[{"id":"m1","from":"x","timestamp":"10","text":{"body":"orphan"}}]}}]}]}}`,
	})
	c := NewCorpus(dir, nil)
	records, err := c.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Message.ContactID != unknownContactID {
		t.Fatalf("records = %+v", records)
	}
	msgs, err := c.MessagesFor(unknownContactID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages for the unknown contact, want 0", len(msgs))
	}
}

func TestCorpusMessagesAppliesStatuses(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"1.json": `{"metaData":{"entry":[{"changes":[{"value":{
			"statuses":[{"id":"m1","status":"delivered"}]}}]}]}}`,
		"2.json": conversationPayload("1", "Alice", "m1", "10", "hello"),
		"3.json": conversationPayload("1", "Alice", "m1", "10", "replayed"),
		"4.json": conversationPayload("2", "Bob", "m2", "20", "hey"),
		"5.json": `{"metaData":{"entry":[{"changes":[{"value":{
			"statuses":[{"id":"m2","status":"read"}]}}]}]}}`,
	})
	msgs, err := NewCorpus(dir, nil).Messages()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// A status ahead of its message is not replayed; a duplicate id keeps
	// the first copy.
	if msgs[0].ProviderID != "m1" || msgs[0].Text.Body != "hello" || msgs[0].Status != store.StatusSent {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].ProviderID != "m2" || msgs[1].Status != store.StatusRead {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestCorpusMissingDir(t *testing.T) {
	c := NewCorpus(filepath.Join(t.TempDir(), "missing"), nil)
	if _, err := c.Records(); err == nil {
		t.Error("expected error for missing directory")
	}
}
