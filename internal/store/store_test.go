package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestInsertAndFindOne(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	msg := &Message{ProviderID: "wamid.1", ID: "wamid.1", ContactID: "9190", ContactName: "Ravi",
		Timestamp: 1754400000, Text: Text{Body: "hi"}, Type: "text", Status: StatusSent}
	if err := db.Insert(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if msg.InternalID == "" {
		t.Error("Insert should assign an internal id")
	}

	got, err := db.FindOne(ctx, Filter{ProviderID: "wamid.1"})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("message not found")
	}
	if got.Text.Body != "hi" || got.ContactName != "Ravi" || got.Timestamp != 1754400000 {
		t.Errorf("got %+v", got)
	}

	missing, err := db.FindOne(ctx, Filter{ProviderID: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing message, got %+v", missing)
	}
}

func TestInsertDuplicateDoesNotOverwrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, &Message{ProviderID: "m1", ContactID: "c", Text: Text{Body: "v1"}, Status: StatusSent}); err != nil {
		t.Fatal(err)
	}
	err := db.Insert(ctx, &Message{ProviderID: "m1", ContactID: "c", Text: Text{Body: "v2"}, Status: StatusSent})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second insert error = %v, want ErrDuplicate", err)
	}

	msgs, err := db.Find(ctx, Filter{ContactID: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text.Body != "v1" {
		t.Errorf("body = %q, want v1 (no overwrite)", msgs[0].Text.Body)
	}
}

func TestFindFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, m := range []*Message{
		{ProviderID: "a1", ContactID: "a", ContactName: "Alice", Timestamp: 2},
		{ProviderID: "b1", ContactID: "b", ContactName: "You", Timestamp: 1},
		{ProviderID: "a2", ContactID: "a", ContactName: "You", Timestamp: 3},
	} {
		if err := db.Insert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"a1", "b1", "a2"}},
		{"by contact", Filter{ContactID: "a"}, []string{"a1", "a2"}},
		{"by name", Filter{ContactName: "You"}, []string{"b1", "a2"}},
		{"contact and name", Filter{ContactID: "a", ContactName: "You"}, []string{"a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := db.Find(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != len(tt.want) {
				t.Fatalf("got %d messages, want %d", len(msgs), len(tt.want))
			}
			for i, id := range tt.want {
				if msgs[i].ProviderID != id {
					t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].ProviderID, id)
				}
			}
		})
	}
}

func TestUpdateOne(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, &Message{ProviderID: "m1", ContactID: "c", Status: StatusSent}); err != nil {
		t.Fatal(err)
	}

	matched, err := db.UpdateOne(ctx, Filter{ProviderID: "m1"}, Patch{Status: StatusRead})
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Error("expected match for existing message")
	}
	got, _ := db.FindOne(ctx, Filter{ProviderID: "m1"})
	if got.Status != StatusRead {
		t.Errorf("status = %q, want read", got.Status)
	}

	matched, err = db.UpdateOne(ctx, Filter{ProviderID: "missing"}, Patch{Status: StatusRead})
	if err != nil {
		t.Fatal(err)
	}
	if matched {
		t.Error("expected no match for missing message")
	}
}

func TestCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	n, err := db.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	_ = db.Insert(ctx, &Message{ProviderID: "m1"})
	_ = db.Insert(ctx, &Message{ProviderID: "m1"})
	_ = db.Insert(ctx, &Message{ProviderID: "m2"})
	if n, _ = db.Count(ctx); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestClosedDBReportsUnavailable(t *testing.T) {
	db := testDB(t)
	_ = db.Close()

	_, err := db.Find(context.Background(), Filter{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Find on closed db error = %v, want ErrUnavailable", err)
	}
}

func TestUnavailableStore(t *testing.T) {
	var s Store = Unavailable{Reason: errors.New("connection refused")}
	ctx := context.Background()

	if _, err := s.Find(ctx, Filter{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Find error = %v", err)
	}
	if err := s.Insert(ctx, &Message{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Insert error = %v", err)
	}
	if _, err := s.UpdateOne(ctx, Filter{ProviderID: "x"}, Patch{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("UpdateOne error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
}

func TestCoerceTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"float", 1754400000.5, 1754400000.5},
		{"int", 10, 10},
		{"int64", int64(42), 42},
		{"int32", int32(7), 7},
		{"numeric string", "1754400000", 1754400000},
		{"padded string", " 12 ", 12},
		{"fractional string", "3.25", 3.25},
		{"garbage string", "yesterday", 0},
		{"empty string", "", 0},
		{"nil", nil, 0},
		{"bool", true, 0},
		{"json number", json.Number("99"), 99},
		{"nan string", "NaN", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceTimestamp(tt.in); got != tt.want {
				t.Errorf("CoerceTimestamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"timestamp":"1754400000"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Timestamp != 1754400000 {
		t.Errorf("string timestamp = %v", m.Timestamp)
	}
	if err := json.Unmarshal([]byte(`{"timestamp":5}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Timestamp != 5 {
		t.Errorf("numeric timestamp = %v", m.Timestamp)
	}
	if err := json.Unmarshal([]byte(`{"timestamp":"soon"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Timestamp != 0 {
		t.Errorf("unparsable timestamp = %v, want 0", m.Timestamp)
	}
}

func TestPublicStripsInternalID(t *testing.T) {
	m := Message{InternalID: "abc", ProviderID: "p"}
	b, err := json.Marshal(m.Public())
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	if _, ok := out["_id"]; ok {
		t.Errorf("public message leaked _id: %s", b)
	}
	if m.InternalID != "abc" {
		t.Error("Public must not mutate the receiver")
	}
}
