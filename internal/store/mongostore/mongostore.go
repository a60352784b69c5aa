// Package mongostore implements store.Store on a MongoDB collection, the
// document layout the relay has always used: one document per message,
// keyed by the provider id in "wamid".
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wpprelay/internal/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Options configures the connection.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Store is a store.Store backed by MongoDB.
type Store struct {
	client  *mongo.Client
	coll    *mongo.Collection
	indexed atomic.Bool
}

var _ store.Store = (*Store)(nil)

type textDoc struct {
	Body string `bson:"body"`
}

type document struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	WAMID     string        `bson:"wamid"`
	MsgID     string        `bson:"id,omitempty"`
	From      string        `bson:"from,omitempty"`
	WAID      string        `bson:"wa_id"`
	Name      string        `bson:"name"`
	Timestamp any           `bson:"timestamp"`
	Text      textDoc       `bson:"text"`
	Type      string        `bson:"type"`
	Status    string        `bson:"status"`
}

func fromMessage(m *store.Message) document {
	return document{
		WAMID:     m.ProviderID,
		MsgID:     m.ID,
		From:      m.From,
		WAID:      m.ContactID,
		Name:      m.ContactName,
		Timestamp: float64(m.Timestamp),
		Text:      textDoc{Body: m.Text.Body},
		Type:      m.Type,
		Status:    string(m.Status),
	}
}

// toMessage tolerates documents written by older writers, where the
// timestamp may be a string.
func (d document) toMessage() store.Message {
	m := store.Message{
		ProviderID:  d.WAMID,
		ID:          d.MsgID,
		From:        d.From,
		ContactID:   d.WAID,
		ContactName: d.Name,
		Timestamp:   store.Timestamp(store.CoerceTimestamp(d.Timestamp)),
		Text:        store.Text{Body: d.Text.Body},
		Type:        d.Type,
		Status:      store.Status(d.Status),
	}
	if !d.ID.IsZero() {
		m.InternalID = d.ID.Hex()
	}
	return m
}

func toFilter(f store.Filter) bson.M {
	filter := bson.M{}
	if f.ProviderID != "" {
		filter["wamid"] = f.ProviderID
	}
	if f.ContactID != "" {
		filter["wa_id"] = f.ContactID
	}
	if f.ContactName != "" {
		filter["name"] = f.ContactName
	}
	return filter
}

func unavailable(op string, err error) error {
	return fmt.Errorf("mongo %s: %w: %w", op, store.ErrUnavailable, err)
}

// Open connects and pings the server. The returned error wraps
// store.ErrUnavailable when the server cannot be reached. A failed ping
// still returns the Store: the driver reconnects on its own, so the caller
// may run degraded on it until the server comes up.
func Open(ctx context.Context, o Options) (*Store, error) {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := mongo.Connect(options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, unavailable("connect", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(o.Database).Collection(o.Collection),
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return s, unavailable("ping", err)
	}
	return s, nil
}

// EnsureIndexes creates the unique index on the provider id. It fails on
// collections that already hold duplicate ids; the store still works
// without it, relying on the find-before-insert check.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "wamid", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("wamid_unique"),
	})
	if err != nil {
		return fmt.Errorf("create wamid index: %w", err)
	}
	s.indexed.Store(true)
	return nil
}

// Find returns matching messages in insertion order.
func (s *Store) Find(ctx context.Context, f store.Filter) ([]store.Message, error) {
	cur, err := s.coll.Find(ctx, toFilter(f), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, unavailable("find", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("find", err)
	}
	msgs := make([]store.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toMessage())
	}
	return msgs, nil
}

// FindOne returns the first matching message, or nil if none.
func (s *Store) FindOne(ctx context.Context, f store.Filter) (*store.Message, error) {
	var d document
	err := s.coll.FindOne(ctx, toFilter(f)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find one", err)
	}
	m := d.toMessage()
	return &m, nil
}

// Insert stores m and sets its InternalID to the generated ObjectID.
func (s *Store) Insert(ctx context.Context, m *store.Message) error {
	res, err := s.coll.InsertOne(ctx, fromMessage(m))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return unavailable("insert", err)
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		m.InternalID = oid.Hex()
	}
	return nil
}

// UpdateOne sets the patched fields on the first matching document.
func (s *Store) UpdateOne(ctx context.Context, f store.Filter, p store.Patch) (bool, error) {
	filter := toFilter(f)
	if len(filter) == 0 {
		return false, nil
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": string(p.Status)}})
	if err != nil {
		return false, unavailable("update one", err)
	}
	return res.MatchedCount > 0, nil
}

// Count returns the estimated number of documents in the collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Ping checks the server is reachable. The first successful ping after a
// failed EnsureIndexes retries the index.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	if !s.indexed.Load() {
		_ = s.EnsureIndexes(ctx)
	}
	return nil
}

// Indexed reports whether the unique provider id index is in place.
func (s *Store) Indexed() bool {
	return s.indexed.Load()
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
