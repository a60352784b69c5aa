package mongostore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestDocumentRoundTrip(t *testing.T) {
	oid := bson.NewObjectID()
	d := fromMessage(&store.Message{
		ProviderID: "wamid.1", ID: "wamid.1", ContactID: "9190", ContactName: "Ravi",
		Timestamp: 1754400000, Text: store.Text{Body: "hi"}, Type: "text", Status: store.StatusSent,
	})
	d.ID = oid

	m := d.toMessage()
	require.Equal(t, oid.Hex(), m.InternalID)
	require.Equal(t, "wamid.1", m.ProviderID)
	require.Equal(t, store.Timestamp(1754400000), m.Timestamp)
	require.Equal(t, "hi", m.Text.Body)
}

func TestDocumentStringTimestamp(t *testing.T) {
	// Older documents stored the raw webhook value.
	require.Equal(t, store.Timestamp(1754400000), document{Timestamp: "1754400000"}.toMessage().Timestamp)
	require.Equal(t, store.Timestamp(0), document{Timestamp: "bad"}.toMessage().Timestamp)
	require.Equal(t, store.Timestamp(12), document{Timestamp: int32(12)}.toMessage().Timestamp)
}

func TestToFilter(t *testing.T) {
	require.Empty(t, toFilter(store.Filter{}))
	require.Equal(t, bson.M{"wamid": "x", "wa_id": "c"}, toFilter(store.Filter{ProviderID: "x", ContactID: "c"}))
	require.Equal(t, bson.M{"name": "You"}, toFilter(store.Filter{ContactName: "You"}))
}

func TestOpenUnreachable(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{URI: "mongodb://127.0.0.1:1", Database: "whatsapp", Collection: "m", ConnectTimeout: 300 * time.Millisecond})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrUnavailable))

	// The client is kept so the store can recover once the server is up.
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close() })
	require.ErrorIs(t, s.Ping(ctx), store.ErrUnavailable)
	require.False(t, s.Indexed())
}

// startContainer turns the panic testcontainers raises when no Docker host
// can be found into an error.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
}

func startMongo(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := startContainer(ctx, req)
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017")
	require.NoError(t, err)

	s, err := Open(ctx, Options{URI: "mongodb://" + host + ":" + port.Port(), Database: "whatsapp", Collection: "processed_messages"})
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAgainstMongo(t *testing.T) {
	s := startMongo(t)
	ctx := context.Background()

	msg := &store.Message{ProviderID: "m1", ContactID: "c", ContactName: "Ravi", Timestamp: 5, Text: store.Text{Body: "v1"}, Status: store.StatusSent}
	require.NoError(t, s.Insert(ctx, msg))
	require.NotEmpty(t, msg.InternalID)

	err := s.Insert(ctx, &store.Message{ProviderID: "m1", ContactID: "c", Text: store.Text{Body: "v2"}})
	require.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.FindOne(ctx, store.Filter{ProviderID: "m1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "v1", got.Text.Body)

	missing, err := s.FindOne(ctx, store.Filter{ProviderID: "nope"})
	require.NoError(t, err)
	require.Nil(t, missing)

	matched, err := s.UpdateOne(ctx, store.Filter{ProviderID: "m1"}, store.Patch{Status: store.StatusRead})
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = s.UpdateOne(ctx, store.Filter{ProviderID: "nope"}, store.Patch{Status: store.StatusRead})
	require.NoError(t, err)
	require.False(t, matched)

	msgs, err := s.Find(ctx, store.Filter{ContactID: "c"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, store.StatusRead, msgs[0].Status)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
