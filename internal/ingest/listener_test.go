package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/skoglund/chronicle/internal/engine"
	"github.com/skoglund/chronicle/internal/storage/sqlite"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}
func (stubEmbedder) Model() string { return "stub" }

func newTestListener(t *testing.T) (*Listener, *engine.ContextEngine, *httptest.Server) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := engine.New(sqlite.NewRecordStore(db), sqlite.NewProfileStore(db), stubEmbedder{}, nil, engine.Config{})
	l := NewListener(eng, "127.0.0.1:0")

	srv := httptest.NewServer(http.HandlerFunc(l.handleIngest))
	t.Cleanup(srv.Close)
	return l, eng, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame Frame) ack {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	_, reply, err := conn.Read(ctx)
	require.NoError(t, err)

	var a ack
	require.NoError(t, json.Unmarshal(reply, &a))
	return a
}

func TestListenerIngestsFrames(t *testing.T) {
	_, eng, srv := newTestListener(t)
	conn := dial(t, srv)
	ctx := context.Background()

	a := sendFrame(t, conn, Frame{Line: "Alice tamed a Rex", Server: "ServerA", Cluster: "main"})
	assert.True(t, a.OK)

	a = sendFrame(t, conn, Frame{Line: "Bob died to a Raptor", Server: "ServerA"})
	assert.True(t, a.OK)

	profile, err := eng.Profiles.Profile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.TamingCount)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 2, stats.PerServer["ServerA"])
}

func TestListenerRejectsIncompleteFrames(t *testing.T) {
	_, eng, srv := newTestListener(t)
	conn := dial(t, srv)

	a := sendFrame(t, conn, Frame{Line: "missing server"})
	assert.False(t, a.OK)
	assert.NotEmpty(t, a.Error)

	a = sendFrame(t, conn, Frame{Server: "ServerA"})
	assert.False(t, a.OK)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRecords, "rejected frames must not be stored")
}

func TestListenerDuplicateLinesDeduplicate(t *testing.T) {
	_, eng, srv := newTestListener(t)
	conn := dial(t, srv)

	frame := Frame{Line: "Server restarted", Server: "ServerA"}
	assert.True(t, sendFrame(t, conn, frame).OK)
	assert.True(t, sendFrame(t, conn, frame).OK)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestListenerHonorsFrameTimestamps(t *testing.T) {
	_, eng, srv := newTestListener(t)
	conn := dial(t, srv)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	a := sendFrame(t, conn, Frame{
		Line:      "Alice tamed a Rex",
		Server:    "ServerA",
		Timestamp: old,
	})
	require.True(t, a.OK)
	a = sendFrame(t, conn, Frame{Line: "Bob placed a Foundation", Server: "ServerA"})
	require.True(t, a.OK)

	// A retention cutoff between the two frames removes only the backdated
	// record and its event.
	records, events, err := eng.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, records, "the backdated record carries the frame timestamp")
	assert.Equal(t, 1, events, "the backdated event carries the frame timestamp")

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestListenerClosesOnMalformedJSON(t *testing.T) {
	_, _, srv := newTestListener(t)
	conn := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))

	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "malformed frames close the connection")
}
