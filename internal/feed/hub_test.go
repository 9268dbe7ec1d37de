package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	all := dial(t, srv, "")
	one := dial(t, srv, "?zone=b")
	waitFor(t, h, 2)

	recs := []models.SurgeRecord{{ZoneID: "a", Multiplier: 1.2}, {ZoneID: "b", Multiplier: 2.0}}
	require.NoError(t, h.Record(context.Background(), recs))

	var msg Message
	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, all.ReadJSON(&msg))
	assert.Equal(t, "surge", msg.Type)
	assert.Len(t, msg.Records, 2)

	_ = one.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, one.ReadJSON(&msg))
	require.Len(t, msg.Records, 1)
	assert.Equal(t, "b", msg.Records[0].ZoneID)
}

func TestHubForgetsClosedSubscribers(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, h, 1)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()
	waitFor(t, h, 0)

	assert.NoError(t, h.Record(context.Background(), []models.SurgeRecord{{ZoneID: "a"}}))
}
