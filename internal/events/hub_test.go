package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/clock"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

var start = time.Date(2026, 1, 21, 10, 30, 0, 0, time.UTC)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) models.StatusEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev models.StatusEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub_StreamsStatusChanges(t *testing.T) {
	state := session.NewState()
	h := NewHub(state, clock.NewFake(start), zap.NewNop())
	conn := dial(t, h)

	first := read(t, conn)
	assert.Equal(t, models.StatusUnknown, first.Status)
	assert.Equal(t, "Session status not yet checked", first.Message)
	assert.True(t, start.Equal(first.Timestamp))

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	state.SetStatus(models.StatusLoginRequired)
	state.SetStatus(models.StatusLoggedIn)

	assert.Equal(t, models.StatusLoginRequired, read(t, conn).Status)
	assert.Equal(t, models.StatusLoggedIn, read(t, conn).Status)
}

func TestHub_UnsubscribesOnClose(t *testing.T) {
	state := session.NewState()
	h := NewHub(state, clock.NewFake(start), zap.NewNop())
	conn := dial(t, h)
	read(t, conn)

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	state := session.NewState()
	h := NewHub(state, clock.NewFake(start), zap.NewNop())

	sub := h.subscribe()
	statuses := []models.SessionStatus{models.StatusChecking, models.StatusLoggedIn}
	for i := 0; i < sendBuffer; i++ {
		h.Publish(statuses[i%2])
	}

	assert.Equal(t, 0, h.Subscribers())
	n := 0
	for range sub.send {
		n++
	}
	assert.Equal(t, sendBuffer, n, "buffered events stay readable until the channel closes")
}
