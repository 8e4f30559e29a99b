// Package events streams session status changes to websocket subscribers.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/clock"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusSource is where the hub reads and subscribes to the session status
type StatusSource interface {
	Status() models.SessionStatus
	OnStatusChange(fn func(models.SessionStatus))
}

type subscriber struct {
	send chan models.StatusEvent
}

// Hub fans status events out to every connected subscriber. A subscriber that
// cannot keep up is disconnected.
type Hub struct {
	source StatusSource
	clock  clock.Clock
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates a new event hub subscribed to status changes of source
func NewHub(source StatusSource, clk clock.Clock, logger *zap.Logger) *Hub {
	h := &Hub{
		source: source,
		clock:  clk,
		logger: logger.With(zap.String("component", "events")),
		subs:   make(map[*subscriber]struct{}),
	}
	source.OnStatusChange(h.Publish)
	return h
}

func (h *Hub) event(status models.SessionStatus) models.StatusEvent {
	return models.StatusEvent{
		Status:    status,
		Message:   status.Message(),
		Timestamp: h.clock.Now().UTC(),
	}
}

// Publish delivers a status event to every subscriber without blocking
func (h *Hub) Publish(status models.SessionStatus) {
	ev := h.event(status)

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			h.logger.Warn("dropping slow subscriber")
			delete(h.subs, sub)
			close(sub.send)
		}
	}
}

// Subscribers is the number of connected clients
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan models.StatusEvent, sendBuffer)}
	sub.send <- h.event(h.source.Status())

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// HandleWS upgrades the request and streams events until the client goes away.
// The current status is sent first.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.subscribe()
	defer h.unsubscribe(sub)
	h.logger.Debug("subscriber connected", zap.String("remote", r.RemoteAddr))

	// reads only serve to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			h.logger.Debug("subscriber disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		}
	}
}
