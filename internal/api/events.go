package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/logger"
)

const (
	eventBufferSize = 16
	writeWait       = 5 * time.Second
	pingPeriod      = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// EventHub fans camera events out to websocket subscribers.
type EventHub struct {
	mutex       sync.Mutex
	closed      bool
	subscribers map[chan defs.CameraEvent]struct{}
}

// NewEventHub allocates an EventHub.
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[chan defs.CameraEvent]struct{}),
	}
}

// Close closes the hub and all subscriber channels.
func (h *EventHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}

// Publish delivers an event to every subscriber.
// Slow subscribers are skipped instead of blocking the publisher.
func (h *EventHub) Publish(evt defs.CameraEvent) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}

	for ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan defs.CameraEvent {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		ch := make(chan defs.CameraEvent)
		close(ch)
		return ch
	}

	ch := make(chan defs.CameraEvent, eventBufferSize)
	h.subscribers[ch] = struct{}{}
	return ch
}

func (h *EventHub) unsubscribe(ch chan defs.CameraEvent) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	delete(h.subscribers, ch)
}

func (a *API) onEventsWS(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close() //nolint:errcheck

	a.Log(logger.Debug, "event subscriber connected from %s", conn.RemoteAddr())

	ch := a.Events.subscribe()
	defer a.Events.unsubscribe(ch)

	// drain incoming messages so that close frames are processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			err := conn.WriteJSON(evt)
			if err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			err := conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}

		case <-readDone:
			return
		}
	}
}
