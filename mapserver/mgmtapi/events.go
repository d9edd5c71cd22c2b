// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mgmtapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	api "github.com/lispmap/lispmap/private/mgmtapi"
)

const (
	// DefaultClientBuffer is the number of events queued per client before
	// the client is dropped.
	DefaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

var _ notify.Sink = (*EventHub)(nil)

// EventHub streams mapping change events to websocket clients. Clients that
// fall behind are disconnected.
type EventHub struct {
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	send   chan Event
	filter eid.Eid
}

// NewEventHub creates a hub. A buffer of zero means DefaultClientBuffer.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		buffer:  buffer,
		clients: map[*client]struct{}{},
	}
}

// Publish implements notify.Sink. It never blocks.
func (h *EventHub) Publish(_ context.Context, ev notify.Event) error {
	msg := newEvent(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.filter.IsZero() && !eid.Covers(c.filter, ev.Eid) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			log.Info("Dropping slow event stream client", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients. Later connection attempts are refused.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *EventHub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away. The optional eid query parameter restricts the stream to
// the events of Eids it covers.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter eid.Eid
	if q := r.URL.Query().Get("eid"); q != "" {
		var err error
		if filter, err = eid.Parse(q); err != nil {
			badRequest(w, "malformed eid filter", err)
			return
		}
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		api.ErrorResponse(w, api.Problem{
			Status: http.StatusServiceUnavailable,
			Title:  "event stream closed",
			Type:   api.StringRef(api.InternalError),
		})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.FromCtx(r.Context()).Debug("Event stream upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, h.buffer), filter: filter}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer log.HandlePanic()
		h.writeLoop(c)
	}()
	// Clients do not send anything, reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *EventHub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debug("Event stream write failed", "remote", c.conn.RemoteAddr(), "err", err)
			// Keep draining until the reader removes the client.
			continue
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
