// Package events fans out inventory and sync notifications to connected
// clients over Server-Sent Events or WebSocket.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Event types.
const (
	TypeInventoryChanged = "inventory.changed"
	TypeSnapshotReplaced = "snapshot.replaced"
	TypeSyncStatus       = "sync.status"
	TypeStatsUpdated     = "stats.updated"
)

// Event is one notification broadcast to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatsFunc computes the payload of a stats.updated event.
type StatsFunc func() any

type changeReq struct {
	kind string
	data any
}

// Broker manages client subscriptions and broadcasts events.
//
// A single internal loop owns the client set and the stats throttle
// timestamp. Public methods talk to it over channels.
type Broker struct {
	statsMin time.Duration
	stats    StatsFunc
	logger   *slog.Logger

	subscribeCh   chan chan Event
	unsubscribeCh chan chan Event
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithStats sets the function whose result accompanies throttled
// stats.updated events.
func WithStats(fn StatsFunc) Option {
	return func(b *Broker) { b.stats = fn }
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a broker. statsThrottle bounds how often stats.updated
// follows a change event.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}
	b := &Broker{
		statsMin:      statsThrottle,
		logger:        slog.Default(),
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan Event]struct{})
	var lastStats time.Time

	broadcast := func(ev Event) {
		for ch := range clients {
			select {
			case ch <- ev:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev)

		case req := <-b.changeCh:
			broadcast(Event{Type: req.kind, Data: req.data})

			now := time.Now()
			if b.stats != nil && now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				broadcast(Event{Type: TypeStatsUpdated, Data: b.stats()})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel.
func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishChange broadcasts a store change followed, at most once per
// throttle interval, by a stats.updated event.
func (b *Broker) PublishChange(kind string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{kind: kind, data: data}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

// ServeWS streams events as JSON text frames over a WebSocket
// (GET /api/ws). Client messages are ignored.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		b.logger.Warn("events: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
