// Package sse streams note and re-index events to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventNoteCreated  = "note.created"
	EventNoteUpdated  = "note.updated"
	EventNoteDeleted  = "note.deleted"
	EventIndexPending = "index.pending"
	EventIndexUpdated = "index.updated"
	EventIndexFailed  = "index.failed"
)

// Defaults.
const (
	DefaultPendingThrottle = 2 * time.Second
	DefaultHistory         = 64
	DefaultHeartbeat       = 25 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NotePayload is the data of note.* events.
type NotePayload struct {
	Path string `json:"path"`
}

// FailurePayload is the data of index.failed.
type FailurePayload struct {
	Error string `json:"error"`
}

var noteEventTypes = map[string]string{
	"created": EventNoteCreated,
	"updated": EventNoteUpdated,
	"deleted": EventNoteDeleted,
}

// frame is an encoded event with its sequence id.
type frame struct {
	id  uint64
	raw []byte
}

// pendingReq asks for a throttled index.pending, optionally preceded by
// a note event so both keep their order.
type pendingReq struct {
	note *Event
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Option configures a Broker.
type Option func(*Broker)

// WithHistory keeps the last n events for clients reconnecting with
// Last-Event-ID. Zero disables replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.history = n }
}

// WithHeartbeat sets the keep-alive comment interval on open streams.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the clients, the replay history and the pending
// throttle. Public methods talk to it through channels.
type Broker struct {
	pendingMin time.Duration
	history    int
	heartbeat  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	pendingCh     chan pendingReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. index.pending events are sent at
// most once per pendingThrottle.
func NewBroker(pendingThrottle time.Duration, opts ...Option) *Broker {
	if pendingThrottle <= 0 {
		pendingThrottle = DefaultPendingThrottle
	}

	b := &Broker{
		pendingMin:    pendingThrottle,
		history:       DefaultHistory,
		heartbeat:     DefaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		pendingCh:     make(chan pendingReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		recent      []frame
		lastPending time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
		if b.history > 0 {
			recent = append(recent, frame{id: seq, raw: raw})
			if len(recent) > b.history {
				recent = recent[len(recent)-b.history:]
			}
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.after > 0 {
				for _, f := range recent {
					if f.id > sub.after {
						send(sub.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.pendingCh:
			if req.note != nil {
				broadcast(*req.note)
			}
			now := time.Now()
			if now.Sub(lastPending) >= b.pendingMin {
				lastPending = now
				broadcast(Event{Type: EventIndexPending, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter adds a client and first replays the retained events with
// an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change followed by a throttled
// index.pending. Unknown kinds are ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	typ, ok := noteEventTypes[kind]
	if !ok {
		return
	}
	b.requestPending(pendingReq{note: &Event{Type: typ, Data: NotePayload{Path: path}}})
}

// PublishPending publishes a throttled index.pending event, e.g. after the
// file watcher saw a change.
func (b *Broker) PublishPending() {
	b.requestPending(pendingReq{})
}

func (b *Broker) requestPending(req pendingReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.pendingCh <- req:
	case <-b.stopped:
	}
}

// PublishPass reports a finished re-index pass: index.updated with stats,
// or index.failed with the error.
func (b *Broker) PublishPass(stats any, err error) {
	if err != nil {
		b.Publish(Event{Type: EventIndexFailed, Data: FailurePayload{Error: err.Error()}})
		return
	}
	b.Publish(Event{Type: EventIndexUpdated, Data: stats})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeAfter(lastID)
	defer b.Unsubscribe(ch)

	var beat <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
