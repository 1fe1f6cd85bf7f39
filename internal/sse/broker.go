// Package sse implements a Server-Sent Events broker for organizer and OCR
// updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Change kinds accepted by PublishChange.
const (
	ChangeMoved       = "moved"
	ChangeTrashed     = "trashed"
	ChangeDeleted     = "deleted"
	ChangeTranscribed = "transcribed"
)

const (
	clientBuffer  = 64
	replayHistory = 128
	keepAlive     = 25 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

type change struct {
	kind string
	path string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the clients, the replay history and the
// vault.changed throttle; public methods talk to it over channels. Every
// event carries an increasing id so a reconnecting client that sends
// Last-Event-ID receives what it missed, as far as the history reaches.
type Broker struct {
	changeMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. vault.changed is sent at most once per
// changeThrottle.
func NewBroker(changeThrottle time.Duration) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}

	b := &Broker{
		changeMin:     changeThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// loopState is owned by the event loop goroutine.
type loopState struct {
	clients    map[chan []byte]struct{}
	history    []frame
	seq        uint64
	lastChange time.Time
}

func (s *loopState) send(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	s.seq++
	f := frame{id: s.seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", s.seq, event.Type, payload))}

	s.history = append(s.history, f)
	if len(s.history) > replayHistory {
		s.history = s.history[len(s.history)-replayHistory:]
	}

	for ch := range s.clients {
		select {
		case ch <- f.raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
}

func (s *loopState) replay(sub subscription) {
	if sub.lastID == 0 {
		return
	}
	for _, f := range s.history {
		if f.id <= sub.lastID {
			continue
		}
		select {
		case sub.ch <- f.raw:
		default:
			return
		}
	}
}

func (s *loopState) onChange(c change, minGap time.Duration) {
	switch c.kind {
	case ChangeMoved, ChangeTrashed, ChangeDeleted, ChangeTranscribed:
	default:
		return
	}
	s.send(Event{Type: "attachment." + c.kind, Data: map[string]string{"path": c.path}})

	if now := time.Now(); now.Sub(s.lastChange) >= minGap {
		s.lastChange = now
		s.send(Event{Type: "vault.changed", Data: map[string]string{}})
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	st := &loopState{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range st.clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			st.clients[sub.ch] = struct{}{}
			st.replay(sub)

		case ch := <-b.unsubscribeCh:
			if _, ok := st.clients[ch]; ok {
				delete(st.clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			st.send(event)

		case c := <-b.changeCh:
			st.onChange(c, b.changeMin)

		case resp := <-b.countReqCh:
			resp <- len(st.clients)
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
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a new client and first delivers the retained events
// with an id above lastID. Zero means live events only.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, lastID: lastID}:
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

// Notify publishes an event by type. It matches the notifier signature used
// by the OCR pipeline and the attachment service.
func (b *Broker) Notify(eventType string, data any) {
	b.Publish(Event{Type: eventType, Data: data})
}

// PublishChange publishes an attachment.<kind> event for path and a
// throttled vault.changed event. Unknown kinds are ignored.
func (b *Broker) PublishChange(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- change{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Idle streams get
// a comment line periodically so proxies keep them open.
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

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
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
