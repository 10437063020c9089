package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Event is one progress update for a transcription request.
type Event struct {
	RequestID   string  `json:"request_id"`
	Fraction    float64 `json:"fraction"`
	Description string  `json:"description"`
}

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub fans progress events out to websocket subscribers. Slow subscribers
// lose events instead of blocking the publisher.
type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	requestID string
	events    chan Event
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// Subscribe registers for events of requestID, or all requests when empty.
// The returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe(requestID string) (<-chan Event, func()) {
	sub := &subscriber{requestID: requestID, events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.events, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.close()
	}
}

// Close ends every subscription. Websocket handlers return once their channel
// is closed, which http.Server.Shutdown cannot do for hijacked connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.requestID != "" && sub.requestID != ev.RequestID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			h.logger.Debug("dropping progress event for slow subscriber", zap.String("request_id", ev.RequestID))
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams events as JSON text messages until
// the client goes away. The optional request_id query parameter filters them.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.Subscribe(r.URL.Query().Get("request_id"))
	defer cancel()

	// Clients never send anything; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
