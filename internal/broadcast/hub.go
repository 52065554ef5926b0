// Package broadcast fans rate updates published on the cache's
// rates:broadcast channel out to live WebSocket clients, filtered by
// each client's own subscription set.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hxuan190/ratefusion/internal/aggregator"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/hxuan190/ratefusion/internal/pkg/logger"
)

const broadcastChannel = "rates:broadcast"

// Hub registers WebSocket connections and forwards matching rate
// updates to each one.
type Hub struct {
	cache    cache.Cache
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*connection]struct{}
}

// connection is one registered WebSocket client and its subscription
// filter. An empty pairs set means "subscribe to all pairs".
type connection struct {
	socket *websocket.Conn
	pairs  map[string]struct{}
}

// NewHub constructs a Hub. It does not start subscribing until Run is
// called.
func NewHub(c cache.Cache) *Hub {
	return &Hub{
		cache: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*connection]struct{}),
	}
}

// Run subscribes to the broadcast channel and fans messages out to
// registered connections until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	msgs, cancel, err := h.cache.Subscribe(ctx, broadcastChannel)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			rate, err := aggregator.DecodeRate(raw)
			if err != nil {
				logger.Warn("broadcast: dropped malformed rate message", logger.Fields{"error": err.Error()})
				continue
			}
			h.fanOut(rate.Pair(), raw)
		}
	}
}

func (h *Hub) fanOut(pair, payload string) {
	h.mu.RLock()
	targets := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		if c.matches(pair) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	framed, err := frameRateUpdate(payload)
	if err != nil {
		logger.Warn("broadcast: failed to frame rate update", logger.Fields{"error": err.Error()})
		return
	}

	for _, c := range targets {
		if err := c.socket.WriteMessage(websocket.TextMessage, framed); err != nil {
			logger.Warn("broadcast: send failed, dropping connection", logger.Fields{"error": err.Error()})
			h.remove(c)
		}
	}
}

func (c *connection) matches(pair string) bool {
	if len(c.pairs) == 0 {
		return true
	}
	_, ok := c.pairs[pair]
	return ok
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	_ = c.socket.Close()
}

// Stats is a synchronous snapshot of connection counts for the /ws/stats
// endpoint. Stale reads are acceptable.
type Stats struct {
	TotalConnections int `json:"total_connections"`
	AllPairs         int `json:"all_pairs"`
	Filtered         int `json:"filtered"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{TotalConnections: len(h.conns)}
	for c := range h.conns {
		if len(c.pairs) == 0 {
			stats.AllPairs++
		} else {
			stats.Filtered++
		}
	}
	return stats
}

// HandleStats handles GET /ws/stats.
func (h *Hub) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Stats())
}

// HandleRates upgrades the HTTP request to a WebSocket and registers the
// connection, parsing an optional ?pairs=BASE/TARGET,... filter.
// GET /ws/rates
func (h *Hub) HandleRates(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithContext(c.Request.Context()).WithFields(logrus.Fields{"error": err.Error()}).Error("websocket upgrade failed")
		return
	}

	conn := &connection{socket: socket, pairs: parsePairsFilter(c.Query("pairs"))}
	h.register(conn)
	defer h.remove(conn)

	if err := socket.WriteJSON(welcomeMessage(conn.pairs)); err != nil {
		return
	}

	h.readUntilClose(c.Request.Context(), conn)
}

// readUntilClose blocks reading (and discarding) client frames so the
// gorilla read loop drains control frames (ping/pong, close) until the
// client disconnects or ctx is cancelled, at which point the connection
// is torn down via the deferred remove in HandleRates.
func (h *Hub) readUntilClose(ctx context.Context, conn *connection) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.socket.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func welcomeMessage(pairs map[string]struct{}) gin.H {
	subscribed := make([]string, 0, len(pairs))
	for p := range pairs {
		subscribed = append(subscribed, p)
	}
	return gin.H{
		"type":            "connection_established",
		"subscribed_pairs": subscribed,
		"timestamp":       time.Now().UTC(),
	}
}

// frameRateUpdate adds the envelope's "type" field to the already-JSON
// rate payload, matching the {type: "rate_update", ...message} shape
// clients expect.
func frameRateUpdate(payload string) ([]byte, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, err
	}
	fields["type"] = "rate_update"
	return json.Marshal(fields)
}
