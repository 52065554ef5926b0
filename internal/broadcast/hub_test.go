package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ratefusion/internal/aggregator"
	"github.com/hxuan190/ratefusion/internal/domain"
	"github.com/hxuan190/ratefusion/internal/pkg/cache"
	"github.com/shopspring/decimal"
)

// fakeCache is a minimal cache.Cache backing only Subscribe/Publish, the
// two operations the broadcast hub actually uses.
type fakeCache struct {
	mu   sync.Mutex
	subs []chan string
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) { return "", cache.ErrNotFound }
func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error { return nil }
func (f *fakeCache) Delete(ctx context.Context, key string) error                        { return nil }
func (f *fakeCache) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeCache) SetBreakerState(ctx context.Context, providerID string, snapshot cache.BreakerSnapshot, ttl time.Duration) error {
	return nil
}
func (f *fakeCache) GetBreakerState(ctx context.Context, providerID string) (cache.BreakerSnapshot, error) {
	return cache.BreakerSnapshot{}, cache.ErrNotFound
}

func (f *fakeCache) Publish(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- message
	}
	return nil
}

func (f *fakeCache) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string, 8)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}, nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }
func (f *fakeCache) Close() error                   { return nil }

func sampleRateMessage(t *testing.T, pair string) string {
	t.Helper()
	base, target, _ := strings.Cut(pair, "/")
	raw, err := aggregator.EncodeRate(domain.AggregatedRate{
		Base: base, Target: target, Rate: decimal.NewFromInt(24500),
		Confidence: domain.ConfidenceHigh, SourcesUsed: []string{"fixerio"},
		PrimaryUsed: true, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	return raw
}

func TestHub_StatsReflectsRegisteredConnections(t *testing.T) {
	h := NewHub(&fakeCache{})

	all := &connection{pairs: map[string]struct{}{}}
	filtered := &connection{pairs: map[string]struct{}{"USD/VND": {}}}

	h.register(all)
	h.register(filtered)

	stats := h.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.AllPairs)
	assert.Equal(t, 1, stats.Filtered)
}

func TestHub_EndToEnd_BroadcastsToSubscribedClientsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	fc := &fakeCache{}
	hub := NewHub(fc)

	router := gin.New()
	router.GET("/ws/rates", hub.HandleRates)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rates"

	subscribed, _, err := websocket.DefaultDialer.Dial(wsURL+"?pairs=USD/VND", nil)
	require.NoError(t, err)
	defer subscribed.Close()

	unrelated, _, err := websocket.DefaultDialer.Dial(wsURL+"?pairs=EUR/JPY", nil)
	require.NoError(t, err)
	defer unrelated.Close()

	// drain each connection's welcome message
	_, _, err = subscribed.ReadMessage()
	require.NoError(t, err)
	_, _, err = unrelated.ReadMessage()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// give the hub's Run goroutine a moment to subscribe before publishing
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, fc.Publish(ctx, broadcastChannel, sampleRateMessage(t, "USD/VND")))

	subscribed.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := subscribed.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"pair":"USD/VND"`)
	assert.Contains(t, string(msg), `"type":"rate_update"`)

	unrelated.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = unrelated.ReadMessage()
	assert.Error(t, err, "unrelated subscriber should not receive a USD/VND update")
}

func TestHub_StatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub(&fakeCache{})
	hub.register(&connection{pairs: map[string]struct{}{}})

	router := gin.New()
	router.GET("/ws/stats", hub.HandleStats)

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
