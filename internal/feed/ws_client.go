package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClientImpl implements StreamClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	subSeq atomic.Uint64

	// subs maps local subscription ID to delivery channel
	subs   map[uint64]chan Notification
	subsMu sync.RWMutex

	// activeFilters stores filters for resubscription after reconnect
	activeFilters   map[uint64]StreamFilter
	activeFiltersMu sync.RWMutex

	// pendingSubs queues subscribers waiting for an ack.
	// The feed acks subscribe ops in request order on one connection.
	pendingSubs   []chan struct{}
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		endpoint:      endpoint,
		config:        cfg,
		subs:          make(map[uint64]chan Notification),
		activeFilters: make(map[uint64]StreamFilter),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe subscribes to the named streams. Empty filter means all streams.
func (c *WSClientImpl) Subscribe(ctx context.Context, filter StreamFilter) (<-chan Notification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	if err := c.sendSubscribe(ctx, filter); err != nil {
		return nil, err
	}

	// Create notification channel with large buffer for backpressure
	// Blocking send ensures no event loss; buffer absorbs burst
	ch := make(chan Notification, 10000)
	subID := c.subSeq.Add(1)

	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	// Store filter for resubscription after reconnect
	c.activeFiltersMu.Lock()
	c.activeFilters[subID] = filter
	c.activeFiltersMu.Unlock()

	return ch, nil
}

// sendSubscribe sends a subscribe op and waits for the ack.
func (c *WSClientImpl) sendSubscribe(ctx context.Context, filter StreamFilter) error {
	streams := filter.Streams
	if len(streams) == 0 {
		streams = []string{StreamSpend, StreamOutcome}
	}

	req := wsRequest{
		Op:      "subscribe",
		Streams: streams,
	}

	// Queue ack waiter before writing so the reader cannot race past it
	confirmCh := make(chan struct{}, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs = append(c.pendingSubs, confirmCh)
	c.pendingSubsMu.Unlock()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.removePending(confirmCh)
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.removePending(confirmCh)
		return fmt.Errorf("write subscribe: %w", err)
	}

	// Wait for subscription confirmation (30s timeout for slow providers)
	select {
	case <-confirmCh:
		return nil
	case <-time.After(30 * time.Second):
		c.removePending(confirmCh)
		return fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		c.removePending(confirmCh)
		return ctx.Err()
	}
}

// removePending drops an ack waiter from the queue.
func (c *WSClientImpl) removePending(ch chan struct{}) {
	c.pendingSubsMu.Lock()
	defer c.pendingSubsMu.Unlock()
	for i, p := range c.pendingSubs {
		if p == ch {
			c.pendingSubs = append(c.pendingSubs[:i], c.pendingSubs[i+1:]...)
			return
		}
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Close all subscription channels
	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	// Drop pending ack waiters
	c.pendingSubsMu.Lock()
	for _, ch := range c.pendingSubs {
		close(ch)
	}
	c.pendingSubs = nil
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			// Increase delay for next reconnect (exponential backoff)
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClientImpl) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	// Attempt reconnect
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	// Resubscribe to all active subscriptions
	c.resubscribeAll()
}

// resubscribeAll re-sends subscribe ops for all active filters after reconnect.
func (c *WSClientImpl) resubscribeAll() {
	c.activeFiltersMu.RLock()
	filters := make([]StreamFilter, 0, len(c.activeFilters))
	for _, f := range c.activeFilters {
		filters = append(filters, f)
	}
	c.activeFiltersMu.RUnlock()

	for _, filter := range filters {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.sendSubscribe(ctx, filter)
		cancel()

		if err != nil {
			// Failed to resubscribe, next read error retries the cycle
			continue
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsServerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch {
	case msg.Op == "subscribed":
		c.handleSubscribeAck()
	case msg.Stream != "":
		c.dispatchNotification(Notification{
			Stream: msg.Stream,
			Seq:    msg.Seq,
			Record: msg.Record,
		})
	case msg.Error != "":
		// Log error but don't crash - subscription will timeout
		fmt.Printf("[feed] Error response: %s\n", msg.Error)
	}
}

// handleSubscribeAck confirms the oldest waiting subscriber.
func (c *WSClientImpl) handleSubscribeAck() {
	c.pendingSubsMu.Lock()
	var ch chan struct{}
	if len(c.pendingSubs) > 0 {
		ch = c.pendingSubs[0]
		c.pendingSubs = c.pendingSubs[1:]
	}
	c.pendingSubsMu.Unlock()

	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// dispatchNotification delivers an envelope to every matching subscription.
func (c *WSClientImpl) dispatchNotification(notif Notification) {
	c.subsMu.RLock()
	targets := make([]chan Notification, 0, len(c.subs))
	for id, ch := range c.subs {
		filter, ok := c.lookupFilter(id)
		if !ok || filter.matches(notif.Stream) {
			targets = append(targets, ch)
		}
	}
	c.subsMu.RUnlock()

	for _, ch := range targets {
		// Block until we can send - never drop events
		select {
		case ch <- notif:
		case <-c.done:
			return
		}
	}
}

func (c *WSClientImpl) lookupFilter(subID uint64) (StreamFilter, bool) {
	c.activeFiltersMu.RLock()
	defer c.activeFiltersMu.RUnlock()
	f, ok := c.activeFilters[subID]
	return f, ok
}

// matches reports whether the filter admits the stream. Empty filter admits all.
func (f StreamFilter) matches(stream string) bool {
	if len(f.Streams) == 0 {
		return true
	}
	for _, s := range f.Streams {
		if s == stream {
			return true
		}
	}
	return false
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	Op      string   `json:"op"`
	Streams []string `json:"streams,omitempty"`
}

type wsServerMessage struct {
	Op      string          `json:"op,omitempty"`
	Streams []string        `json:"streams,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
	Error   string          `json:"error,omitempty"`
}
