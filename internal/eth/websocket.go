package eth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/metrics"
)

const (
	pingInterval    = 30 * time.Second
	readIdleTimeout = 75 * time.Second
)

// WSClient is a raw JSON-RPC WebSocket client used for the latency-critical
// log subscription. Contract reads and broadcasts go through the HTTP clients;
// this connection only carries eth_subscribe traffic. A dropped connection is
// redialed and every registered subscription re-armed, so a transient
// provider hiccup never silently ends the log stream.
type WSClient struct {
	url    string
	conn   *websocket.Conn
	logger *logrus.Logger

	mu       sync.RWMutex
	writeMu  sync.Mutex
	nextID   int
	pending  map[int]chan *wsMessage
	handlers map[string]LogHandler
	subs     []wsSubscription

	ctx    context.Context
	cancel context.CancelFunc

	reconnectDelay time.Duration

	messagesReceived int
	reconnectCount   int
	lastActivity     time.Time
}

// LogHandler handles a decoded log notification. Handler errors are logged and
// swallowed; a failing handler must never take down the read loop.
type LogHandler func(log *LogNotification) error

// wsSubscription remembers what was subscribed so it can be re-armed after a
// reconnect. The server-issued subscription id changes on every reconnect.
type wsSubscription struct {
	filter  LogFilter
	handler LogHandler
}

type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// LogNotification is one log delivered by an eth_subscribe("logs") stream
type LogNotification struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// LogFilter restricts a log subscription to an address and topic set
type LogFilter struct {
	Address string   `json:"address,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

// NewWSClient creates a WebSocket client
func NewWSClient(url string, logger *logrus.Logger) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &WSClient{
		url:            url,
		logger:         logger,
		pending:        make(map[int]chan *wsMessage),
		handlers:       make(map[string]LogHandler),
		ctx:            ctx,
		cancel:         cancel,
		reconnectDelay: 5 * time.Second,
		lastActivity:   time.Now(),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Reconnection after that is handled internally.
func (ws *WSClient) Connect() error {
	if err := ws.dial(); err != nil {
		return err
	}

	go ws.readLoop()
	go ws.pingLoop()

	return nil
}

func (ws *WSClient) dial() error {
	ws.logger.WithField("url", ws.url).Info("🔌 Connecting to event source WebSocket...")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.Dial(ws.url, nil)
	if err != nil {
		if resp != nil {
			ws.logger.WithFields(logrus.Fields{
				"status": resp.Status,
				"url":    ws.url,
			}).Error("❌ WebSocket connection failed")
		}
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	conn.SetReadLimit(4 * 1024 * 1024)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		ws.mu.Lock()
		ws.lastActivity = time.Now()
		ws.mu.Unlock()
		return nil
	})

	ws.mu.Lock()
	ws.conn = conn
	ws.lastActivity = time.Now()
	ws.mu.Unlock()

	ws.logger.WithField("url", ws.url).Info("✅ WebSocket connected")

	return nil
}

// SubscribeLogs subscribes to logs matching the filter and registers the
// handler under the returned subscription id. The pair is remembered so a
// reconnect re-arms it.
func (ws *WSClient) SubscribeLogs(filter LogFilter, handler LogHandler) (string, error) {
	subID, err := ws.subscribe(filter, handler)
	if err != nil {
		return "", err
	}

	ws.mu.Lock()
	ws.subs = append(ws.subs, wsSubscription{filter: filter, handler: handler})
	ws.mu.Unlock()

	return subID, nil
}

func (ws *WSClient) subscribe(filter LogFilter, handler LogHandler) (string, error) {
	reply, err := ws.request("eth_subscribe", []interface{}{"logs", filter})
	if err != nil {
		return "", fmt.Errorf("eth_subscribe failed: %w", err)
	}

	var subID string
	if err := json.Unmarshal(reply, &subID); err != nil {
		return "", fmt.Errorf("unexpected eth_subscribe reply: %w", err)
	}

	ws.mu.Lock()
	ws.handlers[subID] = handler
	ws.mu.Unlock()

	ws.logger.WithFields(logrus.Fields{
		"subscription": subID,
		"address":      filter.Address,
	}).Info("📡 Log subscription active")

	return subID, nil
}

// request sends one JSON-RPC call and waits for its reply
func (ws *WSClient) request(method string, params interface{}) (json.RawMessage, error) {
	ws.mu.Lock()
	ws.nextID++
	id := ws.nextID
	replyChan := make(chan *wsMessage, 1)
	ws.pending[id] = replyChan
	conn := ws.conn
	ws.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	ws.writeMu.Lock()
	err := conn.WriteJSON(msg)
	ws.writeMu.Unlock()
	if err != nil {
		ws.mu.Lock()
		delete(ws.pending, id)
		ws.mu.Unlock()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	select {
	case reply := <-replyChan:
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-time.After(10 * time.Second):
		ws.mu.Lock()
		delete(ws.pending, id)
		ws.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for %s reply", method)
	case <-ws.ctx.Done():
		return nil, ws.ctx.Err()
	}
}

// readLoop dispatches incoming frames to request replies and log handlers.
// When the connection drops it redials and re-arms the subscriptions instead
// of returning, so the log stream survives provider restarts.
func (ws *WSClient) readLoop() {
	for {
		select {
		case <-ws.ctx.Done():
			return
		default:
		}

		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()
		if conn == nil {
			ws.logger.Warn("⚠️ Connection lost, attempting to reconnect...")
			if err := ws.attemptReconnect(); err != nil {
				ws.logger.WithError(err).Error("❌ Reconnection failed")
				select {
				case <-ws.ctx.Done():
					return
				case <-time.After(ws.reconnectDelay):
				}
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ws.ctx.Err() != nil {
				return
			}
			ws.logger.WithError(err).Warn("❌ WebSocket read failed, dropping connection")
			conn.Close()
			ws.mu.Lock()
			ws.conn = nil
			ws.mu.Unlock()
			continue
		}

		ws.mu.Lock()
		ws.messagesReceived++
		ws.lastActivity = time.Now()
		ws.mu.Unlock()

		switch {
		case msg.ID != nil:
			ws.mu.Lock()
			replyChan, ok := ws.pending[*msg.ID]
			if ok {
				delete(ws.pending, *msg.ID)
			}
			ws.mu.Unlock()
			if ok {
				replyChan <- &msg
			}

		case msg.Method == "eth_subscription":
			ws.dispatchNotification(msg.Params)

		default:
			ws.logger.WithField("method", msg.Method).Debug("Ignoring unexpected WS frame")
		}
	}
}

// attemptReconnect redials and re-arms the remembered subscriptions. The
// resubscribe requests need the read loop to deliver their replies, so they
// run on their own goroutine.
func (ws *WSClient) attemptReconnect() error {
	ws.mu.Lock()
	ws.reconnectCount++
	attempt := ws.reconnectCount
	ws.mu.Unlock()

	ws.logger.WithField("attempt", attempt).Info("🔄 Attempting to reconnect WebSocket...")

	if err := ws.dial(); err != nil {
		return err
	}

	go ws.resubscribe(attempt)

	return nil
}

func (ws *WSClient) resubscribe(attempt int) {
	ws.mu.Lock()
	ws.handlers = make(map[string]LogHandler)
	subs := make([]wsSubscription, len(ws.subs))
	copy(subs, ws.subs)
	ws.mu.Unlock()

	rearmed := 0
	for _, sub := range subs {
		if _, err := ws.subscribe(sub.filter, sub.handler); err != nil {
			ws.logger.WithError(err).WithField("address", sub.filter.Address).Error("❌ Failed to resubscribe")
		} else {
			rearmed++
		}
	}

	ws.logger.WithFields(logrus.Fields{
		"reconnect_count":     attempt,
		"resubscribed":        rearmed,
		"total_subscriptions": len(subs),
	}).Info("✅ WebSocket reconnected")
}

// pingLoop keeps the connection alive and flags a stale event stream
func (ws *WSClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-ticker.C:
			ws.mu.RLock()
			conn := ws.conn
			lastActivity := ws.lastActivity
			ws.mu.RUnlock()

			if conn == nil {
				continue
			}

			ws.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			ws.writeMu.Unlock()
			if err != nil {
				ws.logger.WithError(err).Debug("❌ Failed to send ping")
			}

			if time.Since(lastActivity) > 2*time.Minute {
				ws.logger.WithField("last_activity", lastActivity).Warn("⚠️ No WebSocket activity for 2+ minutes")
			}
		}
	}
}

func (ws *WSClient) dispatchNotification(params json.RawMessage) {
	var sub subscriptionParams
	if err := json.Unmarshal(params, &sub); err != nil {
		ws.logger.WithError(err).Debug("Failed to decode subscription params")
		return
	}

	ws.mu.RLock()
	handler, ok := ws.handlers[sub.Subscription]
	ws.mu.RUnlock()
	if !ok {
		return
	}

	var logEntry LogNotification
	if err := json.Unmarshal(sub.Result, &logEntry); err != nil {
		ws.logger.WithError(err).Debug("Failed to decode log notification")
		return
	}
	metrics.WSNotifications.Inc()

	if logEntry.Removed {
		ws.logger.WithField("tx", logEntry.TransactionHash).Debug("Skipping removed (reorged) log")
		return
	}

	// Handlers run on their own goroutine so a slow handler never backs up
	// the subscription; the event source keeps delivering concurrently.
	go func() {
		if err := handler(&logEntry); err != nil {
			ws.logger.WithError(err).WithField("tx", logEntry.TransactionHash).Error("Log handler failed")
		}
	}()
}

// Stats returns read-loop counters for diagnostics
func (ws *WSClient) Stats() (received int, lastActivity time.Time) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.messagesReceived, ws.lastActivity
}

// Disconnect closes the connection and stops the read and ping loops
func (ws *WSClient) Disconnect() error {
	ws.cancel()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn != nil {
		err := ws.conn.Close()
		ws.conn = nil
		return err
	}
	return nil
}
