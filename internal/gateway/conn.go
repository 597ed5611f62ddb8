package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/platform/logger"
	"github.com/davshaw/gengate/internal/store/model"
	"go.uber.org/zap"
)

const (
	defaultBackoffBase  = time.Second
	defaultBackoffMax   = 30 * time.Second
	defaultMaxReconnect = 5
	defaultResumeDelay  = 5 * time.Second
	eventQueueSize      = 256
)

// EventHandler receives message dispatches from a connection. Calls
// arrive from a single worker goroutine per connection.
type EventHandler interface {
	OnMessageCreate(ctx context.Context, account *model.BotAccount, msg *Message)
	OnMessageUpdate(ctx context.Context, account *model.BotAccount, msg *Message)
	OnMessageDelete(ctx context.Context, account *model.BotAccount, del *MessageDelete)
}

type queuedEvent struct {
	kind string
	msg  *Message
	del  *MessageDelete
}

// Connection maintains one account's socket to the platform gateway:
// identify on hello, heartbeat at the server's interval, and
// exponential-backoff reconnects capped at five attempts.
type Connection struct {
	account model.BotAccount
	cfg     config.GatewayConfig
	handler EventHandler

	// Tunable for tests; zero values take the defaults above.
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	MaxReconnects int
	ResumeDelay   time.Duration

	mu         sync.Mutex
	ws         *websocket.Conn
	stopHB     chan struct{}
	closed     bool
	reconnects int
	sessionID  string
	ready      atomic.Bool
	sequence   atomic.Int64

	events   chan queuedEvent
	workerWG sync.WaitGroup
}

func NewConnection(account model.BotAccount, cfg config.GatewayConfig, handler EventHandler) *Connection {
	return &Connection{
		account:       account,
		cfg:           cfg,
		handler:       handler,
		BackoffBase:   defaultBackoffBase,
		BackoffMax:    defaultBackoffMax,
		MaxReconnects: defaultMaxReconnect,
		ResumeDelay:   defaultResumeDelay,
		events:        make(chan queuedEvent, eventQueueSize),
	}
}

func (c *Connection) Account() *model.BotAccount {
	return &c.account
}

// Ready reports whether the socket is identified and dispatching.
func (c *Connection) Ready() bool {
	return c.ready.Load()
}

// SessionID returns the gateway session recorded from the last READY.
// Interactions submitted for this account must carry it.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect dials the gateway and starts the read and event loops. It
// returns once the socket is established; readiness follows the READY
// dispatch asynchronously.
func (c *Connection) Connect(ctx context.Context) error {
	ws, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial gateway for account %d: %w", c.account.ID, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.closed = false
	c.mu.Unlock()

	c.workerWG.Add(1)
	go c.eventWorker(ctx)
	go c.readLoop(ctx, ws)
	return nil
}

// Close shuts the socket down and stops reconnecting.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopHeartbeatLocked()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	close(c.events)
	c.mu.Unlock()

	c.ready.Store(false)
	c.workerWG.Wait()
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.SocketURL, nil)
	return ws, err
}

func (c *Connection) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.ready.Store(false)
			c.stopHeartbeat()
			if c.isClosed() || ctx.Err() != nil {
				return
			}
			logger.Warn("Gateway socket dropped",
				zap.Int64("account_id", c.account.ID),
				zap.Error(err),
			)
			c.reconnect(ctx)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn("Malformed gateway frame", zap.Error(err))
			continue
		}
		if f.Sequence != nil {
			c.sequence.Store(*f.Sequence)
		}

		switch f.Op {
		case opHello:
			c.handleHello(f.Data, ws)
		case opDispatch:
			c.handleDispatch(f)
		case opHeartbeatACK:
			// nothing to do
		case opReconnect:
			logger.Info("Gateway requested reconnect", zap.Int64("account_id", c.account.ID))
			_ = ws.Close()
		case opInvalidSession:
			go func() {
				time.Sleep(c.ResumeDelay)
				c.sendIdentify(ws)
			}()
		}
	}
}

func (c *Connection) handleHello(data json.RawMessage, ws *websocket.Conn) {
	var hello helloData
	if err := json.Unmarshal(data, &hello); err != nil {
		logger.Warn("Malformed hello payload", zap.Error(err))
		return
	}
	c.startHeartbeat(time.Duration(hello.HeartbeatInterval)*time.Millisecond, ws)
	c.sendIdentify(ws)
}

func (c *Connection) handleDispatch(f frame) {
	switch f.Type {
	case eventReady:
		var ready readyData
		_ = json.Unmarshal(f.Data, &ready)
		c.mu.Lock()
		c.reconnects = 0
		c.sessionID = ready.SessionID
		c.mu.Unlock()
		c.ready.Store(true)
		logger.Info("Gateway connection ready",
			zap.Int64("account_id", c.account.ID),
			zap.String("bot_user_id", ready.User.ID),
		)

	case eventMessageCreate, eventMessageUpdate:
		var msg Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return
		}
		if msg.ChannelID != c.account.ChannelID {
			return
		}
		c.enqueue(queuedEvent{kind: f.Type, msg: &msg})

	case eventMessageDelete:
		var del MessageDelete
		if err := json.Unmarshal(f.Data, &del); err != nil {
			return
		}
		if del.ChannelID != c.account.ChannelID {
			return
		}
		c.enqueue(queuedEvent{kind: f.Type, del: &del})
	}
}

func (c *Connection) enqueue(ev queuedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		logger.Warn("Gateway event queue full, dropping event",
			zap.Int64("account_id", c.account.ID),
			zap.String("event", ev.kind),
		)
	}
}

func (c *Connection) eventWorker(ctx context.Context) {
	defer c.workerWG.Done()
	for ev := range c.events {
		if c.handler == nil {
			continue
		}
		switch ev.kind {
		case eventMessageCreate:
			c.handler.OnMessageCreate(ctx, &c.account, ev.msg)
		case eventMessageUpdate:
			c.handler.OnMessageUpdate(ctx, &c.account, ev.msg)
		case eventMessageDelete:
			c.handler.OnMessageDelete(ctx, &c.account, ev.del)
		}
	}
}

func (c *Connection) sendIdentify(ws *websocket.Conn) {
	payload := identifyData{
		Token:   c.account.UserToken,
		Intents: identifyIntents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "chrome",
			Device:  "desktop",
		},
	}
	c.writeFrame(ws, opIdentify, payload)
}

func (c *Connection) startHeartbeat(interval time.Duration, ws *websocket.Conn) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.stopHB = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.writeFrame(ws, opHeartbeat, c.sequence.Load())
			}
		}
	}()
}

func (c *Connection) stopHeartbeat() {
	c.mu.Lock()
	c.stopHeartbeatLocked()
	c.mu.Unlock()
}

func (c *Connection) stopHeartbeatLocked() {
	if c.stopHB != nil {
		close(c.stopHB)
		c.stopHB = nil
	}
}

func (c *Connection) writeFrame(ws *websocket.Conn, op int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	f := frame{Op: op, Data: payload}
	c.mu.Lock()
	err = ws.WriteJSON(f)
	c.mu.Unlock()
	if err != nil {
		logger.Warn("Gateway write failed",
			zap.Int64("account_id", c.account.ID),
			zap.Int("op", op),
			zap.Error(err),
		)
	}
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// reconnect redials with exponential backoff. The attempt counter
// survives across drops and only resets on READY; after MaxReconnects
// the connection stays down until a pool reload.
func (c *Connection) reconnect(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.reconnects >= c.MaxReconnects {
			c.mu.Unlock()
			logger.Error("Gateway reconnect attempts exhausted",
				zap.Int64("account_id", c.account.ID),
				zap.Int("max_attempts", c.MaxReconnects),
			)
			return
		}
		attempt := c.reconnects
		c.reconnects++
		c.mu.Unlock()

		delay := c.BackoffBase << attempt
		if delay > c.BackoffMax {
			delay = c.BackoffMax
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if c.isClosed() {
			return
		}

		ws, err := c.dial(ctx)
		if err != nil {
			logger.Warn("Gateway reconnect failed",
				zap.Int64("account_id", c.account.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		go c.readLoop(ctx, ws)
		return
	}
}
