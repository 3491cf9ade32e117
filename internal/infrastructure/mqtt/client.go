package mqtt

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

// Logger is satisfied by logging.Logger and *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler receives one message. A returned error is logged and
// otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// route is a remembered subscription, replayed after every reconnect
// because sessions are clean.
type route struct {
	qos     byte
	handler MessageHandler
}

// Client is a paho connection that announces lcdcanvas presence on
// lcdcanvas/system/status and keeps its subscriptions across reconnects.
type Client struct {
	cfg    config.MQTTConfig
	client pahomqtt.Client

	mu           sync.RWMutex
	connected    bool
	routes       map[string]route
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:    cfg,
		routes: make(map[string]route),
		logger: noopLogger{},
	}
}

// Connect dials the broker. When it cannot be reached within the connect
// timeout the background retries are abandoned and ErrConnectionFailed is
// returned, so a missing broker never blocks startup for long.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Info("mqtt reconnecting", "broker", cfg.Broker.Host)
	})

	c.client = pahomqtt.NewClient(opts)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	if err := await(c.client.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		// Stop paho's connect retry loop.
		c.client.Disconnect(0)
		return err
	}
	// The OnConnect handler runs on its own goroutine and may lag behind.
	c.setConnected(true)
	return nil
}

// await waits for a paho token and wraps its failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no answer within %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	routes := maps.Clone(c.routes)
	cb := c.onConnect
	c.mu.Unlock()

	for _, topic := range slices.Sorted(maps.Keys(routes)) {
		r := routes[topic]
		c.client.Subscribe(topic, r.qos, c.dispatch(r.handler))
	}
	c.announce("online", "")

	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	c.log().Warn("mqtt connection lost", "error", err)
	if cb != nil {
		cb(err)
	}
}

// announce publishes the retained presence document.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	payload := statusPayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close marks lcdcanvas offline and disconnects. Safe on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce("offline", "graceful_shutdown").WaitTimeout(operationTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both the wrapper and paho think the link
// is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.connected
	c.mu.RUnlock()
	return up && c.client.IsConnected()
}

// SetOnConnect registers cb for the first connect and every reconnect.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetOnDisconnect registers cb for lost connections.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
