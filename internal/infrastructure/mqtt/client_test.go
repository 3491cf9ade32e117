package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

// fakeToken completes immediately with err, or never if hang is set.
type fakeToken struct {
	err  error
	hang bool
}

func (t fakeToken) Wait() bool                     { return !t.hang }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.hang {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakePaho implements the parts of pahomqtt.Client the wrapper uses.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	subscribeErr error
	published    []published
	handlers     map[string]pahomqtt.MessageHandler
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Connect() pahomqtt.Token { return fakeToken{err: f.connectErr} }

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, published{topic, qos, retained, b})
	return fakeToken{err: f.publishErr}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = cb
	return fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return fakeToken{}
}

func (f *fakePaho) deliver(subscribed, topic string, payload []byte) {
	f.mu.Lock()
	cb := f.handlers[subscribed]
	f.mu.Unlock()
	cb(f, fakeMessage{topic: topic, payload: payload})
}

func (f *fakePaho) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

type recordLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordLogger) Info(string, ...any) {}
func (l *recordLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "lcdcanvas-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectedClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(testConfig())
	c.client = fake
	if err := c.connect(); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	return c, fake
}

func TestConnect(t *testing.T) {
	c, _ := connectedClient(t)
	if !c.IsConnected() {
		t.Error("IsConnected() = false after connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnectError(t *testing.T) {
	fake := newFakePaho()
	fake.connectErr = errors.New("refused")
	c := newClient(testConfig())
	c.client = fake

	if err := c.connect(); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := connectedClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c, _ := connectedClient(t)

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 0, nil, ErrInvalidTopic},
		{"bad qos", "x", 3, nil, ErrInvalidQoS},
		{"too large", "x", 0, make([]byte, MaxPayloadSize+1), ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	c, fake := connectedClient(t)

	if err := c.Publish(Topics{}.DisplayEvent(), []byte(`{"type":"stopped"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got := fake.last()
	if got.topic != "lcdcanvas/display/event" || got.retained || got.qos != 1 {
		t.Errorf("published %+v", got)
	}

	fake.publishErr = errors.New("broker said no")
	if err := c.Publish("x", nil, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishJSON(t *testing.T) {
	c, fake := connectedClient(t)

	state := map[string]any{"running": true, "brightness": 80}
	if err := c.PublishJSON(Topics{}.DisplayState(), state, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	got := fake.last()
	if !got.retained {
		t.Error("state should be retained")
	}
	var decoded map[string]any
	if err := json.Unmarshal(got.payload, &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded["running"] != true {
		t.Errorf("payload = %s", got.payload)
	}

	if err := c.PublishJSON("x", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	c := newClient(testConfig())
	c.client = newFakePaho()
	if err := c.Publish("x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeAndDeliver(t *testing.T) {
	c, fake := connectedClient(t)

	var got []string
	err := c.Subscribe(Topics{}.AllCommands(), 1, func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("lcdcanvas/command/+") || c.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	fake.deliver("lcdcanvas/command/+", "lcdcanvas/command/brightness", []byte("40"))
	if len(got) != 1 || got[0] != "lcdcanvas/command/brightness=40" {
		t.Errorf("handler saw %v", got)
	}

	if err := c.Unsubscribe("lcdcanvas/command/+"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestSubscribeFailureNotTracked(t *testing.T) {
	c, fake := connectedClient(t)
	fake.subscribeErr = errors.New("denied")

	err := c.Subscribe("x", 0, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("x") {
		t.Error("failed subscription should not be tracked")
	}
}

func TestSubscribeValidation(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("x", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("x", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestHandlerPanicAndError(t *testing.T) {
	c, fake := connectedClient(t)
	log := &recordLogger{}
	c.SetLogger(log)

	_ = c.Subscribe("panic", 0, func(string, []byte) error { panic("boom") })
	_ = c.Subscribe("fail", 0, func(string, []byte) error { return errors.New("bad payload") })

	fake.deliver("panic", "panic", nil)
	fake.deliver("fail", "fail", nil)

	if len(log.errs) != 1 || !strings.Contains(log.errs[0], "panic") {
		t.Errorf("errors logged = %v", log.errs)
	}
	if len(log.warns) != 1 {
		t.Errorf("warnings logged = %v", log.warns)
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	c, fake := connectedClient(t)
	var connects int
	c.SetOnConnect(func() { connects++ })
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	_ = c.Subscribe(Topics{}.Frame(), 0, func(string, []byte) error { return nil })

	c.handleDisconnect(errors.New("network down"))
	if lost == nil {
		t.Error("OnDisconnect not called")
	}
	fake.mu.Lock()
	fake.handlers = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()

	c.handleConnect()
	if connects != 1 {
		t.Errorf("OnConnect called %d times", connects)
	}
	fake.mu.Lock()
	_, restored := fake.handlers["lcdcanvas/frame"]
	fake.mu.Unlock()
	if !restored {
		t.Error("frame subscription not restored")
	}

	status := fake.last()
	if status.topic != "lcdcanvas/system/status" || !status.retained || !strings.Contains(string(status.payload), `"online"`) {
		t.Errorf("status publish = %+v", status)
	}
}

func TestClose(t *testing.T) {
	c, fake := connectedClient(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Error("Close() did not disconnect")
	}
	status := fake.last()
	if !strings.Contains(string(status.payload), "graceful_shutdown") {
		t.Errorf("offline payload = %s", status.payload)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.SystemStatus(), "lcdcanvas/system/status"},
		{topics.DisplayState(), "lcdcanvas/display/state"},
		{topics.DisplayEvent(), "lcdcanvas/display/event"},
		{topics.Command(CommandRotation), "lcdcanvas/command/rotation"},
		{topics.AllCommands(), "lcdcanvas/command/+"},
		{topics.Frame(), "lcdcanvas/frame"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		topic string
		name  string
		ok    bool
	}{
		{"lcdcanvas/command/display", "display", true},
		{"lcdcanvas/command/brightness", "brightness", true},
		{"lcdcanvas/command/", "", false},
		{"lcdcanvas/command/a/b", "", false},
		{"lcdcanvas/frame", "", false},
	}
	for _, tt := range tests {
		name, ok := Topics{}.CommandName(tt.topic)
		if name != tt.name || ok != tt.ok {
			t.Errorf("CommandName(%q) = %q, %v", tt.topic, name, ok)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "panel"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "panel" || opts.TLSConfig == nil {
		t.Error("auth or TLS not applied")
	}
	if !opts.WillEnabled || opts.WillTopic != "lcdcanvas/system/status" || !opts.WillRetained {
		t.Error("LWT not configured")
	}
}
