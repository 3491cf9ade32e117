package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/device"
	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/logging"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/process"
	"github.com/nerrad567/lcdcanvas/internal/render"
	"github.com/nerrad567/lcdcanvas/internal/screen/virtual"
	"github.com/nerrad567/lcdcanvas/internal/settings"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv     *Server
	handler http.Handler
	svc     *monitor.Service
	sink    *virtual.Screen
	slot    *render.Slot
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("broker unreachable") }

type okCheck struct{}

func (okCheck) HealthCheck(context.Context) error { return nil }

type fakeRenderer struct{}

func (fakeRenderer) Stats() process.Stats {
	return process.Stats{Name: "renderer", Status: process.StatusRunning, RestartCount: 2}
}

// newTestEnv wires a Server around a monitor service with only the
// virtual screen attached.
func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	sink := virtual.New(64, 32)
	reg, err := device.NewRegistry(sink)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	slot := render.NewSlot(10 * time.Millisecond)
	svc := monitor.New(reg, settings.NewMemoryStore(), monitor.Config{
		Display: display.Config{
			Renderer:       slot,
			RetryDelay:     time.Millisecond,
			TargetInterval: 5 * time.Millisecond,
			MinInterval:    time.Millisecond,
		},
	})
	svc.LoadScreens()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	deps := Deps{
		Config: config.APIConfig{
			Host:          "127.0.0.1",
			Timeouts:      config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			MaxFrameBytes: 64 << 10,
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Monitor:  svc,
		Frames:   slot,
		Preview:  sink,
		Renderer: fakeRenderer{},
		Checks:   map[string]HealthChecker{"database": okCheck{}},
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, handler: srv.Handler(), svc: svc, sink: sink, slot: slot}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) should fail without a logger")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() should fail without a monitor service")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthChecker
		want   string
	}{
		{"all ok", map[string]HealthChecker{"database": okCheck{}}, "ok"},
		{"degraded", map[string]HealthChecker{"database": okCheck{}, "mqtt": failingCheck{}}, "degraded"},
		{"no checks", nil, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) { d.Checks = tt.checks })
			w := env.do(t, http.MethodGet, "/api/v1/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body := decode[map[string]any](t, w)
			if body["status"] != tt.want {
				t.Errorf("status = %v, want %s", body["status"], tt.want)
			}
			if body["version"] != "test" {
				t.Errorf("version = %v", body["version"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	w = env.do(t, http.MethodGet, "/api/v1/health", "", "X-Request-ID", "abc-123")
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	w := env.do(t, http.MethodOptions, "/api/v1/screens", "", "Origin", "http://panel.local")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	w = env.do(t, http.MethodOptions, "/api/v1/screens", "", "Origin", "http://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

func TestScreens(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/screens", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[map[string][]map[string]any](t, w)
	if len(list["screens"]) != 1 || list["screens"][0]["id"] != string(virtual.ID) {
		t.Errorf("screens = %v", list)
	}

	w = env.do(t, http.MethodPost, "/api/v1/screens/rescan", "")
	if w.Code != http.StatusOK {
		t.Errorf("rescan status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/screens/active", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("active before select = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/screens/active", `{"id":"Nope"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("select unknown = %d, want 404", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/screens/active", `{"id":"VirtualScreen"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select = %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["active"] != true {
		t.Errorf("select response = %v", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/screens/active", "")
	if w.Code != http.StatusOK {
		t.Fatalf("active after select = %d", w.Code)
	}
	if got := decode[map[string]any](t, w); got["id"] != string(virtual.ID) {
		t.Errorf("active = %v", got)
	}

	w = env.do(t, http.MethodPut, "/api/v1/screens/active", `{"id":""}`)
	if got := decode[map[string]any](t, w); got["active"] != false {
		t.Errorf("clear response = %v", got)
	}
	w = env.do(t, http.MethodPut, "/api/v1/screens/active", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
}

func TestScreenSettingsMerge(t *testing.T) {
	env := newTestEnv(t, nil)
	path := "/api/v1/screens/WCH32/settings"

	w := env.do(t, http.MethodGet, path, "")
	if got := decode[settings.Screen](t, w); got.Brightness != 100 || got.Rotation != 0 {
		t.Errorf("default settings = %+v", got)
	}

	w = env.do(t, http.MethodPut, path, `{"rotation":90,"last_theme":"dark"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPut, path, `{"brightness":40}`)
	got := decode[settings.Screen](t, w)
	if got.Brightness != 40 || got.Rotation != 90 || got.LastTheme != "dark" {
		t.Errorf("merged settings = %+v", got)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad rotation", `{"rotation":45}`, http.StatusBadRequest},
		{"bad brightness", `{"brightness":101}`, http.StatusBadRequest},
		{"not json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPut, path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMonitorSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/api/v1/monitor/settings", `{"lang":"de","startup":"true"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPut, "/api/v1/monitor/settings", `{"lang":"fr"}`)
	got := decode[map[string]string](t, w)
	if got["lang"] != "fr" || got["startup"] != "true" {
		t.Errorf("merged = %v", got)
	}

	w = env.do(t, http.MethodPut, "/api/v1/monitor/settings", `{"startup":"maybe"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid startup = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/v1/monitor/settings", `{"lang":1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-string value = %d, want 400", w.Code)
	}
}

func TestDisplayControl(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"start without screen", "/api/v1/display", `{"on":true}`, http.StatusConflict},
		{"brightness without screen", "/api/v1/display/brightness", `{"value":50}`, http.StatusConflict},
		{"missing on", "/api/v1/display", `{}`, http.StatusBadRequest},
		{"missing value", "/api/v1/display/brightness", `{}`, http.StatusBadRequest},
		{"missing degrees", "/api/v1/display/rotation", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPut
			if tt.path == "/api/v1/display" {
				method = http.MethodPost
			}
			if w := env.do(t, method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	env.do(t, http.MethodPut, "/api/v1/screens/active", `{"id":"VirtualScreen"}`)

	w := env.do(t, http.MethodPut, "/api/v1/display/rotation", `{"degrees":45}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("rotation 45 = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/v1/display/rotation", `{"degrees":180}`)
	if got := decode[display.Session](t, w); got.Rotation != 180 {
		t.Errorf("rotation = %d, want 180", got.Rotation)
	}
	w = env.do(t, http.MethodPut, "/api/v1/display/brightness", `{"value":150}`)
	if got := decode[display.Session](t, w); got.Brightness != 100 {
		t.Errorf("brightness = %d, want clamp to 100", got.Brightness)
	}

	w = env.do(t, http.MethodPost, "/api/v1/display", `{"on":true}`)
	if got := decode[display.Session](t, w); !got.Running {
		t.Errorf("after start session = %+v", got)
	}
	w = env.do(t, http.MethodGet, "/api/v1/display", "")
	if got := decode[display.Session](t, w); got.Active == nil || got.Active.Identity != virtual.ID {
		t.Errorf("GET display = %+v", got)
	}
	w = env.do(t, http.MethodPost, "/api/v1/display", `{"on":false}`)
	if got := decode[display.Session](t, w); got.Running {
		t.Errorf("after stop session = %+v", got)
	}
}

func TestFrameUploadAndPreview(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/api/v1/preview.png", ""); w.Code != http.StatusNotFound {
		t.Errorf("preview before any frame = %d, want 404", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/frame", bytes.NewReader(pngBody(t, 64, 32)))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("frame upload = %d: %s", w.Code, w.Body.String())
	}
	if _, seq, _ := env.slot.Latest(); seq != 1 {
		t.Errorf("slot seq = %d, want 1", seq)
	}

	env.do(t, http.MethodPut, "/api/v1/screens/active", `{"id":"VirtualScreen"}`)
	env.do(t, http.MethodPost, "/api/v1/display", `{"on":true}`)

	deadline := time.Now().Add(2 * time.Second)
	for env.sink.Snapshot() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	w = env.do(t, http.MethodGet, "/api/v1/preview.png", "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decoding preview: %v", err)
	}
	if r, g, b, _ := img.At(0, 0).RGBA(); r>>8 != 0xff || g>>8 != 0xff || b>>8 != 0xff {
		t.Errorf("preview pixel = (%d, %d, %d), want white", r>>8, g>>8, b>>8)
	}
}

func TestFrameUploadErrors(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Config.MaxFrameBytes = 512 })

	w := env.do(t, http.MethodPut, "/api/v1/frame", "definitely not an image")
	if w.Code != http.StatusBadRequest {
		t.Errorf("garbage = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/frame", bytes.NewReader(bytes.Repeat([]byte{0x89}, 4096)))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Errorf("oversized = %d, want 413 or 400", rec.Code)
	}

	disabled := newTestEnv(t, func(d *Deps) { d.Frames = nil })
	req = httptest.NewRequest(http.MethodPut, "/api/v1/frame", bytes.NewReader(pngBody(t, 4, 4)))
	rec = httptest.NewRecorder()
	disabled.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no sink = %d, want 503", rec.Code)
	}
}

func TestRendererStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/renderer", "")
	got := decode[map[string]any](t, w)
	if got["name"] != "renderer" || got["restart_count"] != float64(2) {
		t.Errorf("renderer = %v", got)
	}

	env = newTestEnv(t, func(d *Deps) { d.Renderer = nil })
	w = env.do(t, http.MethodGet, "/api/v1/renderer", "")
	if got := decode[map[string]any](t, w); got["status"] != "disabled" {
		t.Errorf("renderer without manager = %v", got)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Security.JWT.Secret = testSecret })

	token, err := IssueToken(testSecret, "panel-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	otherToken, err := IssueToken("some-other-secret-of-enough-length", "panel-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		header []string
		want   int
	}{
		{"health is open", "/api/v1/health", nil, http.StatusOK},
		{"no token", "/api/v1/screens", nil, http.StatusUnauthorized},
		{"not bearer", "/api/v1/screens", []string{"Authorization", "Basic abc"}, http.StatusUnauthorized},
		{"wrong secret", "/api/v1/screens", []string{"Authorization", "Bearer " + otherToken}, http.StatusUnauthorized},
		{"valid", "/api/v1/screens", []string{"Authorization", "Bearer " + token}, http.StatusOK},
		{"ws without ticket", "/api/v1/ws", nil, http.StatusUnauthorized},
		{"ws bad ticket", "/api/v1/ws?ticket=nope", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodGet, tt.path, "", tt.header...); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestStartAndClose(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health over TCP = %d", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
