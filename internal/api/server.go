package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/history"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/logging"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/process"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultMaxFrameBytes applies when APIConfig.MaxFrameBytes is unset.
const defaultMaxFrameBytes = 8 << 20

// Previewer returns the image a software screen last received.
// Satisfied by *virtual.Screen.
type Previewer interface {
	Snapshot() image.Image
}

// RendererStatus is satisfied by *process.Manager.
type RendererStatus interface {
	Stats() process.Stats
}

// EventHistory lists stored display events. Satisfied by *history.Store.
type EventHistory interface {
	List(ctx context.Context, id screen.Identity, limit int) ([]history.Entry, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Monitor  *monitor.Service

	// Optional.
	Frames   monitor.FrameSink
	Preview  Previewer
	Renderer RendererStatus
	History  EventHistory
	Checks   map[string]HealthChecker
	Version  string
}

// Server is the HTTP API server.
//
// Lifecycle:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	monitor  *monitor.Service
	frames   monitor.FrameSink
	preview  Previewer
	renderer RendererStatus
	history  EventHistory
	checks   map[string]HealthChecker
	version  string
	stream   *eventStream
	tickets  *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server. The event stream is registered with the
// monitor service immediately so no event is missed between New and Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("monitor service is required")
	}
	if deps.Config.MaxFrameBytes <= 0 {
		deps.Config.MaxFrameBytes = defaultMaxFrameBytes
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		monitor:  deps.Monitor,
		frames:   deps.Frames,
		preview:  deps.Preview,
		renderer: deps.Renderer,
		history:  deps.History,
		checks:   deps.Checks,
		version:  deps.Version,
		stream:   newEventStream(deps.WS, deps.Logger, deps.Monitor.DisplayState),
		tickets:  newTicketStore(),
	}
	s.monitor.AddNotifier(s.stream)
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background. Bind
// errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.stream.run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       config.Seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: config.Seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      config.Seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       config.Seconds(s.cfg.Timeouts.Idle),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.listener, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
