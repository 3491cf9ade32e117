// lcdcanvas drives small USB LCD status panels.
//
// It finds attached panels, keeps the one the user selected showing the
// latest frame, and exposes control over HTTP, WebSocket and MQTT. Frames
// come from an external renderer (HTTP PUT or MQTT), or from a built-in
// test pattern in demo mode.
//
// Usage:
//
//	lcdcanvas [--config path]   run the service
//	lcdcanvas token             print an API token for the configured secret
//	lcdcanvas screens           list configured panels and whether they are attached
//	lcdcanvas version           print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/api"
	"github.com/nerrad567/lcdcanvas/internal/device"
	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/history"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/database"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/influxdb"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/logging"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/mdns"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/mqtt"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/process"
	"github.com/nerrad567/lcdcanvas/internal/render"
	"github.com/nerrad567/lcdcanvas/internal/screen"
	"github.com/nerrad567/lcdcanvas/internal/screen/serialpanel"
	"github.com/nerrad567/lcdcanvas/internal/screen/spipanel"
	"github.com/nerrad567/lcdcanvas/internal/screen/usbpanel"
	"github.com/nerrad567/lcdcanvas/internal/screen/virtual"
	"github.com/nerrad567/lcdcanvas/internal/settings"
	"github.com/nerrad567/lcdcanvas/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "LCDCANVAS_CONFIG"

	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and tears
// everything down in reverse order.
func run(ctx context.Context, configFlag string) error {
	log := logging.Default()
	log.Info("starting lcdcanvas",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	if configPath == "" {
		log.Info("no config file, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	checks := map[string]api.HealthChecker{"database": db}

	events := history.NewStore(db.DB)
	recorder := history.NewRecorder(events, time.Duration(cfg.Database.EventRetentionDays)*24*time.Hour)
	recorder.SetLogger(log.Component("history"))
	recCtx, stopRecorder := context.WithCancel(context.Background())
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		recorder.Run(recCtx)
	}()
	// Stopped after the display so shutdown events are kept.
	defer func() {
		stopRecorder()
		<-recDone
	}()

	sink := virtual.New(cfg.Screens.Virtual.Width, cfg.Screens.Virtual.Height)
	registry, err := device.NewRegistry(sink, buildScreens(cfg.Screens, log)...)
	if err != nil {
		return fmt.Errorf("creating screen registry: %w", err)
	}
	registry.SetLogger(log.Component("device"))

	slot := render.NewSlot(config.Millis(cfg.Renderer.FrameWait))
	var renderer display.Renderer = slot
	if cfg.Display.Demo && cfg.Renderer.Command == "" {
		renderer = render.NewPattern(cfg.Screens.Virtual.Width, cfg.Screens.Virtual.Height)
		log.Info("demo mode, showing test pattern")
	}

	displayCfg := display.Config{
		Renderer:           renderer,
		ErrorLimit:         cfg.Display.ErrorLimit,
		BrightnessAttempts: cfg.Display.BrightnessAttempts,
		RetryDelay:         config.Millis(cfg.Display.RetryDelay),
		TargetInterval:     config.Millis(cfg.Display.TargetInterval),
		MinInterval:        config.Millis(cfg.Display.MinInterval),
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, metrics disabled", "error", err)
			influxClient = nil
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			displayCfg.Recorder = influxClient
			checks["influxdb"] = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	svc := monitor.New(registry, settings.NewSQLiteStore(db.DB), monitor.Config{
		Display:   displayCfg,
		Autostart: cfg.Display.Autostart,
	})
	svc.SetLogger(log.Component("monitor"))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping display")
		if stopErr := svc.Shutdown(shutdownCtx); stopErr != nil {
			log.Error("error stopping display", "error", stopErr)
		}
	}()
	svc.AddNotifier(recorder)
	if influxClient != nil {
		svc.AddNotifier(monitor.RecorderNotifier{Recorder: influxClient})
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := startMQTT(ctx, cfg.MQTT, svc, slot, log)
		if mqttErr != nil {
			log.Warn("MQTT unavailable, remote control disabled", "error", mqttErr)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			checks["mqtt"] = mqttClient
		}
	}

	if err := svc.Restore(ctx); err != nil {
		log.Warn("restoring last session failed", "error", err)
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Monitor:  svc,
		Frames:   slot,
		Preview:  sink,
		History:  events,
		Checks:   checks,
		Version:  version,
	}

	var rendererMgr *process.Manager
	if cfg.Renderer.Command != "" {
		rendererMgr = newRendererManager(cfg, slot, log)
		deps.Renderer = rendererMgr
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.MDNS.Enabled {
		adv, mdnsErr := startMDNS(cfg, svc, log)
		if mdnsErr != nil {
			log.Warn("mDNS advertisement unavailable", "error", mdnsErr)
		} else {
			defer func() {
				if closeErr := adv.Close(); closeErr != nil {
					log.Error("error withdrawing mDNS service", "error", closeErr)
				}
			}()
			log.Info("advertising API", "service", mdns.ServiceType, "instance", cfg.MDNS.Instance)
		}
	}

	if rendererMgr != nil {
		if err := rendererMgr.Start(ctx); err != nil {
			log.Error("renderer failed to start", "error", err)
		} else {
			defer func() {
				log.Info("stopping renderer")
				if stopErr := rendererMgr.Stop(); stopErr != nil {
					log.Error("error stopping renderer", "error", stopErr)
				}
			}()
		}
	}

	log.Info("initialisation complete", "api", server.Addr(), "screens", len(svc.Screens()))
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: renderer, mDNS, API, display, MQTT,
	// InfluxDB, event history, database.
	return nil
}

// loadConfig reads the config file named by the --config flag or
// LCDCANVAS_CONFIG, falling back to configs/config.yaml. Only a missing
// default file is tolerated; the returned path is empty in that case.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path, explicit := flagPath, flagPath != ""
	if !explicit {
		path, explicit = os.LookupEnv(configEnv)
	}
	if !explicit || path == "" {
		path = defaultConfigPath
		explicit = false
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, "", fmt.Errorf("validating default config: %w", vErr)
		}
		return cfg, "", nil
	}
	return nil, "", fmt.Errorf("loading config: %w", err)
}

// buildScreens creates the physical panel drivers enabled in config.
func buildScreens(cfg config.ScreensConfig, log *logging.Logger) []screen.Device {
	var out []screen.Device
	if cfg.Serial.Enabled {
		out = append(out, serialpanel.New(serialpanel.Config{
			Port:         cfg.Serial.Port,
			SerialNumber: cfg.Serial.SerialNumber,
			BaudRate:     cfg.Serial.BaudRate,
			ReadTimeout:  config.Millis(cfg.Serial.ReadTimeout),
		}, serialpanel.WithLogger(log.Screen("serial"))))
	}
	if cfg.USB.Enabled {
		out = append(out, usbpanel.New(usbpanel.Config{
			VendorID:     cfg.USB.VendorID,
			ProductID:    cfg.USB.ProductID,
			SerialNumber: cfg.USB.SerialNumber,
			WriteTimeout: config.Millis(cfg.USB.WriteTimeout),
			AckTimeout:   config.Millis(cfg.USB.AckTimeout),
		}, usbpanel.WithLogger(log.Screen("usb"))))
	}
	if cfg.SPI.Enabled {
		out = append(out, spipanel.New(spipanel.Config{
			Name:      cfg.SPI.Name,
			Bus:       cfg.SPI.Bus,
			DC:        cfg.SPI.DC,
			Reset:     cfg.SPI.Reset,
			Backlight: cfg.SPI.Backlight,
			Width:     cfg.SPI.Width,
			Height:    cfg.SPI.Height,
			SpeedHz:   cfg.SPI.SpeedHz,
		}, spipanel.WithLogger(log.Screen("spi"))))
	}
	return out
}

// startMDNS publishes the API and keeps the advertised display state in
// step with the monitor service.
func startMDNS(cfg *config.Config, svc *monitor.Service, log *logging.Logger) (*mdns.Advertiser, error) {
	adv := mdns.New(cfg.MDNS, version)
	update := func(s display.Session) {
		var id string
		if s.Active != nil {
			id = string(s.Active.Identity)
		}
		if err := adv.Update(id, s.Running); err != nil {
			log.Debug("mDNS TXT update failed", "error", err)
		}
	}
	update(svc.DisplayState())
	if err := adv.Start(cfg.API.Port); err != nil {
		return nil, err
	}
	svc.AddNotifier(monitor.NotifierFunc(func(ev monitor.Event) {
		if ev.Type != monitor.EventDisplayFrame {
			update(ev.Session)
		}
	}))
	return adv, nil
}

// startMQTT connects to the broker, subscribes to commands and frames and
// publishes display state.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, svc *monitor.Service, frames monitor.FrameSink, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	mlog := log.Component("mqtt")
	client.SetLogger(mlog)
	client.SetOnConnect(func() { mlog.Info("MQTT connected") })
	client.SetOnDisconnect(func(err error) { mlog.Warn("MQTT disconnected", "error", err) })

	qos := byte(cfg.QoS)
	topics := mqtt.Topics{}
	if err := client.Subscribe(topics.AllCommands(), qos, svc.CommandHandler(ctx)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("subscribing to commands: %w", err)
	}
	if err := client.Subscribe(topics.Frame(), 0, monitor.FrameHandler(frames)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("subscribing to frames: %w", err)
	}

	svc.AddNotifier(&monitor.MQTTNotifier{
		Publisher:  client,
		StateTopic: topics.DisplayState(),
		EventTopic: topics.DisplayEvent(),
		Logger:     mlog,
	})

	log.Info("MQTT ready",
		"broker", net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port)),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// newRendererManager builds the supervisor for the external renderer. The
// renderer learns where to send frames from its environment, and is
// restarted when it stops delivering them.
func newRendererManager(cfg *config.Config, slot *render.Slot, log *logging.Logger) *process.Manager {
	pcfg := process.DefaultConfig("renderer", cfg.Renderer.Command, cfg.Renderer.Args)
	pcfg.RestartOnFailure = cfg.Renderer.RestartOnFailure
	if cfg.Renderer.RestartDelaySeconds > 0 {
		pcfg.RestartDelay = time.Duration(cfg.Renderer.RestartDelaySeconds) * time.Second
	}
	pcfg.MaxRestartAttempts = cfg.Renderer.MaxRestartAttempts

	host := cfg.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	pcfg.Env = []string{
		process.FrameURLEnv + "=http://" + net.JoinHostPort(host, strconv.Itoa(cfg.API.Port)) + "/api/v1/frame",
		process.FrameWidthEnv + "=" + strconv.Itoa(cfg.Screens.Virtual.Width),
		process.FrameHeightEnv + "=" + strconv.Itoa(cfg.Screens.Virtual.Height),
	}
	pcfg.FrameAge = func() time.Duration {
		_, _, at := slot.Latest()
		return time.Since(at)
	}

	rlog := log.Component("renderer")
	pcfg.OnRestart = func(attempt int) { rlog.Warn("renderer restarting", "attempt", attempt) }

	mgr := process.NewManager(pcfg)
	mgr.SetLogger(rlog)
	return mgr
}
