package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config mirrors config.yaml. Sections for optional integrations carry an
// Enabled flag; everything else always applies.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Screens   ScreensConfig   `yaml:"screens"`
	Display   DisplayConfig   `yaml:"display"`
	Renderer  RendererConfig  `yaml:"renderer"`
	MDNS      MDNSConfig      `yaml:"mdns"`
}

// DatabaseConfig locates the SQLite file holding screen settings and
// event history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// EventRetentionDays bounds the stored display event history.
	// Zero keeps events forever.
	EventRetentionDays int `yaml:"event_retention_days"`
}

// MQTTConfig is the optional command and frame ingest link.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig is normally filled from LCDCANVAS_MQTT_USERNAME and
// LCDCANVAS_MQTT_PASSWORD.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig is the control API listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// MaxFrameBytes caps uploaded frame images.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

// APITimeoutConfig values are seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists browser origins allowed to call the API. Empty allows
// any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig tunes the event stream. Intervals are seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig enables per-cycle telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig sizes are megabytes, ages days.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds the HS256 signing secret. An empty secret leaves the API unauthenticated, which is only sensible
// when it is bound to a loopback address.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ScreensConfig selects which panel drivers are created at startup.
type ScreensConfig struct {
	Serial  SerialScreenConfig  `yaml:"serial"`
	USB     USBScreenConfig     `yaml:"usb"`
	SPI     SPIScreenConfig     `yaml:"spi"`
	Virtual VirtualScreenConfig `yaml:"virtual"`
}

// SerialScreenConfig configures the serial partial-update panel.
type SerialScreenConfig struct {
	Enabled bool `yaml:"enabled"`

	// Port pins the device path (e.g. /dev/ttyACM0). When empty the
	// port is found by matching the USB serial number.
	Port string `yaml:"port"`

	SerialNumber string `yaml:"serial_number"`
	BaudRate     int    `yaml:"baud_rate"`

	// ReadTimeout in milliseconds.
	ReadTimeout int `yaml:"read_timeout"`
}

// USBScreenConfig configures the USB full-frame panel.
type USBScreenConfig struct {
	Enabled      bool   `yaml:"enabled"`
	VendorID     uint16 `yaml:"vendor_id"`
	ProductID    uint16 `yaml:"product_id"`
	SerialNumber string `yaml:"serial_number"`

	// WriteTimeout and AckTimeout in milliseconds.
	WriteTimeout int `yaml:"write_timeout"`
	AckTimeout   int `yaml:"ack_timeout"`
}

// SPIScreenConfig describes a TFT wired to an SPI bus and GPIO pins.
// Pin and bus names are periph.io registry names ("SPI0.0", "GPIO25").
type SPIScreenConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Name      string `yaml:"name"`
	Bus       string `yaml:"bus"`
	DC        string `yaml:"dc_pin"`
	Reset     string `yaml:"reset_pin"`
	Backlight string `yaml:"backlight_pin"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	SpeedHz   int64  `yaml:"speed_hz"`
}

// VirtualScreenConfig sizes the software sink behind /preview.png.
type VirtualScreenConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DisplayConfig contains display loop tunables.
type DisplayConfig struct {
	// ErrorLimit is the number of consecutive failed cycles tolerated
	// before the loop gives up.
	ErrorLimit int `yaml:"error_limit"`

	// BrightnessAttempts bounds retries of a brightness change.
	BrightnessAttempts int `yaml:"brightness_attempts"`

	// Durations in milliseconds.
	RetryDelay     int `yaml:"retry_delay"`
	TargetInterval int `yaml:"target_interval"`
	MinInterval    int `yaml:"min_interval"`

	// Autostart starts the loop on boot when a last screen is known.
	Autostart bool `yaml:"autostart"`

	// Demo feeds a generated test pattern when no renderer is attached.
	Demo bool `yaml:"demo"`
}

// RendererConfig contains settings for an optional external renderer process.
type RendererConfig struct {
	Command             string   `yaml:"command"`
	Args                []string `yaml:"args"`
	RestartOnFailure    bool     `yaml:"restart_on_failure"`
	RestartDelaySeconds int      `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int      `yaml:"max_restart_attempts"`

	// FrameWait is how long the display loop waits for a frame (ms).
	FrameWait int `yaml:"frame_wait"`
}

// MDNSConfig controls advertisement of the API on the local network.
type MDNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// Load layers built-in defaults, the YAML file at path and the
// LCDCANVAS_* variables from envOverrides, then validates. A .env file in
// the same directory supplies variables the process environment lacks.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dotenv, err := readDotEnv(filepath.Join(filepath.Dir(path), DotEnvFile))
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg, os.Getenv)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:               "./data/lcdcanvas.db",
			WALMode:            true,
			BusyTimeout:        5,
			EventRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lcdcanvas",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxFrameBytes: 4 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/lcdcanvas.log",
				MaxSize:    1,
				MaxBackups: 1,
				MaxAge:     28,
			},
		},
		Screens: ScreensConfig{
			Serial: SerialScreenConfig{
				Enabled:      true,
				SerialNumber: "QDTFT35_V1COM",
				BaudRate:     115200,
				ReadTimeout:  1000,
			},
			USB: USBScreenConfig{
				Enabled:      true,
				VendorID:     0x1908,
				ProductID:    0x0102,
				SerialNumber: "WCH32",
				WriteTimeout: 5000,
				AckTimeout:   1000,
			},
			SPI: SPIScreenConfig{
				Name:    "SPI-ST7789",
				Width:   240,
				Height:  320,
				SpeedHz: 40_000_000,
			},
			Virtual: VirtualScreenConfig{
				Width:  480,
				Height: 320,
			},
		},
		Display: DisplayConfig{
			ErrorLimit:         10,
			BrightnessAttempts: 3,
			RetryDelay:         1000,
			TargetInterval:     1000,
			MinInterval:        100,
			Autostart:          true,
		},
		Renderer: RendererConfig{
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
			FrameWait:           1000,
		},
		MDNS: MDNSConfig{
			Instance: "lcdcanvas",
		},
	}
}

// DotEnvFile is read from the config file's directory when present. Its
// values apply only where the process environment leaves a key unset.
const DotEnvFile = ".env"

func readDotEnv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vals, nil
}

// envOverrides maps each supported variable to the field it replaces.
// Empty values are ignored.
var envOverrides = []struct {
	key   string
	field func(*Config) *string
}{
	{"LCDCANVAS_DATABASE_PATH", func(c *Config) *string { return &c.Database.Path }},
	{"LCDCANVAS_MQTT_HOST", func(c *Config) *string { return &c.MQTT.Broker.Host }},
	{"LCDCANVAS_MQTT_USERNAME", func(c *Config) *string { return &c.MQTT.Auth.Username }},
	{"LCDCANVAS_MQTT_PASSWORD", func(c *Config) *string { return &c.MQTT.Auth.Password }},
	{"LCDCANVAS_API_HOST", func(c *Config) *string { return &c.API.Host }},
	{"LCDCANVAS_INFLUXDB_TOKEN", func(c *Config) *string { return &c.InfluxDB.Token }},
	{"LCDCANVAS_JWT_SECRET", func(c *Config) *string { return &c.Security.JWT.Secret }},
	{"LCDCANVAS_LOG_LEVEL", func(c *Config) *string { return &c.Logging.Level }},
	{"LCDCANVAS_RENDERER_COMMAND", func(c *Config) *string { return &c.Renderer.Command }},
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	for _, o := range envOverrides {
		if v := getenv(o.key); v != "" {
			*o.field(cfg) = v
		}
	}
}

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.Screens.Serial.Enabled && c.Screens.Serial.BaudRate <= 0 {
		errs = append(errs, "screens.serial.baud_rate must be positive")
	}

	if c.Screens.SPI.Enabled {
		if c.Screens.SPI.DC == "" {
			errs = append(errs, "screens.spi.dc_pin is required when the SPI screen is enabled")
		}
		if c.Screens.SPI.Width <= 0 || c.Screens.SPI.Height <= 0 {
			errs = append(errs, "screens.spi width and height must be positive")
		}
	}

	if c.Screens.Virtual.Width <= 0 || c.Screens.Virtual.Height <= 0 {
		errs = append(errs, "screens.virtual width and height must be positive")
	}

	if c.Display.ErrorLimit < 1 {
		errs = append(errs, "display.error_limit must be at least 1")
	}
	if c.Display.BrightnessAttempts < 1 {
		errs = append(errs, "display.brightness_attempts must be at least 1")
	}
	if c.Display.MinInterval < 0 || c.Display.TargetInterval < c.Display.MinInterval {
		errs = append(errs, "display.target_interval must be >= display.min_interval >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Seconds converts a seconds config value to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond config value to a Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
