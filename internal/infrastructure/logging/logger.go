package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

// serviceName is attached to every record.
const serviceName = "lcdcanvas"

// Logger is the slog.Logger shared by every lcdcanvas component. It owns
// the log file, if any.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger

	closer io.Closer
}

// New builds a Logger from the logging section of config.yaml. Every record
// carries service and version fields.
func New(cfg config.LoggingConfig, version string) *Logger {
	out, closer := openOutput(cfg)
	l := newWithWriter(out, cfg, version)
	l.closer = closer
	return l
}

func newWithWriter(out io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// openOutput picks the destination. Anything but stderr or file means
// stdout. Files rotate by size through lumberjack; sizes are megabytes and
// ages days.
func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		f := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		return f, f
	default:
		return os.Stdout, nil
	}
}

// parseLevel accepts the slog level names in any case plus "warning".
// Unknown or empty input means info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child Logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Component tags records with the subsystem that wrote them.
//
//	svc.SetLogger(log.Component("monitor"))
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Screen tags records with the panel driver that wrote them.
func (l *Logger) Screen(kind string) *Logger {
	return l.With("screen", kind)
}

// Close releases the log file. Stdout and stderr loggers ignore it.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the JSON stdout logger used until config.yaml is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
