package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu        sync.RWMutex
	customLog = &Logger{s: zap.NewNop().Sugar()}
)

// Logger is a leveled logger carrying structured meta fields.
type Logger struct {
	s *zap.SugaredLogger
}

// InitLogger installs a console logger at the given level. Format is "plain" or "json".
func InitLogger(level, format string) error {
	cfg, err := loggerConfig(level, format)
	if err != nil {
		return err
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetLogger(l)
	return nil
}

// ResetLogger redirects all output into <home>/logs/<binary>.<pid>.log.
func ResetLogger(home, level, format string) error {
	if home == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		home = filepath.Join(osHome, ".feedkeeper")
	}

	dir := filepath.Join(home, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)

	cfg, err := loggerConfig(level, format)
	if err != nil {
		return err
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	Infof("From now on, all logs will be written to %s", path)
	SetLogger(l)

	return nil
}

// SetLogger replaces the process logger. Tests use it to install an observer core.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	customLog = &Logger{s: l.Sugar()}
}

// With returns a child of the process logger carrying keysAndValues on every entry.
func With(keysAndValues ...any) *Logger {
	return current().With(keysAndValues...)
}

// AddFields attaches keysAndValues to every later entry of the process logger.
func AddFields(keysAndValues ...any) {
	mu.Lock()
	defer mu.Unlock()

	customLog = customLog.With(keysAndValues...)
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Debugf(format string, v ...any) { l.s.Debugf(format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.s.Infof(format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.s.Warnf(format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.s.Errorf(format, v...) }

func Debugf(format string, v ...any) {
	current().s.Debugf(format, v...)
}

func Infof(format string, v ...any) {
	current().s.Infof(format, v...)
}

func Warnf(format string, v ...any) {
	current().s.Warnf(format, v...)
}

func Errorf(format string, v ...any) {
	current().s.Errorf(format, v...)
}

func Sync() {
	_ = current().s.Sync()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()

	return customLog
}

func loggerConfig(level, format string) (zap.Config, error) {
	var cfg zap.Config
	switch format {
	case "", "plain":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log format: %s", format)
	}

	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg, nil
}
