package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the knobs for building a zap logger aligned with Google Cloud Logging expectations.
type Config struct {
	// Component identifies the emitting subsystem (e.g., "api-server", "cli").
	Component string
	// Level controls the minimum severity ("debug", "info", "warn", "error").
	Level string
	// EnvKey, when set, is attached to every entry so environments sharing a log sink stay separable.
	EnvKey string
	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel converts a textual level; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return l, err
	}
	return l, nil
}

// NewLogger builds a structured JSON logger whose severity and timestamp keys are the ones Cloud Logging ingests.
func NewLogger(cfg Config) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(lvl),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	var fields []zap.Field
	if cfg.Component != "" {
		fields = append(fields, zap.String("component", cfg.Component))
	}
	if cfg.EnvKey != "" {
		fields = append(fields, zap.String("env", cfg.EnvKey))
	}
	return logger.With(fields...), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    severityEncoder,
	}
}

var severities = map[zapcore.Level]string{
	zapcore.DebugLevel:  "DEBUG",
	zapcore.InfoLevel:   "INFO",
	zapcore.WarnLevel:   "WARNING",
	zapcore.ErrorLevel:  "ERROR",
	zapcore.DPanicLevel: "CRITICAL",
	zapcore.PanicLevel:  "ALERT",
	zapcore.FatalLevel:  "EMERGENCY",
}

func severityEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if s, ok := severities[l]; ok {
		enc.AppendString(s)
		return
	}
	enc.AppendString(strings.ToUpper(l.String()))
}
