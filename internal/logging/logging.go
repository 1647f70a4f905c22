// Package logging holds the process-wide zap logger.
//
// The logger is a no-op until Initialize is called, so packages can take a
// component logger at construction time without caring whether the binary
// configured logging.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldComponent  = "component"
	FieldEngine     = "engine"
	FieldStatus     = "status"
	FieldError      = "error"
	FieldDurationMS = "duration_ms"
	FieldSize       = "size"
	FieldSource     = "source"
	FieldPath       = "path"
	FieldAddress    = "address"
	FieldClientID   = "client_id"
	FieldRemote     = "remote"
)

// Logger is the global sugared logger.
var Logger *zap.SugaredLogger

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize configures the global logger. jsonOutput selects the zap
// production JSON encoder; otherwise a console encoder writes to stderr.
func Initialize(jsonOutput bool, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	var zl *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.OutputPaths = []string{"stderr"}
		zl, err = cfg.Build()
		if err != nil {
			return errors.Wrap(err, "build json logger")
		}
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zl = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stderr),
			lvl,
		))
	}

	Logger = zl.Sugar()
	return nil
}

// ComponentLogger returns a named child of the global logger.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, errors.Wrapf(err, "invalid log level %q", level)
	}
	return lvl, nil
}
