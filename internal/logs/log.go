package logs

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log   *zap.Logger
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	var err error
	log, err = build(LogConfig{}.Default())
	if err != nil {
		panic(err)
	}
}

// GetLogger returns the process wide logger.
func GetLogger() *zap.Logger {
	return log
}

func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

type LogConfig struct {
	Level       string   `yaml:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
	Encoding    string   `yaml:"encoding" validate:"oneof=console json"`
	OutputPaths []string `yaml:"outputPaths" validate:"min=1"`
}

func (c LogConfig) Default() *LogConfig {
	return &LogConfig{
		Level:       "info",
		Encoding:    "console",
		OutputPaths: []string{"stdout"},
	}
}

// ReplaceLogger swaps the process wide logger. Call it once, at startup, before any goroutine logs.
func ReplaceLogger(conf *LogConfig) error {
	newLog, err := build(conf)
	if err != nil {
		return err
	}
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		return errors.Wrapf(err, "failed to parse log level '%s'", conf.Level)
	}
	log = newLog
	return nil
}

func build(conf *LogConfig) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	switch conf.Encoding {
	case "json":
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, errors.Errorf("unknown log encoding '%s'", conf.Encoding)
	}

	ws, _, err := zap.Open(conf.OutputPaths...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log outputs %v", conf.OutputPaths)
	}
	return zap.New(zapcore.NewCore(encoder, ws, level)), nil
}
