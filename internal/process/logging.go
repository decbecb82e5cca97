// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package process

import (
	"flag"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"tempora.dev/tempora/internal/cfgstruct"
)

var (
	logLevel = zap.LevelFlag("log.level", func() zapcore.Level {
		if isDev() {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	}(), "the minimum log level to log")
	logDev      = flag.Bool("log.development", isDev(), "if true, set logging to development mode")
	logCaller   = flag.Bool("log.caller", isDev(), "if true, log function filename and line number")
	logStack    = flag.Bool("log.stack", isDev(), "if true, log stack traces")
	logEncoding = flag.String("log.encoding", "console", "configures log encoding. can either be 'console' or 'json'")
	logOutput   = flag.String("log.output", "stderr", "can be stdout, stderr, or a filename")

	logRotateMaxSize    = flag.Int("log.rotate.max-size", 128, "maximum log file size in megabytes before rotation, when logging to a file")
	logRotateMaxBackups = flag.Int("log.rotate.max-backups", 10, "maximum number of rotated log files to retain")
)

func isDev() bool { return cfgstruct.DefaultsType() != cfgstruct.DefaultsRelease }

// NewLogger creates a new logger configured by the process flags.
func NewLogger() (*zap.Logger, error) {
	return NewLoggerWithOutputPath(*logOutput)
}

// NewLoggerWithOutputPath is the same as NewLogger, but overrides the log
// output path. File outputs rotate via lumberjack.
func NewLoggerWithOutputPath(output string) (*zap.Logger, error) {
	levelEncoder := zapcore.CapitalColorLevelEncoder
	if runtime.GOOS == "windows" || output != "stderr" && output != "stdout" {
		levelEncoder = zapcore.CapitalLevelEncoder
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if output != "stderr" && output != "stdout" {
		return newRotatingLogger(output, encoderConfig)
	}

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(*logLevel),
		Development:       *logDev,
		DisableCaller:     !*logCaller,
		DisableStacktrace: !*logStack,
		Encoding:          *logEncoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{output},
	}.Build()
}

func newRotatingLogger(path string, encoderConfig zapcore.EncoderConfig) (*zap.Logger, error) {
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    *logRotateMaxSize,
		MaxBackups: *logRotateMaxBackups,
		Compress:   true,
	})

	var encoder zapcore.Encoder
	if *logEncoding == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(*logLevel))
	options := []zap.Option{}
	if *logCaller {
		options = append(options, zap.AddCaller())
	}
	if *logStack {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(core, options...), nil
}
