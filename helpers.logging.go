package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LoggerContextKey ContextKey = "request.logger"
	megabyte                    = 1 << 20
)

var _ zapcore.WriteSyncer = (*RSyncWrite)(nil)

// RSyncWrite is a size rotated log file writer safe for concurrent use.
// A new file named after the current time is opened on the first write and
// each time the next entry would push the file over LogMaxSize megabytes.
type RSyncWrite struct {
	mu     sync.Mutex
	clock  Clocker
	folder string
	limit  int64
	isProd bool
	file   *os.File
	size   int64
}

func NewRSyncWriter(config *Config, clock Clocker) *RSyncWrite {
	return &RSyncWrite{
		clock:  clock,
		folder: config.LogFolder,
		limit:  int64(config.LogMaxSize) * megabyte,
		isProd: config.IsProduction,
	}
}

// rotate closes the current file if any and opens the next one.
func (rsw *RSyncWrite) rotate() error {
	if rsw.file != nil {
		if err := rsw.file.Close(); err != nil {
			return fmt.Errorf("logging: close %s: %w", rsw.file.Name(), err)
		}
		rsw.file = nil
	}
	path := CreateLogFilePath(rsw.folder, rsw.isProd, rsw.clock.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", path, err)
	}
	rsw.file, rsw.size = file, 0
	return nil
}

func (rsw *RSyncWrite) Write(p []byte) (int, error) {
	rsw.mu.Lock()
	defer rsw.mu.Unlock()
	if int64(len(p)) > rsw.limit {
		return 0, fmt.Errorf("logging: entry of %d bytes exceeds the %d bytes file limit", len(p), rsw.limit)
	}
	if rsw.file == nil || rsw.size+int64(len(p)) > rsw.limit {
		if err := rsw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rsw.file.Write(p)
	rsw.size += int64(n)
	return n, err
}

func (rsw *RSyncWrite) Sync() error {
	rsw.mu.Lock()
	defer rsw.mu.Unlock()
	if rsw.file == nil {
		return nil
	}
	return rsw.file.Sync()
}

func (rsw *RSyncWrite) Close() error {
	rsw.mu.Lock()
	defer rsw.mu.Unlock()
	if rsw.file == nil {
		return nil
	}
	err := rsw.file.Close()
	rsw.file = nil
	return err
}

// stdoutSyncer skips Sync on stdout, which fails on some terminals.
type stdoutSyncer struct{}

func (stdoutSyncer) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdoutSyncer) Sync() error                 { return nil }

func encoderConfig(isProd bool) zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	if isProd {
		ec = zap.NewProductionEncoderConfig()
	}
	ec.TimeKey = "ts"
	ec.LevelKey = "lvl"
	ec.NameKey = "name"
	ec.CallerKey = "caller"
	ec.MessageKey = "msg"
	ec.StacktraceKey = "skt"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

// SetupLogging builds the application logger. Entries go as json to w and,
// outside production, to stdout in console format too. Every entry carries
// the build details; stacktraces are kept for fatal entries only.
func SetupLogging(config *Config, w zapcore.WriteSyncer, clock TickerClocker) (*zap.Logger, func() error) {
	ec := encoderConfig(config.IsProduction)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(ec), w, config.LogLevel)
	if !config.IsProduction {
		console := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(stdoutSyncer{}), config.LogLevel)
		core = zapcore.NewTee(core, console)
	}

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel),
		zap.WithClock(clock),
		zap.Fields(
			zap.String("app.commit", config.GitCommit),
			zap.String("app.tag", config.GitTag),
			zap.String("app.built", config.BuildTime),
		),
	)

	flusher := func() error {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("[flush logs]: %w", err)
		}
		return nil
	}
	return logger, flusher
}

// GetLoggerFromContext returns the request scoped logger set by the core
// middleware, or the application logger outside of a request.
func (api *APIHandler) GetLoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*zap.Logger); ok {
		return logger
	}
	return api.logger
}

// CreateLogFilePath names a log file after t, e.g. 20230702.130405.000000006.prod.log.
func CreateLogFilePath(folder string, isProd bool, t time.Time) string {
	env := "dev"
	if isProd {
		env = "prod"
	}
	return filepath.Join(folder, t.Format("20060102.150405.000000000")+"."+env+".log")
}
