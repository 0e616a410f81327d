// Package main provides the entry point for the Deriv binary-options
// trading engine: connect to the exchange, run the Pair Scanner and Trade
// Manager, and expose the operator HTTP surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dzakiart/derivengine/internal/api"
	"github.com/dzakiart/derivengine/internal/config"
	"github.com/dzakiart/derivengine/internal/engine"
	"github.com/dzakiart/derivengine/internal/entryfilter"
	"github.com/dzakiart/derivengine/internal/eventbus"
	"github.com/dzakiart/derivengine/internal/recovery"
	"github.com/dzakiart/derivengine/internal/scanner"
	"github.com/dzakiart/derivengine/internal/strategy"
	"github.com/dzakiart/derivengine/internal/tokenstore"
	"github.com/dzakiart/derivengine/internal/trademanager"
	"github.com/dzakiart/derivengine/internal/transport"
	"github.com/dzakiart/derivengine/pkg/domain"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	logLevel := flag.String("log-level", "", "Override log_level from config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting trading engine",
		zap.String("symbol", cfg.DefaultSymbol),
		zap.Bool("paperTrading", cfg.PaperTrading),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(logger)
	defer bus.Stop()

	tr := transport.New(transport.Config{
		Endpoint: cfg.Deriv.Endpoint,
		AppID:    cfg.Deriv.AppID,
	}, logger)

	token := resolveToken(cfg.Deriv.Token, cfg.TokenKeyEnv, logger)

	if err := tr.Connect(ctx, token, cfg.Deriv.FallbackToken); err != nil {
		logger.Fatal("exchange connect failed", zap.Error(err))
	}

	registry := strategy.NewRegistry(logger)
	strat, ok := registry.Create("deriv")
	if !ok {
		logger.Fatal("default strategy not registered")
	}

	recoveryStore := recovery.NewStore(logger, cfg.RecoveryDir+"/session.json")
	sym := domain.Symbols[cfg.DefaultSymbol]
	resume, restored := recoveryStore.Load(sym.MinStake, cfg.Martingale.MaxLevel)
	if restored {
		logger.Info("resuming persisted session", zap.String("symbol", resume.Symbol))
	}

	risk := trademanager.NewRiskManager(logger, cfg.Risk, resume.Risk)
	filter := entryfilter.New(logger)

	tm := trademanager.New(logger, tr, bus, strat, risk, recoveryStore, cfg.Martingale, filter, domain.RiskModeHighProbability, resume)
	if !restored {
		stake := cfg.DefaultStake
		tm.Configure(cfg.DefaultSymbol, stake, cfg.DefaultDuration, domain.DurationUnit(cfg.DefaultUnit), 0, decimal.Zero)
	}

	sc := scanner.New(logger, tr, registry)
	if err := sc.Start(ctx); err != nil {
		logger.Warn("pair scanner start degraded", zap.Error(err))
	}
	defer sc.Stop()

	eng := engine.New(logger, tm, sc, bus)
	server := api.NewServer(logger, eng, cfg.HTTPAddr)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("operator HTTP surface stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	tm.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Stop(shutdownCtx)
}

// resolveToken decrypts a tokenstore-sealed token (prefixed "enc:") using
// the passphrase in the tokenKeyEnv environment variable, or returns raw
// unchanged if it isn't sealed.
func resolveToken(raw, tokenKeyEnv string, logger *zap.Logger) string {
	const sealedPrefix = "enc:"
	if !strings.HasPrefix(raw, sealedPrefix) {
		return raw
	}

	passphrase := os.Getenv(tokenKeyEnv)
	if passphrase == "" {
		logger.Fatal("token is sealed but passphrase env var is unset", zap.String("env", tokenKeyEnv))
	}

	token, err := tokenstore.Open(strings.TrimPrefix(raw, sealedPrefix), passphrase)
	if err != nil {
		logger.Fatal("failed to decrypt sealed token", zap.Error(err))
	}
	return token
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
