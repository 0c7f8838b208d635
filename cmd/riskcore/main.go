package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unifex/riskcore/internal/api"
	"github.com/unifex/riskcore/internal/circuit"
	"github.com/unifex/riskcore/internal/config"
	"github.com/unifex/riskcore/internal/execution"
	"github.com/unifex/riskcore/internal/feed"
	"github.com/unifex/riskcore/internal/market"
	"github.com/unifex/riskcore/internal/monitor"
	"github.com/unifex/riskcore/internal/risk"
	"github.com/unifex/riskcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store := feed.NewStore()

	history := market.NewHistory(cfg.Market.HistorySize)
	detector := market.NewDetector(market.DetectorConfig{
		PriceSpikeThreshold:       cfg.Market.PriceSpikeThreshold,
		VolumeSpikeThreshold:      cfg.Market.VolumeSpikeThreshold,
		SpreadThreshold:           cfg.Market.SpreadThreshold,
		StaleAfter:                cfg.Market.StaleAfter,
		CorrelationBreakThreshold: cfg.Market.CorrelationBreakThreshold,
	}, history, log)

	breaker := circuit.New(circuit.Config{
		RecoveryDuration:  cfg.Circuit.RecoveryDuration,
		CorrelatedSymbols: cfg.Circuit.CorrelatedSymbols,
	}, detector, log)

	engine := risk.NewEngine(risk.Config{
		AnnualVolatility:  cfg.Risk.AnnualVolatility,
		DefaultMarginRate: cfg.Risk.DefaultMarginRate,
		OptionMarginRate:  cfg.Risk.OptionMarginRate,
		WarningRatio:      cfg.Risk.WarningRatio,
		LiquidationRatio:  cfg.Risk.LiquidationRatio,
		DrawdownWindow:    cfg.Risk.DrawdownWindow,
	}, store, store, log)

	router := execution.NewRouter(store, log)
	guard := execution.NewSlippageGuard(execution.GuardConfig{
		MaxSlippagePercent: cfg.Execution.MaxSlippagePercent,
		TimeLimit:          cfg.Execution.TimeLimit,
		PollInterval:       cfg.Execution.PollInterval,
	}, store, log)

	pairs := cfg.MarketPairs()
	mon := monitor.New(cfg.Monitor.Interval, store, breaker, detector, pairs, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon.Start(ctx)
	defer mon.Stop()

	server := api.NewServer(log, breaker, engine, router, guard, detector, pairs, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("api server exited", zap.Error(err))
	}
}
