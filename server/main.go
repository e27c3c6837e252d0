package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"lobsim/bots"
	"lobsim/config"
	"lobsim/engine"
	"lobsim/logging"
)

const (
	seedSpread = 0.001
	seedQty    = 100
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	book := engine.New(cfg.EngineConfig(logger.Named("engine"), engine.NewMetrics(reg)))
	m := engine.NewMatcher(book, cfg.Server.StreamBuffer)
	defer m.Stop()

	if err := seedBook(m, cfg.Server.SeedPrice); err != nil {
		return fmt.Errorf("seed book: %w", err)
	}

	srv := newServer(m, reg, cfg.Server, logger)
	go srv.runLiquidity(ctx, cfg.Server.LiquidityTick, cfg.Engine.LiquidityInterval)
	if cfg.Server.Bots {
		sup := bots.NewSupervisor(m, cfg.Server.BotInterval, cfg.Engine.Seed, logger.Named("bots"))
		go sup.Start(ctx, srv.botTrades)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("bots", cfg.Server.Bots))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// seedBook rests one quote on each side of price so the bots have a mid to
// trade around. The quotes are placed directly so simulated cancellation
// cannot drop them.
func seedBook(m *engine.Matcher, price float64) error {
	if price <= 0 {
		return nil
	}
	if err := m.Place(engine.NewTick(0, "seed-bid", engine.Bid, seedQty, price*(1-seedSpread))); err != nil {
		return err
	}
	if err := m.Place(engine.NewTick(0, "seed-ask", engine.Ask, seedQty, price*(1+seedSpread))); err != nil {
		return err
	}
	if _, ok := m.MidPrice(); !ok {
		return errors.New("seeded book has no mid price")
	}
	return nil
}
