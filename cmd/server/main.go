package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/govm/internal/config"
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/internal/logging"
	"github.com/me/govm/internal/scheduler"
	"github.com/me/govm/internal/server"
	"github.com/me/govm/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file (units, limits, logging)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	journalPath := flag.String("journal", "", "SQLite journal path (overrides journal.path)")
	tickInterval := flag.Duration("tick", 0, "Tick interval (overrides scheduler.tick_interval)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	// Flags override file values.
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *journalPath != "" {
		cfg.Journal.Path = *journalPath
	}
	if *tickInterval > 0 {
		cfg.Scheduler.TickInterval = *tickInterval
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	// Create executor registry: one LocalExecutor per unit type.
	kernels := executor.NewKernels()
	reg := executor.NewRegistry(logger)
	for _, u := range cfg.Units {
		local := executor.NewLocalExecutor(u.Type, kernels, logger)
		defer local.Close()
		reg.Register(local)
	}

	var schedOpts []scheduler.Option
	serverOpts := []server.Option{server.WithExecutorRegistry(reg)}

	// Open the journal and run migrations.
	if cfg.Journal.Path != "" {
		st, err := store.NewSQLiteStore(cfg.Journal.Path, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.Migrate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate journal: %v\n", err)
			os.Exit(1)
		}
		logger.Info("journal ready", "path", cfg.Journal.Path, "buffer", cfg.Journal.Buffer)

		// Keep SQLite writes off the tick goroutine.
		var journal scheduler.Journal = st
		if cfg.Journal.Buffer > 0 {
			async := store.NewAsyncJournal(st, logger, cfg.Journal.Buffer)
			defer async.Close()
			journal = async
		}
		schedOpts = append(schedOpts, scheduler.WithJournal(journal))
		serverOpts = append(serverOpts, server.WithStore(st))
	}

	sched, err := scheduler.New(scheduler.Config{
		Units:               cfg.Units,
		MaxWaitingPerObject: cfg.Scheduler.MaxWaitingPerObject,
		MaxInbound:          cfg.Scheduler.MaxInbound,
	}, reg, logger, schedOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
	loop := scheduler.NewLoop(sched, scheduler.LoopConfig{TickInterval: cfg.Scheduler.TickInterval}, logger)

	srv := server.New(cfg.Server, loop, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start scheduler in background.
	srv.StartScheduler(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "units", cfg.TotalUnits())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop scheduler before HTTP server.
	if err := loop.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
