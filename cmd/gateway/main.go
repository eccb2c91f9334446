package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wyldlands/wyldlands/internal/config"
	"github.com/wyldlands/wyldlands/internal/gateway"
	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/persistence"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
)

const defaultConfigPath = "config/gateway.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", defaultConfigPath, "path to gateway config YAML")
	envPath := flag.String("env", "", "path to a KEY=VALUE env file applied before config loading")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.LoadGateway(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("wyldlands gateway starting",
		"line_terminal", cfg.Listeners.LineTerminal.Addr,
		"framed", cfg.Listeners.Framed.Addr,
		"world_addr", cfg.RPC.WorldAddr)

	db, err := persistence.New(ctx, cfg.Persistence.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	slog.Info("database connected")

	if err := persistence.RunMigrations(ctx, cfg.Persistence.URL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")
	store := persistence.NewPostgresStore(db.Pool())

	netConn, err := net.Dial("tcp", cfg.RPC.WorldAddr)
	if err != nil {
		return fmt.Errorf("dialing world server at %s: %w", cfg.RPC.WorldAddr, err)
	}
	defer netConn.Close()

	// The Handlers map is filled in after gw exists, for the same
	// forward-reference reason as the world server's own wiring: gw
	// needs the rpcconn.Conn to build its gatewayrpc.Client, and the
	// dispatch table needs gw to answer World -> Gateway callbacks.
	handlers := make(map[string]rpcconn.HandlerFunc)
	rc := rpcconn.New(netConn, handlers)

	rpcClient := gatewayrpc.NewClient(rc, cfg.RPC.Duration())
	gw := gateway.New(cfg, rpcClient, store, slog.Default())
	for op, h := range gatewayrpc.HandlerTable(gw.Handlers()) {
		handlers[op] = h
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rc.Serve(gctx); err != nil {
			return fmt.Errorf("world rpc connection: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := gw.ServeLineTerminal(gctx, cfg.Listeners.LineTerminal.Addr); err != nil {
			return fmt.Errorf("line-terminal listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := gw.ServeFramed(gctx, cfg.Listeners.Framed.Addr); err != nil {
			return fmt.Errorf("framed listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := gw.ServeAdmin(gctx, cfg.Listeners.AdminHTTP.Addr); err != nil {
			return fmt.Errorf("admin listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		gw.RunReaper(gctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeoutDuration())
		defer cancel()
		gw.Shutdown(drainCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
