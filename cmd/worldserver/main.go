package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyldlands/wyldlands/internal/account"
	"github.com/wyldlands/wyldlands/internal/config"
	"github.com/wyldlands/wyldlands/internal/persistence"
	"github.com/wyldlands/wyldlands/internal/rpcconn"
	"github.com/wyldlands/wyldlands/internal/world"
	"github.com/wyldlands/wyldlands/internal/worldrpc"
)

const defaultConfigPath = "config/worldserver.yaml"

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
	configPath := flag.String("config", defaultConfigPath, "path to worldserver config YAML")
	envPath := flag.String("env", "", "path to a KEY=VALUE env file applied before config loading")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.LoadWorldServer(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("wyldlands worldserver starting", "listen_addr", cfg.RPC.ListenAddr)

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

	accounts := account.New(persistence.NewAccountStore(db.Pool()), cfg.AutoCreateAccounts)
	characters := persistence.NewCharacterStore(db.Pool())

	ln, err := net.Listen("tcp", cfg.RPC.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.RPC.ListenAddr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveGateway(gctx, ln, accounts, characters, cfg.RPCTimeoutDuration())
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// serveGateway accepts the single gateway RPC connection spec.md §5's
// process boundary assumes (one World per Gateway), builds the World
// Router bound to it, and serves until the connection drops or ctx is
// cancelled, then accepts the next one — a gateway restart gets a fresh
// Router, matching the gateway's own Session Registry starting empty on
// restart.
func serveGateway(ctx context.Context, ln net.Listener, accounts world.Authenticator, characters world.CharacterStore, rpcTTL time.Duration) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept error", "error", err)
			continue
		}
		slog.Info("gateway connected", "addr", conn.RemoteAddr().String())

		if err := serveOneGateway(ctx, conn, accounts, characters, rpcTTL); err != nil {
			slog.Warn("gateway connection ended", "error", err)
		}
	}
}

// serveOneGateway builds a fresh World Router bound to conn. The
// handlers map is created empty and handed to rpcconn.New before the
// Router that answers through it exists, then populated in place: maps
// are reference types, so this is safe as long as nothing reads it
// before Serve starts its read loop below.
func serveOneGateway(ctx context.Context, conn net.Conn, accounts world.Authenticator, characters world.CharacterStore, rpcTTL time.Duration) error {
	defer conn.Close()

	handlers := make(map[string]rpcconn.HandlerFunc)
	rc := rpcconn.New(conn, handlers)

	notify := worldrpc.NewClient(rc, rpcTTL)
	router := world.New(accounts, characters, notify, slog.Default())
	for op, h := range worldrpc.HandlerTable(router) {
		handlers[op] = h
	}

	return rc.Serve(ctx)
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
