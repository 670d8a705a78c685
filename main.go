package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/server"
	"parley/internal/storage"
)

func run(ctx context.Context) error {
	configName := flag.String("config", "parley", "Config file name without extension, looked up in the working directory")
	flag.Parse()

	bootLog := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load(bootLog, *configName)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	store, err := storage.NewStore(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	dir := chat.NewDirectory()
	if err := store.LoadDirectory(dir); err != nil {
		logger.Warn("could not load saved state, starting empty", slog.Any("error", err))
	}
	users, channels := dir.Counts()
	logger.Info("directory ready", slog.Int("users", users), slog.Int("channels", channels))

	manager := server.NewManager(logger, dir)
	notifier := server.NewNotifier(logger, dir, manager)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	logger.Info("listening", slog.String("addr", cfg.ListenAddr))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Serve(gCtx, ln)
	})

	if cfg.WSListenAddr != "" {
		logger.Info("listening", slog.String("addr", cfg.WSListenAddr), slog.String("transport", "ws"))
		g.Go(func() error {
			return manager.ServeWS(gCtx, cfg.WSListenAddr)
		})
	}

	g.Go(func() error {
		return notifier.Run(gCtx)
	})

	if cfg.SaveInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.SaveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := store.SaveDirectory(dir); err != nil {
						logger.Error("periodic save failed", slog.Any("error", err))
					}
				case <-gCtx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		manager.CloseAll()
		if err := store.SaveDirectory(dir); err != nil {
			logger.Error("final save failed", slog.Any("error", err))
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
