package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lichka/internal/api"
	"lichka/internal/auth"
	"lichka/internal/block"
	"lichka/internal/chat"
	"lichka/internal/commands"
	"lichka/internal/config"
	"lichka/internal/delivery"
	"lichka/internal/http"
	"lichka/internal/metrics"
	"lichka/internal/notify"
	"lichka/internal/presence"
	"lichka/internal/storage"
	"lichka/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("lichka", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Username to create (prints the user id and a session token)")
	displayName := flags.String("display-name", "", "Display name for -add-user")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, *displayName, cfg, os.Stdout)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	g, gCtx := errgroup.WithContext(ctx)

	sessions, err := auth.NewSessions(gCtx, auth.Config{TokenExpiry: cfg.SessionTTL})
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	registry := presence.NewRegistry()
	broadcaster := delivery.NewBroadcaster(registry, cfg.EventBuffer, m)

	var notifier chat.OfflineNotifier
	if cfg.PushEnabled() {
		notifier = notify.NewWebPush(notify.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
		}, bbStorage)
	}

	chatService := chat.New(chat.Config{
		Store:            bbStorage,
		Blocks:           block.NewGate(bbStorage),
		Presence:         registry,
		Events:           broadcaster,
		Notifier:         notifier,
		Metrics:          m,
		EditWindow:       cfg.EditWindow,
		MaxMessageLength: cfg.MaxMessageLength,
	})

	hub := ws.NewHub(ws.HubConfig{
		Registry:         registry,
		Events:           broadcaster,
		Chat:             chatService,
		Users:            bbStorage,
		Metrics:          m,
		ConnectionBuffer: cfg.ConnectionBuffer,
	})

	wsServer := ws.NewServer(gCtx, sessions, hub, cfg.BaseURL)
	apiServer := http.NewAPIServer(api.New(chatService, sessions), wsServer, cfg.APIAddr)
	adminServer := http.NewAdminServer(api.NewAdminHandler(bbStorage, sessions), promRegistry, cfg.AdminAddr)

	g.Go(func() error {
		return broadcaster.Run(gCtx)
	})

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
