package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/config"
	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/fetch"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/httpapi"
	"github.com/alimutlu55/localchat-discovery/internal/hub"
	"github.com/alimutlu55/localchat-discovery/internal/livefeed"
	"github.com/alimutlu55/localchat-discovery/internal/logging"
	"github.com/alimutlu55/localchat-discovery/internal/persist/filecache"
	"github.com/alimutlu55/localchat-discovery/internal/persist/pgstore"
	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/store"
	"github.com/alimutlu55/localchat-discovery/internal/viewport"
	"github.com/alimutlu55/localchat-discovery/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen, logLevel string
	flags := pflag.NewFlagSet("localchat-discovery", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", os.Getenv("LOCALCHAT_CONFIG"), "path to the YAML config file")
	flags.StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	flags.StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persister, err := openPersister(ctx, cfg.Store)
	if err != nil {
		return err
	}
	st, err := store.New(ctx, store.Options{
		Logger:        log,
		Persister:     persister,
		PendingTTL:    cfg.Store.PendingTTL.D(),
		SweepInterval: cfg.Store.SweepInterval.D(),
	})
	if err != nil {
		_ = persister.Close()
		return fmt.Errorf("starting room store: %w", err)
	}

	svc, err := query.NewHTTPClient(cfg.Query.BaseURL, cfg.Query.Timeout.D(), log)
	if err != nil {
		return multierr.Append(err, st.Close())
	}
	fetcher := fetch.NewClient(svc, log)

	d := cfg.Discovery
	h := hub.NewHub(ctx, hub.Config{
		Store:    st,
		Fetcher:  fetcher,
		PageSize: d.PageSize,
		Logger:   log,
		View: discovery.Options{
			Logger:     log,
			Screen:     geo.Screen{Width: d.ScreenWidth, Height: d.ScreenHeight},
			MaxZoom:    d.MaxZoom,
			Thresholds: viewport.Thresholds{Zoom: d.ZoomThreshold, PanFraction: d.PanFraction},
		},
	})

	var rdb *redis.Client
	feedDone := make(chan struct{})
	if cfg.LiveFeed.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.LiveFeed.RedisAddr})
		src, err := livefeed.Subscribe(ctx, rdb, cfg.LiveFeed.Channel)
		if err != nil {
			h.Close()
			return multierr.Combine(fmt.Errorf("live feed: %w", err), rdb.Close(), st.Close())
		}
		go func() {
			defer close(feedDone)
			if err := livefeed.New(src, st, log).Run(ctx); err != nil {
				log.Warn("live feed stopped", zap.Error(err))
			}
		}()
	} else {
		close(feedDone)
	}

	srv := &http.Server{
		Addr: cfg.Server.Listen,
		Handler: httpapi.SetupRoutes(h, st, ws.Options{
			OriginPatterns: cfg.Server.AllowedOrigins,
			Logger:         log,
		}),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("store", string(cfg.Store.Backend)))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
	defer cancel()
	err = multierr.Append(err, srv.Shutdown(sctx))
	stop()
	h.Close()
	<-feedDone
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	return multierr.Append(err, st.Close())
}

func openPersister(ctx context.Context, cfg config.StoreConfig) (store.Persister, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return filecache.Open(cfg.Path)
	case config.BackendPostgres:
		return pgstore.Open(ctx, cfg.DSN)
	}
	return store.Memory{}, nil
}
