package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parishnet.org/internal/audit"
	"parishnet.org/internal/auth"
	"parishnet.org/internal/community"
	"parishnet.org/internal/feed"
	"parishnet.org/internal/httpapi"
	"parishnet.org/internal/obs"
	"parishnet.org/internal/store/pg"
)

// version is stamped at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := os.Getenv("PARISHNET_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	dsn := os.Getenv("PARISHNET_PG_DSN")
	if dsn == "" {
		obs.Warn("PARISHNET_PG_DSN is not set", nil)
		os.Exit(1)
	}

	store, err := pg.Open(dsn)
	if err != nil {
		obs.Warn("open database", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer store.Close()

	prayerGauge := obs.FeedSubscriberGauge("prayers")
	testimonyGauge := obs.FeedSubscriberGauge("testimonies")
	prayerBus := feed.New("prayers", 30*time.Second,
		feed.WithSubscriberHooks(prayerGauge.Inc, prayerGauge.Dec))
	testimonyBus := feed.New("testimonies", 60*time.Second,
		feed.WithSubscriberHooks(testimonyGauge.Inc, testimonyGauge.Dec))
	defer prayerBus.Close()
	defer testimonyBus.Close()

	authSvc, err := auth.NewService(store)
	if err != nil {
		obs.Warn("init auth service", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	auditLog, err := audit.NewLogger(store)
	if err != nil {
		obs.Warn("init audit logger", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	communitySvc, err := community.NewService(store, prayerBus, testimonyBus)
	if err != nil {
		obs.Warn("init community service", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := community.NewSweeper(store, time.Hour)
	go sweeper.Run(ctx)

	api := httpapi.New(authSvc, auditLog, communitySvc, prayerBus, testimonyBus,
		httpapi.ReadyProbe{DB: store.DB()}, version)

	// No WriteTimeout: SSE connections stay open until the client leaves.
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogRequest(map[string]any{
			"event":   "listening",
			"addr":    addr,
			"version": version,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Warn("server error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Warn("shutdown", map[string]any{"error": err.Error()})
	}
	obs.LogRequest(map[string]any{"event": "stopped"})
}
