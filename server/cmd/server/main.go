package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/teamprofiles/server/internal/api"
	"github.com/obsidianstack/teamprofiles/server/internal/auth"
	"github.com/obsidianstack/teamprofiles/server/internal/cache"
	"github.com/obsidianstack/teamprofiles/server/internal/config"
	"github.com/obsidianstack/teamprofiles/server/internal/display"
	"github.com/obsidianstack/teamprofiles/server/internal/notify"
	"github.com/obsidianstack/teamprofiles/server/internal/probe"
	"github.com/obsidianstack/teamprofiles/server/internal/render"
	"github.com/obsidianstack/teamprofiles/server/internal/source"
	"github.com/obsidianstack/teamprofiles/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("teamprofiles-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"cache_backend", cfg.Server.Cache.Backend,
		"cache_ttl", cfg.Server.Cache.TTL,
		"source_type", cfg.Server.Source.Type,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Rendered-view cache with background purge of expired entries.
	c, err := newCache(ctx, cfg.Server.Cache)
	if err != nil {
		slog.Error("failed to open cache", "err", err)
		os.Exit(1)
	}

	src, err := source.New(cfg.Server.Source)
	if err != nil {
		slog.Error("failed to build content source", "err", err)
		os.Exit(1)
	}

	svc := display.New(c, src, render.New(renderOptions(cfg)), display.Options{
		Query:   source.QueryFromConfig(cfg.Server.Source),
		TTL:     cfg.Server.Cache.TTL,
		Metrics: display.NewMetrics(prometheus.DefaultRegisterer, "teamprofiles"),
	})

	notifier := notify.New(cfg.Server.Webhooks, nil)

	// Live preview hub: pushes the listing to connected editors.
	hub := ws.New(svc, cfg.Server.Stream.Interval)
	go hub.Run(ctx)

	// Content written to the profiles file takes effect immediately.
	if f, ok := src.(*source.File); ok {
		go func() {
			err := f.Watch(ctx, func() {
				keys, err := svc.Invalidate(ctx)
				if err != nil {
					slog.Error("content change: invalidate failed", "err", err)
					return
				}
				slog.Info("content changed, cache invalidated", "path", f.Path())
				notifier.Invalidated(keys, "content")
				hub.Refresh()
			})
			if err != nil {
				slog.Error("content watcher stopped", "err", err)
			}
		}()
	}

	// Render settings hot-reload; other settings need a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := svc.SetRenderer(ctx, render.New(renderOptions(next))); err != nil {
				slog.Error("config reload: invalidate failed", "err", err)
				return
			}
			slog.Info("config reloaded, render settings applied")
			hub.Refresh()
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// gRPC health service fed by a periodic display check.
	prober := probe.New(svc, cfg.Server.Probe.Interval)
	go prober.Run(ctx)

	interceptor := auth.APIKeyInterceptor(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	healthpb.RegisterHealthServer(grpcSrv, prober.Server())

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC health listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// Combined HTTP server: fragment, REST API, metrics and websocket hub.
	handler := api.New(svc, api.Options{Auth: cfg.Server.Auth, Notifier: notifier})
	httpMux := http.NewServeMux()
	httpMux.Handle("/team", handler)
	httpMux.Handle("/api/", handler)
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("teamprofiles-server shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	grpcSrv.GracefulStop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	notifier.Wait()
}

// newCache opens the configured cache backend and starts its purge loop.
func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "disk":
		d, err := cache.NewDisk(cfg.Dir)
		if err != nil {
			return nil, err
		}
		go d.Run(ctx, cfg.PurgeInterval)
		return d, nil
	default:
		m := cache.NewMemory()
		go m.Run(ctx, cfg.PurgeInterval)
		return m, nil
	}
}

func renderOptions(cfg *config.Config) render.Options {
	return render.Options{
		Heading:   cfg.Server.Render.Heading,
		Lead:      cfg.Server.Render.Lead,
		ThumbSize: cfg.Server.Render.ThumbSize,
	}
}
