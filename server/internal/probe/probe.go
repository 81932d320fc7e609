package probe

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/teamprofiles/server/internal/render"
)

// ServiceName is the name reported to health checkers.
const ServiceName = "teamprofiles.Display"

// Displayer produces the full listing.
type Displayer interface {
	Display(ctx context.Context) (render.View, error)
}

// Prober keeps a health.Server in step with the display service.
type Prober struct {
	svc      Displayer
	interval time.Duration
	timeout  time.Duration
	hs       *health.Server
}

// New creates a Prober checking svc every interval. The health server starts
// out NOT_SERVING for ServiceName until the first check passes.
func New(svc Displayer, interval time.Duration) *Prober {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	timeout := interval / 2
	if timeout <= 0 || timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	return &Prober{svc: svc, interval: interval, timeout: timeout, hs: hs}
}

// Server returns the health server to register on a grpc.Server.
func (p *Prober) Server() *health.Server { return p.hs }

// Check runs one probe and returns the status it set.
func (p *Prober) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if _, err := p.svc.Display(ctx); err != nil {
		slog.Warn("probe: display check failed", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.hs.SetServingStatus(ServiceName, st)
	p.hs.SetServingStatus("", st)
	return st
}

// Run checks immediately and then every interval until ctx is cancelled, when
// it marks every service NOT_SERVING.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.hs.Shutdown()
			return
		case <-t.C:
			p.Check(ctx)
		}
	}
}
