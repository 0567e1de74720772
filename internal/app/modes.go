package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mevshield/mevwatch/internal/server"
	"github.com/mevshield/mevwatch/internal/server/handler"
	"github.com/mevshield/mevwatch/internal/server/ws"
)

// serverShutdownTimeout bounds the graceful drain of in-flight requests.
const serverShutdownTimeout = 10 * time.Second

// AnalyzeMode runs the analysis loop with no external API surface. Alerts
// still flow to the configured channels.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Engine.Run(ctx) })
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the HTTP and WebSocket API without driving analysis
// cycles. External alert ingestion, statistics, and history queries stay
// available, so a fleet can run dedicated API nodes next to analyzers.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the analysis loop and the API surface in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Engine.Run(ctx) })
	a.startServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startServer registers the HTTP server and, when a signal bus is available,
// the WebSocket hub on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error { return hub.Run(ctx) })
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, deps.HealthChecks, a.logger),
		Stats:         handler.NewStatsHandler(deps.Engine, a.logger),
		Alerts:        handler.NewAlertsHandler(deps.Engine, a.logger),
		Opportunities: handler.NewOpportunitiesHandler(deps.Ledger, deps.Store, a.logger),
	}
	if deps.Blobs != nil {
		handlers.Archives = handler.NewArchivesHandler(deps.Blobs, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// startArchiver schedules the cold-storage archival loop when configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration
	g.Go(func() error { return deps.Archiver.Run(ctx, interval, retention) })
}
