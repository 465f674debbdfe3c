// Package daemon owns the bidding process lifecycle: it opens the store
// (an explicit connection handle, never global state), starts the optional
// metrics listener, runs the bid loop in the foreground, and closes the store
// on graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/internal/bidder"
	"github.com/dereadi/ganuda-ai-sub006/internal/identity"
	"github.com/dereadi/ganuda-ai-sub006/internal/otel"
	"github.com/dereadi/ganuda-ai-sub006/internal/store"
	"github.com/dereadi/ganuda-ai-sub006/internal/store/postgres"
)

// OpenStore opens the configured store backend.
func OpenStore(opts StartOptions) (store.Store, error) {
	switch opts.Config.DBDriver {
	case "postgres":
		return postgres.Open(opts.Config.DBURL)
	case "", "sqlite":
		return store.Open(opts.Config.Home)
	default:
		return nil, errors.New("unknown db driver: " + opts.Config.DBDriver)
	}
}

// StartForeground runs the bidding agent until ctx is cancelled.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if err := identity.Validate(opts.AgentID, opts.NodeName); err != nil {
		return err
	}
	if _, err := identity.Register(opts.Config.Home, opts.AgentID, opts.NodeName); err != nil {
		slog.Warn("identity file not written", "err", err)
	}

	st, err := OpenStore(opts)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	startPprof(opts.Config.PprofAddr)

	agent := bidder.New(st, opts.AgentID, opts.NodeName)
	agent.PollInterval = opts.Config.PollInterval
	agent.HeartbeatInterval = opts.Config.HeartbeatInterval
	agent.OpenTaskLimit = opts.Config.OpenTaskLimit

	var metricsSrv *http.Server
	if opts.Config.MetricsAddr != "" {
		handler, err := otel.InitMeterProvider(ctx, "jrbid")
		if err != nil {
			slog.Warn("metrics init failed, continuing without metrics", "err", err)
		} else {
			_ = otel.InitMetricsWithAssignedGauge(ctx, opts.AgentID, func() int64 {
				n, err := st.CountAssignedTasks(context.Background(), opts.AgentID)
				if err != nil {
					return 0
				}
				return int64(n)
			})
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			metricsSrv = &http.Server{Addr: opts.Config.MetricsAddr, Handler: mux}
			go func() {
				slog.Info("metrics listening", "addr", opts.Config.MetricsAddr)
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Warn("metrics server stopped", "err", err)
				}
			}()
		}
	}

	slog.Info("daemon starting", "agent_id", opts.AgentID, "node", opts.NodeName, "db_driver", opts.Config.DBDriver)
	agent.Run(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
