// Command slotsync runs the sync core against a scheduling server: it loads
// the current week's window into the cache, subscribes to the push channels,
// and reconciles live events until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/slotsync/internal/config"
	"github.com/example/slotsync/internal/live"
	"github.com/example/slotsync/internal/logging"
	"github.com/example/slotsync/internal/metrics"
	"github.com/example/slotsync/internal/notify"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/syncer"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
	"github.com/example/slotsync/internal/undo"
)

func main() {
	logger := logging.Setup(os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadClient()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewCollector(prometheus.NewRegistry())
	client := transport.NewClient(cfg.ServerURL, cfg.WSURL, cfg.APIToken, logger)
	st := store.New(logger, recorder)
	ledger := undo.NewLedger(cfg.UndoLimit, recorder)
	pipeline := syncer.NewPipeline(st, client, ledger, notify.Slog(logger), time.Now, logger, recorder)

	window := timegrid.WeekOf(time.Now().UTC())
	if err := pipeline.LoadWindow(ctx, cfg.EmployeeID, window); err != nil {
		logger.Error("failed to load window", "error", err)
		os.Exit(1)
	}
	key := store.KeyFor(cfg.EmployeeID, window)
	if snapshot, ok := st.Slots.Read(key); ok {
		logger.Info("window loaded",
			"employee_id", cfg.EmployeeID,
			"start", key.Start,
			"end", key.End,
			"slots", snapshot.Len())
	}

	reconciler := live.NewReconciler(st, logger, recorder)
	reconciler.SetWindow(cfg.EmployeeID, window)

	slotEvents, stopSlots, err := client.Subscribe(ctx, transport.ChannelSlots)
	if err != nil {
		logger.Error("failed to subscribe to slot events", "error", err)
		os.Exit(1)
	}
	defer stopSlots()

	sessionEvents, stopSessions, err := client.Subscribe(ctx, transport.ChannelSessions)
	if err != nil {
		logger.Error("failed to subscribe to session events", "error", err)
		os.Exit(1)
	}
	defer stopSessions()

	logger.Info("reconciling live events", "server", cfg.ServerURL)
	reconciler.Run(ctx, slotEvents, sessionEvents)
}
