package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OFISignal/internal/services/predictor"
	"OFISignal/internal/usecase"
	"OFISignal/pkg/config"
	xhttp "OFISignal/pkg/http"
	applogger "OFISignal/pkg/logger"
	"OFISignal/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	pred       *predictor.Predictor
	collector  *usecase.TickCollector
	queue      queue.Queue
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. q may be nil.
// Infrastructure clients are released by the caller after Run returns.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	pred *predictor.Predictor,
	collector *usecase.TickCollector,
	handler xhttp.Handler,
	q queue.Queue,
) *App {
	opts := []xhttp.ServerOption{
		xhttp.WithAddress(cfg.Server.Host, cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if !cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(""))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return &App{
		cfg:        cfg,
		log:        log,
		pred:       pred,
		collector:  collector,
		queue:      q,
		httpServer: xhttp.NewServer(handler, log, opts...),
	}
}

// Run starts the application and blocks until interrupted or until
// ingestion stops on its own.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.log.Error("batch queue start error", applogger.Error(err))
			return errors.Join(err, a.shutdown())
		}
	}

	if err := a.collector.Start(ctx); err != nil {
		a.log.Error("collector start error", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}
	a.log.Info("collector started",
		applogger.String("source", a.cfg.Ingest.Source),
		applogger.Float64("alpha", a.pred.Alpha()),
		applogger.Float64("threshold", a.pred.Threshold()),
		applogger.String("mode", a.pred.Mode().String()),
	)

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case <-a.collector.Done():
		a.log.Warn("ingestion stopped")
	}
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.log.Info("shutting down...")
	var errs []error

	// Stop collector (pipeline + stream)
	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.printStats()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("batch queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.pred.Close(); err != nil {
		a.log.Warn("accelerator release error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

// printStats writes the latency summary of the run to stdout.
func (a *App) printStats() {
	rep := a.collector.Processor().Stats().Report()
	for _, s := range []struct {
		name string
		sum  usecase.LatencySummary
	}{
		{"recv->decision_us", rep.RecvToDecisionUs},
		{"src->recv_us", rep.SrcToRecvUs},
	} {
		if s.sum.Count == 0 {
			continue
		}
		fmt.Fprintf(os.Stdout, "STAT %s %s\n", s.name, s.sum)
	}
}
