package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/osintlab/dronewatch/internal/classify"
	"github.com/osintlab/dronewatch/internal/collect"
	"github.com/osintlab/dronewatch/internal/config"
	"github.com/osintlab/dronewatch/internal/consolidate"
	"github.com/osintlab/dronewatch/internal/evidence"
	"github.com/osintlab/dronewatch/internal/geo"
	"github.com/osintlab/dronewatch/internal/logging"
	"github.com/osintlab/dronewatch/internal/pipeline"
	"github.com/osintlab/dronewatch/internal/plausibility"
	"github.com/osintlab/dronewatch/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run collection cycles on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := logging.Init(); err != nil {
			return err
		}
		defer logging.Close()

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics := pipeline.NewMetrics(reg)

		pipe := buildPipeline(cfg, st, metrics)
		collector := collect.NewCollector(cfg.Feeds)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Pipeline.MetricsAddr != "" {
			go serveMetrics(cfg.Pipeline.MetricsAddr, reg)
		}

		logging.Info("run loop starting", "interval", cfg.Pipeline.Interval)

		// Run one cycle immediately, then on the ticker.
		cycle(ctx, collector, pipe)

		ticker := time.NewTicker(cfg.Pipeline.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logging.Info("run loop stopping")
				return nil
			case <-ticker.C:
				cycle(ctx, collector, pipe)
			}
		}
	},
}

// cycle collects candidates and runs one pipeline pass. A failed cycle is
// logged and retried on the next tick; collectors re-supply candidates, so
// nothing is lost.
func cycle(ctx context.Context, collector *collect.Collector, pipe *pipeline.Pipeline) {
	candidates := collector.CollectAll(ctx)
	if len(candidates) == 0 {
		logging.Debug("no candidates this cycle")
		return
	}
	if _, err := pipe.Run(ctx, candidates); err != nil {
		logging.Error("cycle aborted", "err", err)
	}
}

// buildPipeline assembles the pipeline from config.
func buildPipeline(cfg *config.Config, st *store.Store, metrics *pipeline.Metrics) *pipeline.Pipeline {
	scope := geo.NewScopeFilter(cfg.Scope)
	plaus := plausibility.NewFilter(cfg.Plausibility)
	scorer := evidence.NewScorer(cfg.Evidence.QuotePatterns)
	keyer := consolidate.NewKeyer(cfg.Consolidation.GridPrecision, cfg.Consolidation.TimeBucket)
	engine := consolidate.NewEngine(keyer, scorer)

	var classifier classify.Classifier
	if cfg.Classifier.Endpoint != "" {
		classifier = classify.NewHTTPClassifier(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, cfg.Classifier.Timeout)
	}

	return pipeline.New(scope, plaus, classifier, engine, st,
		cfg.Pipeline.Workers, cfg.Pipeline.CycleTimeout,
		cfg.Classifier.BorderlineLow, metrics)
}

// serveMetrics exposes the prometheus registry over HTTP.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("metrics server stopped", "err", err)
	}
}
