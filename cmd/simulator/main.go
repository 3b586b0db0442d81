// Command simulator runs a handover simulation from a JSON scenario file.
//
// It drives the network state ledger with a time controller, serves
// Prometheus metrics over HTTP, and stops cleanly on SIGINT/SIGTERM or
// when the configured duration elapses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/handover-simulator/core"
	"github.com/signalsfoundry/handover-simulator/internal/logging"
	"github.com/signalsfoundry/handover-simulator/internal/observability"
	"github.com/signalsfoundry/handover-simulator/internal/predictor"
	"github.com/signalsfoundry/handover-simulator/internal/sim/state"
	"github.com/signalsfoundry/handover-simulator/timectrl"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		scenarioPath = flag.String("scenario", "", "path to the JSON scenario file (required)")
		duration     = flag.Duration("duration", 0, "simulated time to run; 0 runs until interrupted")
		tickOverride = flag.Duration("tick", 0, "tick size override; 0 uses the scenario policy")
		accelerated  = flag.Bool("accelerated", false, "advance simulation time as fast as possible")
		metricsAddr  = flag.String("metrics-addr", ":9090", "listen address for /metrics; empty disables")
	)
	flag.Parse()

	if *scenarioPath == "" {
		flag.Usage()
		return errors.New("-scenario is required")
	}

	ctx, log := logging.WithRunLogger(context.Background(), logging.NewFromEnv())

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info(ctx, "serving metrics", logging.String("addr", *metricsAddr))
	}

	f, err := os.Open(*scenarioPath)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	scenario, err := core.LoadScenario(f)
	f.Close()
	if err != nil {
		return err
	}

	var client core.PredictorClient
	ledgerOpts := []state.LedgerOption{state.WithMetricsRecorder(collector)}
	if scenario.Policy.Mode != core.ModeRule {
		if scenario.PredictorURL == "" {
			return fmt.Errorf("mode %q needs a predictor_url in the scenario", scenario.Policy.Mode)
		}
		pc := predictor.NewClient(scenario.PredictorURL, log, predictor.WithObserver(collector))
		client = pc
		ledgerOpts = append(ledgerOpts, state.WithFeedbackSink(pc))
	}

	engine, err := core.NewDecisionEngine(scenario.Policy, client)
	if err != nil {
		return err
	}

	ledger, err := state.NewLedger(state.LedgerConfig{
		Cells:    scenario.Cells,
		Stations: scenario.Stations,
		Policy:   scenario.Policy,
		Engine:   engine,
	}, log, ledgerOpts...)
	if err != nil {
		return err
	}

	tick := scenario.Policy.TickSize
	if *tickOverride > 0 {
		tick = *tickOverride
	}
	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}

	tc := timectrl.NewTimeController(time.Now(), tick, mode)
	tc.AddListener(func(simTime time.Time) {
		ledger.Tick(ctx, simTime)
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info(ctx, "stopping on signal", logging.String("signal", sig.String()))
		tc.Stop()
	}()

	log.Info(ctx, "simulation started",
		logging.String("scenario", *scenarioPath),
		logging.Int("cells", len(scenario.Cells)),
		logging.Int("stations", len(scenario.Stations)),
		logging.String("mode", string(scenario.Policy.Mode)),
		logging.String("tick", tick.String()))

	<-tc.Start(*duration)

	events := ledger.Events()
	log.Info(ctx, "simulation finished",
		logging.Any("ticks", ledger.Ticks()),
		logging.Int("handovers", len(events)))
	return nil
}
