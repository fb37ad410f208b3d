package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"vuload/internal/cli"
	"vuload/internal/httpx"
	"vuload/internal/lifecycle"
	"vuload/internal/logging"
	"vuload/internal/report"
	"vuload/internal/runner"
	"vuload/internal/scenario"
	"vuload/internal/stats"
	"vuload/internal/storage"
	"vuload/internal/threshold"
	"vuload/internal/tui"
	"vuload/internal/tui/live"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test plan",
	Example: `  vuload run --plan smoke
  vuload run --plan load --base-url http://staging:6565 --out results/load
  vuload run --plan stress --stage 30s:20 --stage 1m:20 --stage 30s:0 --tui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runLoad(ctx, viper.GetViper(), cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringP("plan", "p", "smoke", "plan to run (smoke, load, spike, stress)")
	f.StringP("base-url", "u", "http://localhost:6565", "base URL of the warehouse service")
	f.String("username", "admin", "login user for setup")
	f.String("password", "admin123", "login password for setup")
	f.StringSlice("stage", nil, "override the plan's stages, as duration:target (repeatable)")
	f.Duration("tick", runner.DefaultConfig().Tick, "scheduler reconciliation interval")
	f.Duration("graceful-stop", runner.DefaultConfig().GracefulStop, "how long to wait for running iterations at the end")
	f.Duration("timeout", 60*time.Second, "per request timeout")
	f.Float64("max-rps", 0, "cap on requests per second across all VUs (0 = no cap)")
	f.Uint64("seed", 0, "seed for VU random streams (0 = time based)")
	f.Int("product-types", 0, "product types to seed in setup (0 = plan default)")
	f.StringP("out", "o", "", "write <out>.json and <out>_checks.csv")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.Bool("tui", false, "show the live dashboard")

	for key, flag := range map[string]string{
		"plan":          "plan",
		"base_url":      "base-url",
		"username":      "username",
		"password":      "password",
		"stages":        "stage",
		"tick":          "tick",
		"graceful_stop": "graceful-stop",
		"timeout":       "timeout",
		"max_rps":       "max-rps",
		"seed":          "seed",
		"product_types": "product-types",
		"out":           "out",
		"metrics_addr":  "metrics-addr",
		"tui":           "tui",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

// runLoad executes one plan end to end. Configuration errors are returned
// before any VU starts; a completed run returns ErrThresholdsFailed when any
// threshold did not hold.
func runLoad(ctx context.Context, v *viper.Viper, out io.Writer) error {
	cfg, err := loadRunConfig(v)
	if err != nil {
		return err
	}
	plan, err := resolvePlan(cfg)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseAll(plan.Thresholds)
	if err != nil {
		return err
	}
	if err := threshold.Validate(thresholds, stats.BuiltinKinds()); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	var observers []stats.Observer
	if cfg.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		obs, err := stats.NewPromObserver(promReg)
		if err != nil {
			return err
		}
		observers = append(observers, obs)

		metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
		defer stopMetrics()
		if err := serveMetrics(metricsCtx, cfg.MetricsAddr, promReg, log); err != nil {
			return err
		}
	}
	metrics := stats.NewRegistry(observers...)

	client := httpx.NewClient(cfg.BaseURL, httpx.Config{Timeout: cfg.Timeout, MaxRPS: cfg.MaxRPS}, metrics)
	payloads := scenario.DefaultPayloads()
	fixtures := &scenario.Fixtures{
		Client:       client,
		Payloads:     payloads,
		Username:     cfg.Username,
		Password:     cfg.Password,
		ProductTypes: plan.SeedProductTypes,
		Log:          log,
	}

	sched, err := runner.NewScheduler(plan.Stages, runner.Config{
		Tick:         cfg.Tick,
		GracefulStop: cfg.GracefulStop,
		Seed:         cfg.Seed,
	}, metrics, log)
	if err != nil {
		return err
	}
	ctrl := lifecycle.New(lifecycle.Hooks[*scenario.RunContext]{
		Setup:    fixtures.Setup,
		Teardown: fixtures.Teardown,
	}, metrics, thresholds, log)

	main := func(ctx context.Context, rc *scenario.RunContext) runner.Summary {
		return sched.Run(ctx, plan.Body(rc, client, metrics, payloads))
	}

	meta := report.Meta{RunID: storage.NewID(time.Now()), Plan: plan.Name, BaseURL: cfg.BaseURL}
	log.Info("Starting run",
		zap.String("run_id", meta.RunID),
		zap.String("plan", plan.Name),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("duration", plan.Stages.Total()),
		zap.Int("max_vus", plan.Stages.MaxTarget()),
	)

	var res *lifecycle.Result
	if cfg.TUI {
		res, err = runWithTUI(ctx, meta, sched, ctrl, metrics, main)
	} else {
		cli.PrintHeader(out, cli.Header{
			Plan:       plan.Name,
			BaseURL:    cfg.BaseURL,
			Profile:    plan.Stages,
			Thresholds: plan.Thresholds,
			MaxRPS:     cfg.MaxRPS,
		})
		res, err = runHeadless(ctx, out, sched, ctrl, metrics, main)
	}
	if err != nil {
		return err
	}

	summary := report.Build(res, meta)
	if err := report.WriteText(out, summary); err != nil {
		return err
	}
	if cfg.Out != "" {
		files, err := report.Export(summary, cfg.Out)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(out, "\n💾 Reports saved to %v\n", files)
	}
	saveHistory(cfg.History, summary, log)

	if !summary.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

func runHeadless(ctx context.Context, out io.Writer, sched *runner.Scheduler, ctrl *lifecycle.Controller[*scenario.RunContext], metrics *stats.Registry, main lifecycle.MainFunc[*scenario.RunContext]) (*lifecycle.Result, error) {
	progress := cli.NewProgress(out, metrics)
	sched.OnTick(progress.Tick)
	ctrl.OnState(func(s lifecycle.State) { progress.SetState(s.String()) })

	res, err := ctrl.Run(ctx, main)
	progress.Done()
	return res, err
}

func runWithTUI(ctx context.Context, meta report.Meta, sched *runner.Scheduler, ctrl *lifecycle.Controller[*scenario.RunContext], metrics *stats.Registry, main lifecycle.MainFunc[*scenario.RunContext]) (*lifecycle.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewModel(meta.Plan, meta.BaseURL, cancel), tea.WithAltScreen())
	sched.OnTick(func(t runner.Tick) {
		p.Send(live.UpdateMsg{Tick: t, Snapshot: metrics.Snapshot(), At: time.Now()})
	})
	ctrl.OnState(func(s lifecycle.State) { p.Send(live.StateMsg(s.String())) })

	var (
		res    *lifecycle.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = ctrl.Run(ctx, main)
		p.Send(tui.DoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return res, errors.Join(fmt.Errorf("dashboard: %w", err), runErr)
	}
	<-done
	return res, runErr
}

// serveMetrics exposes reg on addr until ctx is done. Listening happens
// before it returns so a taken port is a configuration error.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

func saveHistory(setting string, s *report.Summary, log *zap.Logger) {
	path, err := historyPath(setting)
	if err != nil {
		log.Warn("History disabled", zap.Error(err))
		return
	}
	if path == "" {
		return
	}
	store, err := storage.Open(path)
	if err != nil {
		log.Warn("Could not open history", zap.String("path", path), zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Save(s.Record()); err != nil {
		log.Warn("Could not save run", zap.Error(err))
	}
}
