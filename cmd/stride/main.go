package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/stride/internal/config"
	"github.com/san-kum/stride/internal/logging"
	"github.com/san-kum/stride/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataDir     string
	configFile  string
	preset      string
	logLevel    string
	development bool
	metricsAddr string

	duration   float64
	integrator string
	noSave     bool
	frameRate  int
	workers    int
	output     string

	tuneParams []string
	objective  string
	maximize   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "stride",
		Short:        "biped balance and walking controller lab",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return tui.RunInteractive(cfg)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".stride", "data directory")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "start from a named preset")
	pf.StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	pf.BoolVar(&development, "dev", false, "development logging")

	runCmd := &cobra.Command{
		Use:   "run [scenario|file.yaml]",
		Short: "run a scenario and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address during the run")

	liveCmd := &cobra.Command{
		Use:   "live [scenario|file.yaml]",
		Short: "run a scenario with a live stance view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")

	toeOffCmd := &cobra.Command{
		Use:   "toeoff [scenario|file.yaml]",
		Short: "run a scenario and report every toe-off check",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToeOff,
	}
	addRunFlags(toeOffCmd)

	compareCmd := &cobra.Command{
		Use:   "compare [scenario] [integrator...]",
		Short: "run a scenario under several integrators in parallel",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	compareCmd.Flags().Float64Var(&duration, "time", 0, "duration (0 uses the scenario's)")
	compareCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (0 runs all at once)")

	tuneCmd := &cobra.Command{
		Use:   "tune [scenario]",
		Short: "grid search controller gains",
		Args:  cobra.ExactArgs(1),
		RunE:  tuneGains,
	}
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&objective, "objective", "icp_rms", "metric to optimize")
	tuneCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize the objective")
	tuneCmd.Flags().IntVar(&workers, "workers", 4, "parallel runs")
	tuneCmd.Flags().Float64Var(&duration, "time", 0, "duration (0 uses the scenario's)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark the control tick",
		Args:  cobra.NoArgs,
		RunE:  benchTick,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "sway and frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run ticks to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and ticks to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "list built-in scenarios",
		RunE:  listScenarios,
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "interactive scenario monitor",
		RunE:  rootCmd.RunE,
	}

	rootCmd.AddCommand(runCmd, liveCmd, toeOffCmd, compareCmd, tuneCmd, benchCmd, listCmd, plotCmd,
		analyzeCmd, exportCmd, exportCSVCmd, exportJSONCmd, presetsCmd, scenariosCmd, tuiCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "time", 0, "duration (0 uses the scenario's)")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator (overrides config)")
}

// loadConfig resolves the preset, then the config file, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if f := cmd.Flags().Lookup("integrator"); f != nil && f.Changed {
		cfg.Integrator = integrator
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if development {
		cfg.Log.Development = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

// newRegistry returns a registry with the process collectors and, when
// addr is set, serves it over HTTP until ctx ends.
func newRegistry(ctx context.Context, addr string, logger *zap.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if addr == "" {
		return reg
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	context.AfterFunc(ctx, func() { _ = srv.Close() })
	logger.Info("serving metrics", zap.String("addr", addr))
	return reg
}

// parseParam parses name=v1,v2,...
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("bad --param %q, want name=v1,v2", s)
	}
	var vals []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad --param %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
