package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stride/internal/analysis"
	"github.com/san-kum/stride/internal/integrators"
	"github.com/san-kum/stride/internal/optim"
	"github.com/san-kum/stride/internal/scenario"
	"github.com/san-kum/stride/internal/sim"
	"github.com/san-kum/stride/internal/storage"
	"github.com/san-kum/stride/internal/tui"
	"github.com/san-kum/stride/internal/walking"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// failureLog records the first controller failure of a run.
type failureLog struct {
	logger *zap.Logger
	err    error
}

func (f *failureLog) ControllerFailed(err error) {
	f.err = err
	f.logger.Warn("controller reported failure, stopping run", zap.Error(err))
}

func scenarioArg(args []string) (*scenario.Scenario, error) {
	ref := "stand"
	if len(args) > 0 {
		ref = args[0]
	}
	sc, err := scenario.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w (built-in: %v)", err, scenario.List())
	}
	if duration > 0 {
		sc.Duration = duration
	}
	return sc, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenarioArg(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg := newRegistry(ctx, metricsAddr, logger)
	failures := &failureLog{logger: logger}

	logger.Info("running scenario",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("integrator", cfg.Integrator))
	start := time.Now()
	out, runErr := scenario.Run(ctx, cfg, sc, scenario.Options{
		Logger:     logger,
		Registry:   reg,
		Supervisor: failures,
	})
	if out == nil {
		return runErr
	}
	elapsed := time.Since(start)

	steps := 0
	if out.Result != nil {
		steps = out.Result.StepsTaken
	}
	meta := storage.RunMetadata{
		Scenario:   sc.Name,
		Dt:         cfg.Controller.Dt,
		Duration:   sc.NominalDuration(cfg.Controller.Generator.FinalTransferDuration),
		Integrator: cfg.Integrator,
		Steps:      steps,
		Metrics:    out.Metrics,
	}
	switch {
	case failures.err != nil:
		meta.Failure = failures.err.Error()
	case runErr != nil:
		meta.Failure = runErr.Error()
	}

	fmt.Printf("completed in %v\n", elapsed)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(meta, cfg, storage.FromTicks(out.Ticks))
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	fmt.Printf("ticks: %d\n", steps)
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(out.Metrics) {
		fmt.Printf("  %s: %.6f\n", name, out.Metrics[name])
	}
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sc, err := scenarioArg(args)
	if err != nil {
		return err
	}

	h, err := scenario.Build(cfg, sc, scenario.Options{Logger: logger})
	if err != nil {
		return err
	}
	renderer := tui.NewLiveRenderer(os.Stdout, sc.Name, frameRate, h.Controller.Contacts)
	h.Loop.OnTick(renderer.OnTick)
	renderer.Start()
	defer renderer.Stop()

	_, err = h.Run(cmd.Context())
	return err
}

func runToeOff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"walk"}
	}
	sc, err := scenarioArg(args)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSAFE\tSTRIDE\tFWD_HEEL\tLAT_INSIDE\tFROM_TOE\tICP_ERR")
	checks, safe := 0, 0
	_, err = scenario.Run(cmd.Context(), cfg, sc, scenario.Options{
		OnTick: func(res walking.TickResult) {
			if res.ToeOff == nil {
				return
			}
			checks++
			r := res.ToeOff
			if r.Safe {
				safe++
			}
			fmt.Fprintf(w, "%.3f\t%t\t%.3f\t%.4f\t%.4f\t%.4f\t%.4f\n", res.Time, r.Safe, r.Stride,
				r.Margins.ForwardFromHeel, r.Margins.LateralInside, r.Margins.DistanceFromToe, r.Margins.NormalizedICPError)
		},
	})
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	fmt.Printf("\n%d checks, %d safe\n", checks, safe)
	return err
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := scenarioArg(args[:1])
	if err != nil {
		return err
	}

	names := args[1:]
	harnesses := make([]*scenario.Harness, len(names))
	jobs := make([]sim.Job, len(names))
	for i, name := range names {
		if _, ok := integrators.ByName(name); !ok {
			return fmt.Errorf("unknown integrator: %s", name)
		}
		cfg := *base
		cfg.Integrator = name
		h, err := scenario.Build(&cfg, sc, scenario.Options{})
		if err != nil {
			return err
		}
		harnesses[i] = h
		jobs[i] = sim.Job{
			Name:   name,
			Build:  func() (*sim.Simulator, sim.State, error) { return h.Simulator, h.X0, nil },
			Config: h.SimConfig,
		}
	}

	start := time.Now()
	results := sim.RunBatch(cmd.Context(), jobs, workers)
	fmt.Printf("%s: %d integrators in %v\n\n", sc.Name, len(names), time.Since(start))

	metricNames := sortedKeys(harnesses[0].Metrics())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "INTEGRATOR\tTICKS")
	for _, m := range metricNames {
		fmt.Fprintf(w, "\t%s", m)
	}
	fmt.Fprintln(w, "\tERROR")
	for i, r := range results {
		ticks := 0
		if r.Result != nil {
			ticks = r.Result.StepsTaken
		}
		fmt.Fprintf(w, "%s\t%d", r.Name, ticks)
		vals := harnesses[i].Metrics()
		for _, m := range metricNames {
			fmt.Fprintf(w, "\t%.5f", vals[m])
		}
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "\t%s\n", errText)
	}
	return w.Flush()
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := scenarioArg(args)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("at least one --param is required (tunable: %v)", optim.ParamNames())
	}
	names := make([]string, len(tuneParams))
	ranges := make([][]float64, len(tuneParams))
	for i, p := range tuneParams {
		if names[i], ranges[i], err = parseParam(p); err != nil {
			return err
		}
	}
	gs, err := optim.NewGridSearch(names, ranges, workers)
	if err != nil {
		return err
	}

	obj := optim.Objective{Metric: objective, Maximize: maximize}
	trials, err := gs.Search(cmd.Context(), cfg, sc, obj)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, n := range names {
		fmt.Fprintf(w, "%s\t", n)
	}
	fmt.Fprintf(w, "%s\tERROR\n", objective)
	for _, t := range trials {
		for _, n := range names {
			fmt.Fprintf(w, "%g\t", t.Params[n])
		}
		errText := "-"
		if t.Err != nil {
			errText = t.Err.Error()
		}
		fmt.Fprintf(w, "%.6f\t%s\n", t.Value(obj), errText)
	}
	return w.Flush()
}

func benchTick(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := scenario.Get("walk")
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tDT\tTICKS\tTIME\tTICKS/SEC\tREALTIME")
	for _, integ := range []string{"semi_implicit_euler", "rk4"} {
		for _, dt := range []float64{0.002, 0.004} {
			c := *cfg
			c.Integrator = integ
			c.Controller.Dt = dt
			sc.Duration = 2
			h, err := scenario.Build(&c, sc, scenario.Options{})
			if err != nil {
				return err
			}
			start := time.Now()
			out, err := h.Run(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			ticks := out.Result.StepsTaken
			fmt.Fprintf(w, "%s\t%.3fs\t%d\t%v\t%.0f\t%.1fx\n", integ, dt, ticks,
				elapsed.Round(time.Millisecond), float64(ticks)/elapsed.Seconds(),
				h.SimConfig.Duration/elapsed.Seconds())
		}
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tINTEG\tSTATUS")
	for _, run := range runs {
		status := "ok"
		if run.Failure != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			status,
		)
	}
	return w.Flush()
}

func listScenarios(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTEPS\tDESCRIPTION")
	for _, name := range scenario.List() {
		sc, err := scenario.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(sc.Steps), sc.Description)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	ticks, err := st.LoadTicks(runID)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n", meta.Scenario)
	fmt.Printf("samples: %d\n\n", len(ticks))

	series := []struct {
		caption string
		value   func(storage.Tick) float64
	}{
		{"icp error (m)", func(t storage.Tick) float64 { return t.ICPError }},
		{"com x (m)", func(t storage.Tick) float64 { return t.CoMX }},
		{"com y (m)", func(t storage.Tick) float64 { return t.CoMY }},
		{"com height (m)", func(t storage.Tick) float64 { return t.CoMZ }},
		{"torque norm (N·m)", func(t storage.Tick) float64 { return t.TorqueNorm }},
	}
	for _, s := range series {
		data := make([]float64, len(ticks))
		for i, t := range ticks {
			data[i] = s.value(t)
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		))
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	ticks, err := st.LoadTicks(runID)
	if err != nil {
		return err
	}
	if len(ticks) < 4 {
		return fmt.Errorf("not enough samples to analyze")
	}

	dt := ticks[1].Time - ticks[0].Time
	xs := make([]float64, len(ticks))
	ys := make([]float64, len(ticks))
	icpErr := make([]float64, len(ticks))
	for i, t := range ticks {
		xs[i], ys[i], icpErr[i] = t.CoMX, t.CoMY, t.ICPError
	}

	fmt.Printf("balance analysis: %s\n", meta.ID)
	fmt.Printf("scenario: %s\n\n", meta.Scenario)

	sway := analysis.ComputeSway(xs, ys, dt)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "path length\t%.4f m\n", sway.PathLength)
	fmt.Fprintf(w, "mean velocity\t%.4f m/s\n", sway.MeanVelocity)
	fmt.Fprintf(w, "rms x / y\t%.4f / %.4f m\n", sway.RMSX, sway.RMSY)
	fmt.Fprintf(w, "range x / y\t%.4f / %.4f m\n", sway.RangeX, sway.RangeY)
	fmt.Fprintf(w, "95%% ellipse\t%.6f m²\n", sway.Area95)
	if err := w.Flush(); err != nil {
		return err
	}

	freqs, amp := analysis.Spectrum(icpErr, 1/dt)
	plotData := amp[1:max(len(amp)/4, 2)]
	fmt.Println()
	fmt.Println(asciigraph.Plot(plotData,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("icp error amplitude spectrum"),
	))
	fmt.Println()

	freq, a := analysis.Dominant(freqs, amp)
	fmt.Printf("dominant frequency: %.3f hz (amplitude %.4f m)\n", freq, a)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1/freq)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, nil)
}

// openOutput returns stdout when path is empty.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	ticks, err := st.LoadTicks(args[0])
	if err != nil {
		return err
	}
	w, err := openOutput(output)
	if err != nil {
		return err
	}
	if err := storage.WriteCSV(w, ticks); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	ticks, err := st.LoadTicks(args[0])
	if err != nil {
		return err
	}
	w, err := openOutput(output)
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, *meta, ticks); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
