package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"foobar_factory/internal/catalog"
	"foobar_factory/internal/config"
	"foobar_factory/internal/domain"
	"foobar_factory/internal/line"
	"foobar_factory/internal/messaging/inproc"
	"foobar_factory/internal/policy"
	"foobar_factory/internal/report"
	sqlitestore "foobar_factory/internal/store/sqlite"
)

type runOptions struct {
	configPath string
	minRobots  int
	maxRobots  int
	seed       int64
	penalty    float64
	dbPath     string
	traceDir   string
	quiet      bool
	only       []string
}

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("foobar: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	rootCmd := &cobra.Command{
		Use:           "foobar",
		Short:         "foobar simulates a robot production line until the robot pool reaches its target size.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml or config.yaml (default: ~/.foobar/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite database path override")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the production line from min to max robots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLine(cmd, opts)
		},
	}
	runCmd.Flags().IntVar(&opts.minRobots, "min", 0, "initial robot pool size override")
	runCmd.Flags().IntVar(&opts.maxRobots, "max", 0, "target robot pool size override")
	runCmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed override (0 picks one)")
	runCmd.Flags().Float64Var(&opts.penalty, "penalty", 0, "task switching penalty override")
	runCmd.Flags().StringVar(&opts.traceDir, "trace", "", "directory for the compressed report trace")
	runCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress reports")
	runCmd.Flags().StringSliceVar(&opts.only, "only", nil, "print only these report kinds (tick, completion, spawn, assignment)")

	var limit int
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted production line runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listRuns(cmd, opts, limit)
		},
	}
	runsCmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")

	traceCmd := &cobra.Command{
		Use:   "trace <file>",
		Short: "Print the reports of a compressed trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTrace(cmd, args[0])
		},
	}

	rootCmd.AddCommand(runCmd, runsCmd, traceCmd)
	return rootCmd
}

func loadConfig(cmd *cobra.Command, opts *runOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("min") {
		cfg.Line.MinRobots = opts.minRobots
	}
	if flags.Changed("max") {
		cfg.Line.MaxRobots = opts.maxRobots
	}
	if flags.Changed("seed") {
		cfg.Line.Seed = opts.seed
	}
	if flags.Changed("penalty") {
		cfg.Line.SwitchPenalty = opts.penalty
	}
	if flags.Changed("trace") {
		cfg.Storage.TraceDir = opts.traceDir
	}
	if flags.Changed("db") {
		cfg.Storage.DBPath = opts.dbPath
	}
	cfg.Storage.DBPath = filepath.Clean(cfg.Storage.DBPath)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, dbPath string) (*sqlitestore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return store, nil
}

func runLine(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	only, err := parseKinds(opts.only)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	src, seed := catalog.NewSource(cfg.Line.Seed)
	bus := inproc.New(256)
	svc := line.New(line.Config{
		MinRobots:     cfg.Line.MinRobots,
		MaxRobots:     cfg.Line.MaxRobots,
		SwitchPenalty: cfg.Line.SwitchPenalty,
	}, policy.New(src), src, bus, log.Default())
	lineCfg := svc.Config()

	runID := uuid.NewString()
	var trace *report.Trace
	var traceSink report.Sink
	if cfg.Storage.TraceDir != "" {
		trace, err = report.OpenTrace(report.TracePath(cfg.Storage.TraceDir, runID))
		if err != nil {
			return err
		}
		traceSink = trace
	}
	if err := store.CreateRun(ctx, domain.Run{
		ID:            runID,
		Status:        domain.RunStatusRunning,
		Seed:          seed,
		MinRobots:     lineCfg.MinRobots,
		MaxRobots:     lineCfg.MaxRobots,
		SwitchPenalty: lineCfg.SwitchPenalty,
	}); err != nil {
		if trace != nil {
			_ = trace.Close()
		}
		return err
	}

	// a run row must never be left running once setup fails
	abort := func(err error) error {
		bus.Close()
		if trace != nil {
			_ = trace.Close()
		}
		if ferr := store.FinishRun(context.Background(), runID, domain.RunStatusFailed, err.Error()); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return fmt.Errorf("run %s: %w", runID, err)
	}

	var console io.Writer
	if !opts.quiet {
		console = cmd.OutOrStdout()
	}
	sinks := reportSinks(store.RunSink(runID), traceSink, console, only)
	channels := make(map[string]<-chan domain.Report, len(sinks))
	for name := range sinks {
		ch, err := bus.Register(name)
		if err != nil {
			return abort(fmt.Errorf("register %s sink: %w", name, err))
		}
		channels[name] = ch
	}

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var sinkErrs []error
	for name, sink := range sinks {
		wg.Add(1)
		go func(name string, ch <-chan domain.Report, sink report.Sink) {
			defer wg.Done()
			// sinks outlive a cancelled run so history is complete
			if err := report.Pump(context.Background(), ch, sink); err != nil {
				errMu.Lock()
				sinkErrs = append(sinkErrs, fmt.Errorf("%s sink: %w", name, err))
				errMu.Unlock()
			}
		}(name, channels[name], sink)
	}

	log.Printf("production line started run=%s seed=%d min=%d max=%d penalty=%g db=%s",
		runID, seed, lineCfg.MinRobots, lineCfg.MaxRobots, lineCfg.SwitchPenalty, cfg.Storage.DBPath)

	summary, runErr := svc.Run(ctx)

	bus.Close()
	wg.Wait()
	if trace != nil {
		if err := trace.Close(); err != nil {
			sinkErrs = append(sinkErrs, fmt.Errorf("close trace: %w", err))
		}
	}

	runErr = errors.Join(append([]error{runErr}, sinkErrs...)...)
	status, lastError := domain.RunStatusDone, ""
	if runErr != nil {
		status, lastError = domain.RunStatusFailed, runErr.Error()
	}
	if err := store.FinishRun(context.Background(), runID, status, lastError); err != nil {
		runErr = errors.Join(runErr, err)
	}

	printSummary(cmd, runID, summary)
	if trace != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "trace written to %s\n", trace.Path())
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "finished generating %d robots !\n", summary.Robots)
	return nil
}

// reportSinks returns the bus subscribers of a run. The store and the
// optional trace share one subscriber so both record the same sequence.
// A nil console disables progress output; only restricts it to some kinds.
func reportSinks(history, trace report.Sink, console io.Writer, only []domain.ReportKind) map[string]report.Sink {
	durable := report.Multi{history}
	if trace != nil {
		durable = append(durable, trace)
	}
	sinks := map[string]report.Sink{"history": durable}
	if console == nil {
		return sinks
	}
	var progress report.Sink = report.NewConsole(console)
	if len(only) > 0 {
		progress = report.Filter{Sink: progress, Kinds: only}
	}
	sinks["console"] = progress
	return sinks
}

func parseKinds(values []string) ([]domain.ReportKind, error) {
	var kinds []domain.ReportKind
	for _, v := range values {
		kind := domain.ReportKind(strings.ToLower(strings.TrimSpace(v)))
		switch kind {
		case domain.ReportKindTick, domain.ReportKindCompletion, domain.ReportKindSpawn, domain.ReportKindAssignment:
			kinds = append(kinds, kind)
		default:
			return nil, fmt.Errorf("unknown report kind %q", v)
		}
	}
	return kinds, nil
}

func printSummary(cmd *cobra.Command, runID string, s line.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d ticks, %s, robots = %d\n", runID, s.Ticks, s.Economy, s.Robots)
	kinds := make([]string, 0, len(s.Completions))
	for _, k := range domain.Kinds {
		if n := s.Completions[k]; n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s=%d", strings.ToLower(string(k)), n))
		}
	}
	fmt.Fprintf(out, "completions: %s, switches=%d, dropped purchases=%d\n", strings.Join(kinds, " "), s.Switches, s.DroppedRobots)
}

func listRuns(cmd *cobra.Command, opts *runOptions, limit int) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSEED\tROBOTS\tTICKS\tTASKS\tTIME\tCREATED")
	for _, r := range runs {
		done, err := store.CountRunReports(cmd.Context(), r.ID, domain.ReportKindCompletion)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%d\t%d\t%.2f\t%s\n",
			r.ID, r.Status, r.Seed, r.Robots, r.MaxRobots, r.Ticks, done, r.Economy.Time, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func printTrace(cmd *cobra.Command, path string) error {
	reports, err := report.ReadTrace(path)
	if err != nil {
		return err
	}
	console := report.NewConsole(cmd.OutOrStdout())
	for _, r := range reports {
		if err := console.Emit(cmd.Context(), r); err != nil {
			return err
		}
	}
	return nil
}
