// Command gpstudy runs Gaussian-process parameter studies from a JSON
// configuration.
//
//	gpstudy sample   -config study.json -n 8 -design halton
//	gpstudy optimise -config study.json -iterations 20
//	gpstudy fit      -config study.json -model surrogate.json
//	gpstudy predict  -model surrogate.json -grid 11
//	gpstudy history  -config study.json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/neutronics-workshop/gptools/gp"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
	"github.com/neutronics-workshop/gptools/preprocessing"
	"github.com/neutronics-workshop/gptools/sampling"
	"github.com/neutronics-workshop/gptools/study"
)

const usage = `usage: gpstudy <command> [flags]

commands:
  sample     evaluate a space-filling design
  optimise   run Bayesian optimisation steps (alias: optimize)
  fit        fit a surrogate to every stored evaluation and save it
  predict    evaluate a saved surrogate on a grid
  history    list stored evaluations`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "sample":
		return runSample(ctx, args[1:], stdout, stderr)
	case "optimise", "optimize":
		return runOptimise(ctx, args[1:], stdout, stderr)
	case "fit":
		return runFit(ctx, args[1:], stdout, stderr)
	case "predict":
		return runPredict(ctx, args[1:], stdout, stderr)
	case "history":
		return runHistory(ctx, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return errors.Newf("%s\n\n%s", msg, usage)
}

// studyFlags are shared by every command that opens a study.
type studyFlags struct {
	config   *string
	store    *string
	path     *string
	seed      *string
	logLevel  *string
	logFormat *string
}

func bindStudyFlags(fs *flag.FlagSet) *studyFlags {
	return &studyFlags{
		config:   fs.String("config", "study.json", "study configuration file"),
		store:    fs.String("store", "", "store backend override: memory|dir|sqlite"),
		path:     fs.String("path", "", "store path override"),
		seed:     fs.String("seed", "", "random seed override"),
		logLevel:  fs.String("log-level", "info", "log level: debug|info|warn|error"),
		logFormat: fs.String("log-format", "console", "log format: console|json"),
	}
}

func setupLogging(level, format string, stderr io.Writer) error {
	level = strings.ToLower(level)
	lvl, ok := log.ParseLevel(level)
	if !ok {
		return errors.NewValidationError("log-level", "unknown log level", level)
	}
	switch format {
	case "", "console":
		log.SetupZerolog(zerolog.ConsoleWriter{Out: stderr, NoColor: true}, lvl)
	case "json":
		if _, err := log.SetupLogger(stderr, level); err != nil {
			return err
		}
	default:
		return errors.NewValidationError("log-format", "must be console or json", format)
	}
	return nil
}

// open loads the configuration, applies flag overrides and opens the store.
// The caller must close the returned store.
func (f *studyFlags) open(ctx context.Context, stderr io.Writer) (*study.Runner, study.Store, error) {
	if err := setupLogging(*f.logLevel, *f.logFormat, stderr); err != nil {
		return nil, nil, err
	}
	cfg, err := study.LoadConfig(*f.config)
	if err != nil {
		return nil, nil, err
	}
	if *f.store != "" {
		cfg.Store.Kind = *f.store
	}
	if *f.path != "" {
		cfg.Store.Path = *f.path
	}
	if *f.seed != "" {
		seed, err := strconv.ParseUint(*f.seed, 10, 64)
		if err != nil {
			return nil, nil, errors.NewValidationError("seed", "must be a non-negative integer", *f.seed)
		}
		cfg.Seed = &seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	store, err := study.OpenStore(ctx, cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	runner, err := study.NewRunner(cfg, nil, store)
	if err != nil {
		_ = study.CloseIfSupported(store)
		return nil, nil, err
	}
	return runner, store, nil
}

func runSample(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := bindStudyFlags(fs)
	n := fs.Int("n", 0, "number of points (levels per axis for grid); 0 uses the configuration")
	design := fs.String("design", "", "design: corners|uniform|grid|halton")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner, store, err := sf.open(ctx, stderr)
	if err != nil {
		return err
	}
	defer func() {
		_ = study.CloseIfSupported(store)
	}()

	recs, err := runner.Sample(ctx, *design, *n)
	printRecords(stdout, recs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "evaluated %s points\n", humanize.Comma(int64(len(recs))))
	return nil
}

func runOptimise(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("optimise", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := bindStudyFlags(fs)
	iterations := fs.Int("iterations", 0, "optimisation steps; 0 uses the configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner, store, err := sf.open(ctx, stderr)
	if err != nil {
		return err
	}
	defer func() {
		_ = study.CloseIfSupported(store)
	}()

	recs, err := runner.Optimise(ctx, *iterations)
	printRecords(stdout, recs)
	if err != nil {
		return err
	}
	best, err := runner.Best(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "best value %s at %s (iteration %d)\n",
		humanize.Ftoa(best.Value), formatParameters(runner.Config().Names(), best.Coordinates), best.Iteration)
	return nil
}

func runFit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := bindStudyFlags(fs)
	modelPath := fs.String("model", "surrogate.json", "output snapshot file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner, store, err := sf.open(ctx, stderr)
	if err != nil {
		return err
	}
	defer func() {
		_ = study.CloseIfSupported(store)
	}()

	reg, err := runner.Fit(ctx)
	if err != nil {
		return err
	}
	if err := reg.SaveSnapshot(*modelPath); err != nil {
		return err
	}

	h := reg.Hyperparameters()
	_, n := reg.Dims()
	fmt.Fprintf(stdout, "fitted %s points: amplitude %s, lengths %v, -log L %s\n",
		humanize.Comma(int64(n)), humanize.Ftoa(h.Amplitude), h.Length.Values(),
		humanize.Ftoa(reg.NegativeLogMarginalLikelihood()))
	if n >= 2 {
		loo, err := reg.LeaveOneOut()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "leave-one-out: rmse %s, r2 %s, msll %s\n",
			humanize.Ftoa(loo.Metrics.RMSE), humanize.Ftoa(loo.Metrics.R2), humanize.Ftoa(loo.Metrics.MSLL))
	}
	fmt.Fprintf(stdout, "saved %s\n", *modelPath)
	return nil
}

func runPredict(_ context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	modelPath := fs.String("model", "surrogate.json", "snapshot file written by fit")
	configPath := fs.String("config", "", "study configuration; its bounds define the grid (default: extent of the training data)")
	grid := fs.Int("grid", 11, "grid levels per axis")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", "console", "log format: console|json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := setupLogging(*logLevel, *logFormat, stderr); err != nil {
		return err
	}

	snap, err := gp.LoadSnapshot(*modelPath)
	if err != nil {
		return err
	}
	reg, err := gp.NewRegressorFromSnapshot(snap)
	if err != nil {
		return err
	}

	var (
		scaler *preprocessing.BoundsScaler
		names  []string
	)
	if *configPath != "" {
		cfg, err := study.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		if scaler, err = preprocessing.NewBoundsScaler(cfg.Bounds()); err != nil {
			return err
		}
		names = cfg.Names()
	} else {
		scaler = preprocessing.NewBoundsScalerDefault()
		if err := scaler.Fit(snap.X); err != nil {
			return err
		}
	}

	nFeatures, _ := reg.Dims()
	if len(scaler.Lower) != nFeatures {
		return errors.NewDimensionError("predict", nFeatures, len(scaler.Lower), 1)
	}
	if names == nil {
		for j := 0; j < nFeatures; j++ {
			names = append(names, fmt.Sprintf("x%d", j))
		}
	}
	unit, err := sampling.Generate(sampling.KindGrid, *grid, nFeatures, nil)
	if err != nil {
		return err
	}
	q, err := scaler.Transform(unit)
	if err != nil {
		return err
	}
	mu, sigma, err := reg.Predict(q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tmean\tsigma\n", strings.Join(names, "\t"))
	for i, p := range q {
		for _, v := range p {
			fmt.Fprintf(w, "%.6g\t", v)
		}
		fmt.Fprintf(w, "%.6g\t%.6g\n", mu[i], sigma[i])
	}
	return w.Flush()
}

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sf := bindStudyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner, store, err := sf.open(ctx, stderr)
	if err != nil {
		return err
	}
	defer func() {
		_ = study.CloseIfSupported(store)
	}()

	recs, err := runner.History(ctx)
	if err != nil {
		return err
	}
	printRecords(stdout, recs)
	fmt.Fprintf(stdout, "%s evaluations\n", humanize.Comma(int64(len(recs))))
	return nil
}

func printRecords(w io.Writer, recs []study.Record) {
	if len(recs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\titeration\tsample\tparameters\tvalue\terror\tcreated")
	for _, r := range recs {
		errStr := "-"
		if r.Error != nil {
			errStr = strconv.FormatFloat(*r.Error, 'g', 6, 64)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.6g\t%s\t%s\n",
			shortID(r.ID), r.Iteration, r.Sample, formatRecordParameters(r),
			r.Value, errStr, humanize.Time(r.CreatedAt))
	}
	_ = tw.Flush()
}

func formatRecordParameters(r study.Record) string {
	if len(r.Parameters) == 0 {
		return formatParameters(nil, r.Coordinates)
	}
	names := make([]string, 0, len(r.Parameters))
	values := make([]float64, 0, len(r.Parameters))
	for _, n := range sortedKeys(r.Parameters) {
		names = append(names, n)
		values = append(values, r.Parameters[n])
	}
	return formatParameters(names, values)
}

func formatParameters(names []string, x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		s := strconv.FormatFloat(v, 'g', 6, 64)
		if i < len(names) {
			s = names[i] + "=" + s
		}
		parts[i] = s
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
