package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ===========================================================================
// TRAINING CLI
// ===========================================================================
//
// The pipeline behind `mdn train`:
//
//  1. Resolve the configuration: defaults, then the YAML file, then flags.
//  2. Load data: a synthetic toy problem or a CSV file. The model's x_dim and
//     y_dim follow the data.
//  3. Build the network and log its variable/layer table.
//  4. Train, reporting max_iter/show_every times.
//  5. Summarise: final cost and the mean aleatoric/epistemic variance over
//     an evenly spaced test grid spanning the first input column.
//
// `mdn compare` runs the same pipeline for both variants concurrently on
// the same data.
//
// ===========================================================================

// Flags shared by train and compare.
var (
	dataSource string
	dataPoints int
	dataXDim   int
	testPoints int

	flagVariant   string
	flagK         int
	flagHidden    []int
	flagSigMax    float64
	flagL2        float64
	flagMaxIter   int
	flagBatch     int
	flagLR        float64
	flagOptimizer string
	flagSeed      uint64
	flagPlotDir   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a mixture density network",
	Example: `  mdn train --data sinusoid --max-iter 5000 --plot-dir plots
  mdn train --data two-branch --variant independent --k 3
  mdn train --data points.csv --x-dim 2 --config mdn.yaml`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Train the shared and independent variants side by side",
	Args:  cobra.NoArgs,
	RunE:  runCompare,
}

func init() {
	for _, cmd := range []*cobra.Command{trainCmd, compareCmd} {
		addDataFlags(cmd)
		addModelFlags(cmd)
		addTrainFlags(cmd)
	}
	trainCmd.Flags().StringVar(&flagVariant, "variant", "", "Mixture variant: shared or independent")
}

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dataSource, "data", "sinusoid", "Toy problem (sinusoid, two-branch) or path to a CSV file")
	cmd.Flags().IntVar(&dataPoints, "n", 2000, "Number of synthetic training points")
	cmd.Flags().IntVar(&dataXDim, "x-dim", 1, "Number of input columns in a CSV file")
	cmd.Flags().IntVar(&testPoints, "test-points", 500, "Size of the evaluation grid")
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagK, "k", 0, "Number of mixture components")
	cmd.Flags().IntSliceVar(&flagHidden, "hidden", nil, "Hidden layer widths")
	cmd.Flags().Float64Var(&flagSigMax, "sig-max", 0, "Upper bound on the variance (0 uses exp)")
	cmd.Flags().Float64Var(&flagL2, "l2", 0, "L2 regularisation coefficient")
}

func addTrainFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagMaxIter, "max-iter", 0, "Number of training iterations")
	cmd.Flags().IntVar(&flagBatch, "batch", 0, "Minibatch size")
	cmd.Flags().Float64Var(&flagLR, "lr", 0, "Learning rate")
	cmd.Flags().StringVar(&flagOptimizer, "optimizer", "", "Optimizer: rmsprop, adam or sgd")
	cmd.Flags().Uint64Var(&flagSeed, "seed", 0, "Random seed")
	cmd.Flags().StringVar(&flagPlotDir, "plot-dir", "", "Directory for result and variance plots")
}

// applyFlags overlays explicitly set flags on the loaded configuration.
func applyFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("variant") {
		c.Model.Variant = Variant(flagVariant)
	}
	if flags.Changed("k") {
		c.Model.K = flagK
	}
	if flags.Changed("hidden") {
		c.Model.Hidden = flagHidden
	}
	if flags.Changed("sig-max") {
		c.Model.SigMax = flagSigMax
	}
	if flags.Changed("l2") {
		c.Model.L2RegCoef = flagL2
	}
	if flags.Changed("max-iter") {
		c.Train.MaxIter = flagMaxIter
	}
	if flags.Changed("batch") {
		c.Train.BatchSize = flagBatch
	}
	if flags.Changed("lr") {
		c.Train.LearningRate = flagLR
	}
	if flags.Changed("optimizer") {
		c.Train.Optimizer = flagOptimizer
	}
	if flags.Changed("seed") {
		c.Train.Seed = flagSeed
	}
	if flags.Changed("plot-dir") {
		c.Train.PlotDir = flagPlotDir
	}
}

// loadData resolves --data into a dataset.
func loadData(source string, n, xDim int, seed uint64) (*Dataset, error) {
	if (source == "sinusoid" || source == "two-branch") && n <= 0 {
		return nil, fmt.Errorf("%w: --n must be positive, got %d", ErrInvalidConfig, n)
	}

	switch source {
	case "sinusoid":
		return InvertedSinusoid(n, 0.05, newRand(seed)), nil
	case "two-branch":
		return TwoBranch(n, newRand(seed)), nil
	default:
		return LoadCSV(source, xDim)
	}
}

// RunResult is the outcome of one training run.
type RunResult struct {
	Name      string
	Variant   Variant
	FinalCost float64
	MinCost   float64
	MeanEV    float64
	MeanVE    float64
	Params    int
}

// trainOne builds, trains and evaluates a model on data.
func trainOne(ctx context.Context, c Config, data *Dataset, log *zap.Logger) (RunResult, error) {
	c.Model.XDim, c.Model.YDim = data.XDim(), data.YDim()
	if err := c.Validate(); err != nil {
		return RunResult{}, err
	}
	if testPoints <= 0 {
		return RunResult{}, fmt.Errorf("%w: --test-points must be positive, got %d", ErrInvalidConfig, testPoints)
	}

	model, err := NewMDN(c.Model, newRand(c.Train.Seed+1))
	if err != nil {
		return RunResult{}, err
	}
	summary := model.Summary()
	if c.Model.Verbose {
		summary.Log(log.With(zap.String("model", c.Model.Name)))
	}

	if c.Train.PlotDir != "" {
		if err := os.MkdirAll(c.Train.PlotDir, 0o755); err != nil {
			return RunResult{}, fmt.Errorf("failed to create plot directory: %w", err)
		}
	}

	inputs := data.X.Column(0)
	xTest := LinearGrid(floats.Min(inputs), floats.Max(inputs), testPoints, data.XDim())

	trainer, err := NewTrainer(model, c.Train, log)
	if err != nil {
		return RunResult{}, err
	}
	metrics, err := trainer.Train(ctx, data, xTest)
	if err != nil {
		return RunResult{}, err
	}

	if c.Train.PlotDir != "" {
		path := filepath.Join(c.Train.PlotDir, c.Model.Name+"_cost.png")
		if err := metrics.SavePlot(c.Model.Name+" cost", path); err != nil {
			return RunResult{}, fmt.Errorf("failed to plot cost: %w", err)
		}
	}

	dec := model.Predict(xTest).Decompose()
	return RunResult{
		Name:      c.Model.Name,
		Variant:   c.Model.Variant,
		FinalCost: metrics.FinalCost(),
		MinCost:   metrics.MinCost(),
		MeanEV:    stat.Mean(dec.EV, nil),
		MeanVE:    stat.Mean(dec.VE, nil),
		Params:    summary.NumParameters(),
	}, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	c := cfg
	applyFlags(cmd, &c)

	data, err := loadData(dataSource, dataPoints, dataXDim, c.Train.Seed)
	if err != nil {
		return fmt.Errorf("failed to load training data: %w", err)
	}
	logger.Info("data loaded",
		zap.String("source", dataSource),
		zap.Int("n", data.Len()),
		zap.Int("x_dim", data.XDim()),
		zap.Int("y_dim", data.YDim()))

	result, err := trainOne(cmd.Context(), c, data, logger)
	if err != nil {
		return err
	}
	return writeResults(cmd.OutOrStdout(), []RunResult{result})
}

func runCompare(cmd *cobra.Command, args []string) error {
	c := cfg
	applyFlags(cmd, &c)

	data, err := loadData(dataSource, dataPoints, dataXDim, c.Train.Seed)
	if err != nil {
		return fmt.Errorf("failed to load training data: %w", err)
	}

	variants := []Variant{VariantShared, VariantIndependent}
	results := make([]RunResult, len(variants))

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, v := range variants {
		run := c
		run.Model.Variant = v
		run.Model.Name = fmt.Sprintf("%s_%s", c.Model.Name, v)
		run.Model.Hidden = append([]int(nil), c.Model.Hidden...)

		g.Go(func() error {
			res, err := trainOne(ctx, run, data, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", v, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return writeResults(cmd.OutOrStdout(), results)
}

// writeResults prints one row per run.
func writeResults(w io.Writer, results []RunResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"MODEL", "VARIANT", "PARAMS", "FINAL COST", "MIN COST", "E[Var[y|x]]", "Var[E[y|x]]"}, "\t"))
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			r.Name, r.Variant, r.Params, r.FinalCost, r.MinCost, r.MeanEV, r.MeanVE)
	}
	return tw.Flush()
}
