// Package pipeline wires the lambda-selection stages end to end: scan the
// lambda range, sweep it, decide the inflection point and refit at the
// chosen lambda. The result is a per-feature coefficient report keyed by
// the caller's feature identifiers, the form consumed by downstream
// reporting and enrichment tools.
package pipeline

import (
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/selgo-ml/selgo/metrics"
	"github.com/selgo-ml/selgo/penalized"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
	"github.com/selgo-ml/selgo/pkg/log"
	"github.com/selgo-ml/selgo/preprocessing"
	"github.com/selgo-ml/selgo/tuning"
)

// Coefficient is the fitted weight of one feature at the chosen lambda.
type Coefficient struct {
	Value    float64
	Selected bool
}

// Report is the outcome of a full selection run.
type Report struct {
	// Lambda is the chosen regularization strength.
	Lambda float64

	// Coefficients maps feature identifiers to their fitted weights at the
	// chosen lambda.
	Coefficients map[string]Coefficient

	// Intercept is the bias term of the final fit.
	Intercept float64

	// NSelected counts features with nonzero coefficients.
	NSelected int

	// Converged reports whether the final fit converged.
	Converged bool

	// MetricName and TrainMetric score the final fit on the training
	// design with the unpenalized metric matching the task: "mse" for
	// regression, "log_loss" for binary, "accuracy" for multiclass. Cox
	// fits have no pointwise analogue and report NaN under an empty name.
	MetricName  string
	TrainMetric float64

	// Table and Dist are the sweep outputs; Decision carries the segmented
	// fit diagnostics.
	Table    *tuning.Table
	Dist     *tuning.PvlDist
	Decision *tuning.Decision
}

// Option configures a FeatureSelector.
type Option func(*FeatureSelector)

// WithStep sets the number of lambdas scanned and swept.
func WithStep(step int) Option {
	return func(fs *FeatureSelector) {
		fs.step = step
	}
}

// WithScanOptions forwards options to the range scan.
func WithScanOptions(opts ...tuning.ScanOption) Option {
	return func(fs *FeatureSelector) {
		fs.scanOpts = opts
	}
}

// WithSweepOptions forwards options to the tuning sweep.
func WithSweepOptions(opts ...tuning.SweepOption) Option {
	return func(fs *FeatureSelector) {
		fs.sweepOpts = opts
	}
}

// WithDecideOptions forwards options to the inflection decision.
func WithDecideOptions(opts ...tuning.DecideOption) Option {
	return func(fs *FeatureSelector) {
		fs.decideOpts = opts
	}
}

// WithEstimatorOptions sets the estimator hyperparameters used by the
// final fit. Forward the same options through WithScanOptions and
// WithSweepOptions to keep all stages consistent.
func WithEstimatorOptions(opts ...penalized.Option) Option {
	return func(fs *FeatureSelector) {
		fs.estOpts = opts
	}
}

// WithStandardize controls whether the design matrix is z-standardized
// before fitting (default: true).
func WithStandardize(standardize bool) Option {
	return func(fs *FeatureSelector) {
		fs.standardize = standardize
	}
}

// WithOutputDir enables persistence: the tuning table, the prevalence
// distribution and the decision diagnostic plot are written into dir after
// the run.
func WithOutputDir(dir string) Option {
	return func(fs *FeatureSelector) {
		fs.outputDir = dir
	}
}

// FeatureSelector runs the full lambda-selection pipeline.
type FeatureSelector struct {
	step        int
	standardize bool
	outputDir   string
	scanOpts    []tuning.ScanOption
	sweepOpts   []tuning.SweepOption
	decideOpts  []tuning.DecideOption
	estOpts     []penalized.Option
}

// NewFeatureSelector creates a FeatureSelector with 30 tuning steps and
// standardization enabled.
func NewFeatureSelector(opts ...Option) *FeatureSelector {
	fs := &FeatureSelector{
		step:        30,
		standardize: true,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Run executes Scan, Sweep, Decide and the final fit. X is the numeric
// design matrix (samples x features), XRaw the parallel raw count matrix
// used to derive prevalence, and featureIDs names the feature columns for
// the report.
func (fs *FeatureSelector) Run(X, XRaw mat.Matrix, y *penalized.Target, featureIDs []string) (*Report, error) {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, selgoErrors.NewModelError("FeatureSelector.Run", "empty design matrix", selgoErrors.ErrEmptyData)
	}
	if len(featureIDs) != cols {
		return nil, selgoErrors.NewDimensionError("FeatureSelector.Run", cols, len(featureIDs), 1)
	}
	if y.Len() != rows {
		return nil, selgoErrors.NewDimensionError("FeatureSelector.Run", rows, y.Len(), 0)
	}

	logger := log.WithComponent("pipeline")

	design := X
	if fs.standardize {
		scaler := preprocessing.NewStandardScalerDefault()
		scaled, err := scaler.FitTransform(X)
		if err != nil {
			return nil, err
		}
		design = scaled
	}

	scanOpts := append([]tuning.ScanOption{tuning.WithScanEstimatorOptions(fs.estOpts...)}, fs.scanOpts...)
	logLambdas, err := tuning.Scan(design, XRaw, y, fs.step, scanOpts...)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Float64("lower", logLambdas[0]).
		Float64("upper", logLambdas[len(logLambdas)-1]).
		Msg("lambda range scanned")

	sweepOpts := append([]tuning.SweepOption{tuning.WithEstimatorOptions(fs.estOpts...)}, fs.sweepOpts...)
	table, dist, err := tuning.Sweep(design, XRaw, y, logLambdas, sweepOpts...)
	if err != nil {
		return nil, err
	}

	decision, err := tuning.Decide(table, fs.decideOpts...)
	if err != nil {
		return nil, err
	}
	logger.Info().Float64("lambda", decision.Lambda).Msg("optimal lambda decided")

	prevalence, err := preprocessing.Prevalence(XRaw)
	if err != nil {
		return nil, err
	}

	finalOpts := make([]penalized.Option, 0, len(fs.estOpts)+1)
	finalOpts = append(finalOpts, fs.estOpts...)
	finalOpts = append(finalOpts, penalized.WithLambda(decision.Lambda))
	est := penalized.NewEstimator(finalOpts...)
	if err := est.Fit(design, y, prevalence); err != nil {
		return nil, err
	}

	coef := est.Coef()
	selected := est.Selected()
	coefficients := make(map[string]Coefficient, cols)
	for j, id := range featureIDs {
		coefficients[id] = Coefficient{Value: coef[j], Selected: selected[j]}
	}

	metricName, metricValue, err := trainMetric(est, design, y)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("selected", est.NSelected()).
		Str("metric", metricName).
		Float64("value", metricValue).
		Msg("final fit scored")

	report := &Report{
		Lambda:       decision.Lambda,
		Coefficients: coefficients,
		Intercept:    est.Intercept(),
		NSelected:    est.NSelected(),
		Converged:    est.Converged(),
		MetricName:   metricName,
		TrainMetric:  metricValue,
		Table:        table,
		Dist:         dist,
		Decision:     decision,
	}

	if fs.outputDir != "" {
		if err := fs.persist(report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// trainMetric scores the fitted estimator on the training design with the
// unpenalized metric matching its task. Cox fits predict relative risks
// rather than pointwise outcomes and carry no comparable score.
func trainMetric(est *penalized.Estimator, X mat.Matrix, y *penalized.Target) (string, float64, error) {
	if y.Task() == penalized.TaskCox {
		return "", math.NaN(), nil
	}

	pred, err := est.Predict(X)
	if err != nil {
		return "", 0, err
	}
	n := y.Len()
	predVec := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		predVec.SetVec(i, pred.At(i, 0))
	}
	trueVec := mat.NewVecDense(n, y.Values())

	switch y.Task() {
	case penalized.TaskBinary:
		v, err := metrics.LogLoss(trueVec, predVec)
		return "log_loss", v, err
	case penalized.TaskMulticlass:
		v, err := metrics.Accuracy(trueVec, predVec)
		return "accuracy", v, err
	default:
		v, err := metrics.MSE(trueVec, predVec)
		return "mse", v, err
	}
}

// persist writes the sweep tables and the diagnostic plot after the run
// completed; each artifact is independent.
func (fs *FeatureSelector) persist(report *Report) error {
	if err := report.Table.SaveCSV(filepath.Join(fs.outputDir, "tuning_table.csv")); err != nil {
		return err
	}
	if err := report.Dist.SaveCSV(filepath.Join(fs.outputDir, "prevalence_dist.csv")); err != nil {
		return err
	}
	return report.Decision.SavePlot(filepath.Join(fs.outputDir, "loss_curve.png"))
}
