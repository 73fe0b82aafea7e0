package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/selgo-ml/selgo/core/parallel"
	"github.com/selgo-ml/selgo/penalized"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
	"github.com/selgo-ml/selgo/pkg/log"
	"github.com/selgo-ml/selgo/preprocessing"
)

// Sweep defaults.
const (
	DefaultSplitRatio = 0.8
	DefaultSweepSeed  = 42
)

// SweepOption configures Sweep.
type SweepOption func(*sweepConfig)

type sweepConfig struct {
	splitRatio float64
	seed       int64
	workers    int
	estOpts    []penalized.Option
}

// WithSplitRatio sets the train fraction of the train/test partition.
func WithSplitRatio(ratio float64) SweepOption {
	return func(c *sweepConfig) {
		c.splitRatio = ratio
	}
}

// WithSeed sets the seed of the train/test partition. Sweeps with the same
// seed and inputs reproduce the same split and, within floating point
// tolerance, the same losses, regardless of worker count.
func WithSeed(seed int64) SweepOption {
	return func(c *sweepConfig) {
		c.seed = seed
	}
}

// WithWorkers sets the size of the worker pool evaluating lambdas. Values
// below 2 select sequential execution.
func WithWorkers(workers int) SweepOption {
	return func(c *sweepConfig) {
		c.workers = workers
	}
}

// WithEstimatorOptions forwards estimator hyperparameters to every fit in
// the sweep.
func WithEstimatorOptions(opts ...penalized.Option) SweepOption {
	return func(c *sweepConfig) {
		c.estOpts = opts
	}
}

// Sweep fits the penalized estimator once per lambda in logLambdas and
// returns the tuning table plus the prevalence distribution of the selected
// features, both ordered by ascending lambda.
//
// Lambdas are evaluated independently against read-only inputs, so the
// worker pool shares no mutable state; each worker fills distinct slots of
// a pre-sized result slice and the output ordering is the input ordering.
// A fit that does not converge is recorded with Converged=false and does
// not abort the sweep; malformed inputs abort before any fit runs.
func Sweep(X, XRaw mat.Matrix, y *penalized.Target, logLambdas []float64, opts ...SweepOption) (*Table, *PvlDist, error) {
	cfg := &sweepConfig{splitRatio: DefaultSplitRatio, seed: DefaultSweepSeed, workers: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	rows, cols := X.Dims()
	rawRows, rawCols := XRaw.Dims()
	if rawRows != rows {
		return nil, nil, selgoErrors.NewDimensionError("Sweep", rows, rawRows, 0)
	}
	if rawCols != cols {
		return nil, nil, selgoErrors.NewDimensionError("Sweep", cols, rawCols, 1)
	}
	if y.Len() != rows {
		return nil, nil, selgoErrors.NewDimensionError("Sweep", rows, y.Len(), 0)
	}
	if len(logLambdas) == 0 {
		return nil, nil, selgoErrors.NewModelError("Sweep", "empty lambda range", selgoErrors.ErrEmptyData)
	}
	for i := 1; i < len(logLambdas); i++ {
		if logLambdas[i] <= logLambdas[i-1] {
			return nil, nil, selgoErrors.NewValidationError("lambda_range",
				"must be strictly increasing", i)
		}
	}
	if cfg.splitRatio <= 0 || cfg.splitRatio >= 1 {
		return nil, nil, selgoErrors.NewValidationError("split_ratio", "must lie in (0, 1)", cfg.splitRatio)
	}

	prevalence, err := preprocessing.Prevalence(XRaw)
	if err != nil {
		return nil, nil, err
	}

	trainIdx, testIdx, err := splitIndices(rows, cfg.splitRatio, cfg.seed)
	if err != nil {
		return nil, nil, err
	}

	XTrain := subsetRows(X, trainIdx)
	XTest := subsetRows(X, testIdx)
	yTrain := y.Subset(trainIdx)
	yTest := y.Subset(testIdx)

	logger := log.WithComponent("tuning")
	logger.Debug().
		Int("lambdas", len(logLambdas)).
		Int("workers", cfg.workers).
		Int("train", len(trainIdx)).
		Int("test", len(testIdx)).
		Msg("sweep started")

	k := len(logLambdas)
	resultRows := make([]Row, k)
	resultBuckets := make([][]PvlBucket, k)
	errs := make([]error, k)

	evalRange := func(start, end int) {
		for i := start; i < end; i++ {
			resultRows[i], resultBuckets[i], errs[i] = evalOne(
				XTrain, XTest, yTrain, yTest, prevalence, logLambdas[i], cfg.estOpts)
		}
	}

	if cfg.workers <= 1 {
		evalRange(0, k)
	} else {
		parallel.Parallelize(k, cfg.workers, evalRange)
	}

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	table := &Table{Rows: resultRows}
	dist := &PvlDist{}
	for _, buckets := range resultBuckets {
		dist.Buckets = append(dist.Buckets, buckets...)
	}
	return table, dist, nil
}

// evalOne fits one lambda on the train partition and scores it on the test
// partition. It is self-contained: it returns an immutable row instead of
// appending to shared state.
func evalOne(XTrain, XTest mat.Matrix, yTrain, yTest *penalized.Target,
	prevalence []float64, logLambda float64, estOpts []penalized.Option,
) (Row, []PvlBucket, error) {
	lambda := math.Exp(logLambda)

	opts := make([]penalized.Option, 0, len(estOpts)+1)
	opts = append(opts, estOpts...)
	opts = append(opts, penalized.WithLambda(lambda))
	est := penalized.NewEstimator(opts...)

	if err := est.Fit(XTrain, yTrain, prevalence); err != nil {
		return Row{}, nil, selgoErrors.Wrapf(err, "sweep: fit at lambda=%g", lambda)
	}
	loss, err := est.Evaluate(XTest, yTest)
	if err != nil {
		return Row{}, nil, selgoErrors.Wrapf(err, "sweep: evaluate at lambda=%g", lambda)
	}

	var selectedPvl []float64
	for j, sel := range est.Selected() {
		if sel {
			selectedPvl = append(selectedPvl, prevalence[j])
		}
	}

	meanPvl := 0.0
	if len(selectedPvl) > 0 {
		meanPvl = stat.Mean(selectedPvl, nil)
	}

	row := Row{
		Lambda:         lambda,
		LogLambda:      logLambda,
		Loss:           loss,
		NSelected:      len(selectedPvl),
		Converged:      est.Converged(),
		MeanPrevalence: meanPvl,
	}
	return row, prevalenceBuckets(lambda, logLambda, selectedPvl), nil
}

// prevalenceBuckets counts the selected features' prevalence per decile,
// (0.0, 0.1], (0.1, 0.2], ..., (0.9, 1.0].
func prevalenceBuckets(lambda, logLambda float64, selectedPvl []float64) []PvlBucket {
	buckets := make([]PvlBucket, 10)
	for b := range buckets {
		buckets[b] = PvlBucket{
			Lambda:    lambda,
			LogLambda: logLambda,
			Low:       float64(b) / 10,
			High:      float64(b+1) / 10,
		}
	}
	for _, p := range selectedPvl {
		b := int(math.Ceil(p*10)) - 1
		if b < 0 {
			b = 0
		}
		if b > 9 {
			b = 9
		}
		buckets[b].Count++
	}
	return buckets
}

// splitIndices partitions [0, n) into train/test index sets using a PCG
// permutation derived from the seed alone, so every lambda and every rerun
// sees the identical split.
func splitIndices(n int, ratio float64, seed int64) (train, test []int, err error) {
	nTrain := int(math.Round(ratio * float64(n)))
	if nTrain < 1 || nTrain >= n {
		return nil, nil, selgoErrors.NewValidationError("split_ratio",
			"partition leaves an empty train or test set", ratio)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := rng.Perm(n)

	train = append([]int(nil), perm[:nTrain]...)
	test = append([]int(nil), perm[nTrain:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// subsetRows copies the given rows of X into a new dense matrix.
func subsetRows(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}
