// Package tuning drives lambda selection for the penalized estimator: Scan
// brackets the lambda interval where the penalty transitions from selecting
// everything to selecting nothing, Sweep fits the estimator across that
// interval and tabulates loss and selection size per lambda, and Decide
// locates the inflection point of the loss curve by segmented regression.
package tuning

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/selgo-ml/selgo/penalized"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
	"github.com/selgo-ml/selgo/pkg/log"
	"github.com/selgo-ml/selgo/preprocessing"
)

// Default scan search bounds: the penalty is useless below 1e-10 and has
// long since eliminated everything above 1e-1 on standardized data.
const (
	DefaultScanLow  = 1e-10
	DefaultScanHigh = 1e-1

	// DefaultScanBudget is the number of bisection steps per boundary.
	DefaultScanBudget = 20
)

// ScanOption configures Scan.
type ScanOption func(*scanConfig)

type scanConfig struct {
	low     float64
	high    float64
	budget  int
	estOpts []penalized.Option
}

// WithScanBounds sets the lambda search interval (natural scale).
func WithScanBounds(low, high float64) ScanOption {
	return func(c *scanConfig) {
		c.low = low
		c.high = high
	}
}

// WithScanBudget sets the number of bisection steps spent on each boundary.
func WithScanBudget(budget int) ScanOption {
	return func(c *scanConfig) {
		c.budget = budget
	}
}

// WithScanEstimatorOptions forwards estimator hyperparameters to the trial
// fits performed during the scan.
func WithScanEstimatorOptions(opts ...penalized.Option) ScanOption {
	return func(c *scanConfig) {
		c.estOpts = opts
	}
}

// Scan brackets the useful lambda range for the given data and returns step
// log-lambda values, strictly increasing and evenly spaced between the two
// boundaries (inclusive):
//
//   - lower boundary: the smallest lambda at which at least one feature is
//     dropped ("the penalty starts filtering")
//   - upper boundary: the smallest lambda at which every feature is dropped
//
// Each boundary is found by bisection in log space, one estimator fit per
// trial lambda. If either boundary cannot be bracketed inside the search
// bounds, Scan fails with a BoundaryError instead of returning a degenerate
// range.
func Scan(X, XRaw mat.Matrix, y *penalized.Target, step int, opts ...ScanOption) ([]float64, error) {
	cfg := &scanConfig{low: DefaultScanLow, high: DefaultScanHigh, budget: DefaultScanBudget}
	for _, opt := range opts {
		opt(cfg)
	}

	if step < 2 {
		return nil, selgoErrors.NewValidationError("step", "must be at least 2", step)
	}
	if !(cfg.low > 0) || cfg.high <= cfg.low {
		return nil, selgoErrors.NewValidationError("search_bounds", "require 0 < low < high",
			[2]float64{cfg.low, cfg.high})
	}
	if cfg.budget < 1 {
		return nil, selgoErrors.NewValidationError("budget", "must be positive", cfg.budget)
	}

	rows, cols := X.Dims()
	rawRows, rawCols := XRaw.Dims()
	if rawRows != rows {
		return nil, selgoErrors.NewDimensionError("Scan", rows, rawRows, 0)
	}
	if rawCols != cols {
		return nil, selgoErrors.NewDimensionError("Scan", cols, rawCols, 1)
	}
	if y.Len() != rows {
		return nil, selgoErrors.NewDimensionError("Scan", rows, y.Len(), 0)
	}

	prevalence, err := preprocessing.Prevalence(XRaw)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("tuning")

	nSelectedAt := func(lambda float64) (int, error) {
		est := penalized.NewEstimator(append(cfg.estOpts, penalized.WithLambda(lambda))...)
		if err := est.Fit(X, y, prevalence); err != nil {
			return 0, selgoErrors.Wrapf(err, "scan: trial fit at lambda=%g", lambda)
		}
		return est.NSelected(), nil
	}

	logLow := math.Log(cfg.low)
	logHigh := math.Log(cfg.high)

	nLow, err := nSelectedAt(cfg.low)
	if err != nil {
		return nil, err
	}
	nHigh, err := nSelectedAt(cfg.high)
	if err != nil {
		return nil, err
	}
	if nLow < cols {
		// The penalty already filters at the lower search bound, so the
		// point where filtering begins lies outside the bounds.
		return nil, selgoErrors.NewBoundaryError("lower", cfg.low, cfg.high, cfg.budget)
	}
	if nHigh > 0 {
		return nil, selgoErrors.NewBoundaryError("upper", cfg.low, cfg.high, cfg.budget)
	}

	// Smallest lambda dropping at least one feature.
	lowerLog, err := bisect(logLow, logHigh, cfg.budget, func(lambda float64) (bool, error) {
		n, err := nSelectedAt(lambda)
		return n < cols, err
	})
	if err != nil {
		return nil, err
	}

	// Smallest lambda dropping every feature. The lower boundary is a valid
	// left bracket since nSelected there is still positive.
	upperLog, err := bisect(lowerLog, logHigh, cfg.budget, func(lambda float64) (bool, error) {
		n, err := nSelectedAt(lambda)
		return n == 0, err
	})
	if err != nil {
		return nil, err
	}

	if !(lowerLog < upperLog) {
		return nil, selgoErrors.NewBoundaryError("upper", math.Exp(lowerLog), math.Exp(upperLog), cfg.budget)
	}

	logger.Debug().
		Float64("lower", math.Exp(lowerLog)).
		Float64("upper", math.Exp(upperLog)).
		Int("step", step).
		Msg("lambda range bracketed")

	// step evenly spaced points in log space, boundaries inclusive.
	rangeOut := make([]float64, step)
	floats.Span(rangeOut, lowerLog, upperLog)
	return rangeOut, nil
}

// bisect narrows [lo, hi] in log space over a fixed budget and returns the
// smallest log-lambda satisfying pred. Invariant: pred(lo) is false,
// pred(hi) is true.
func bisect(lo, hi float64, budget int, pred func(lambda float64) (bool, error)) (float64, error) {
	for i := 0; i < budget; i++ {
		mid := (lo + hi) / 2
		ok, err := pred(math.Exp(mid))
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}
