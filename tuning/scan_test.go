package tuning

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/selgo-ml/selgo/penalized"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
	"github.com/selgo-ml/selgo/preprocessing"
)

func init() {
	// Keep convergence warnings out of test output.
	selgoErrors.SetZerologWarnFunc(func(error) {})
}

// makeBinaryData builds a small sparse count matrix with a clear binary
// signal: the first feature tracks the label, the rest are noise counts.
// Returns the raw counts, a standardized copy and the encoded target.
func makeBinaryData(t *testing.T, samples, features int) (XRaw, X *mat.Dense, y *penalized.Target) {
	t.Helper()

	rng := rand.New(rand.NewPCG(99, 99))
	XRaw = mat.NewDense(samples, features, nil)
	labels := make([]string, samples)
	for i := 0; i < samples; i++ {
		if i < samples/2 {
			labels[i] = "crc"
			XRaw.Set(i, 0, float64(20+rng.IntN(10)))
		} else {
			labels[i] = "control"
			XRaw.Set(i, 0, float64(1+rng.IntN(3)))
		}
		for j := 1; j < features; j++ {
			// Sparse counts; guarantee at least one nonzero per column.
			if rng.Float64() < 0.4 || i == j%samples {
				XRaw.Set(i, j, float64(1+rng.IntN(12)))
			}
		}
	}

	X = mat.DenseCopyOf(XRaw)
	standardizeCols(X)

	y, err := penalized.NewBinaryTarget(labels, "control")
	require.NoError(t, err)
	return XRaw, X, y
}

// standardizeCols centers and scales each column in place.
func standardizeCols(X *mat.Dense) {
	rows, cols := X.Dims()
	for j := 0; j < cols; j++ {
		mean, sq := 0.0, 0.0
		for i := 0; i < rows; i++ {
			mean += X.At(i, j)
		}
		mean /= float64(rows)
		for i := 0; i < rows; i++ {
			d := X.At(i, j) - mean
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(rows))
		if sd < 1e-8 {
			sd = 1
		}
		for i := 0; i < rows; i++ {
			X.Set(i, j, (X.At(i, j)-mean)/sd)
		}
	}
}

func prevalenceOf(t *testing.T, XRaw mat.Matrix) []float64 {
	t.Helper()
	p, err := preprocessing.Prevalence(XRaw)
	require.NoError(t, err)
	return p
}

func fastFit() ScanOption {
	return WithScanEstimatorOptions(penalized.WithMaxIter(200))
}

func TestScanRange(t *testing.T) {
	XRaw, X, y := makeBinaryData(t, 12, 40)

	step := 30
	logLambdas, err := Scan(X, XRaw, y, step, fastFit())
	require.NoError(t, err)
	require.Len(t, logLambdas, step)

	low := math.Log(DefaultScanLow)
	high := math.Log(DefaultScanHigh)
	for i, ll := range logLambdas {
		assert.GreaterOrEqual(t, ll, low, "point %d below search bound", i)
		assert.LessOrEqual(t, ll, high, "point %d above search bound", i)
		if i > 0 {
			assert.Greater(t, ll, logLambdas[i-1], "range must be strictly increasing")
		}
	}

	// Evenly spaced in log space.
	width := logLambdas[1] - logLambdas[0]
	for i := 2; i < step; i++ {
		assert.InDelta(t, width, logLambdas[i]-logLambdas[i-1], 1e-9)
	}
}

func TestScanBoundaryProperties(t *testing.T) {
	XRaw, X, y := makeBinaryData(t, 12, 40)

	logLambdas, err := Scan(X, XRaw, y, 10, fastFit())
	require.NoError(t, err)

	_, cols := X.Dims()
	prevalence := prevalenceOf(t, XRaw)

	fitAt := func(logLambda float64) int {
		est := penalized.NewEstimator(penalized.WithMaxIter(200), penalized.WithLambda(math.Exp(logLambda)))
		require.NoError(t, est.Fit(X, y, prevalence))
		return est.NSelected()
	}

	// Below the bracketed range the penalty does not filter yet; above it,
	// nothing survives.
	assert.Equal(t, cols, fitAt(logLambdas[0]-2))
	assert.Equal(t, 0, fitAt(logLambdas[len(logLambdas)-1]+2))
}

func TestScanBoundaryErrors(t *testing.T) {
	XRaw, X, y := makeBinaryData(t, 12, 20)

	tests := []struct {
		name     string
		low      float64
		high     float64
		boundary string
	}{
		{"filtering starts below bounds", 0.05, 0.1, "lower"},
		{"filtering never completes inside bounds", 1e-12, 1e-8, "upper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(X, XRaw, y, 10, fastFit(), WithScanBounds(tt.low, tt.high))
			require.Error(t, err)

			var boundaryErr *selgoErrors.BoundaryError
			require.True(t, selgoErrors.As(err, &boundaryErr))
			assert.Equal(t, tt.boundary, boundaryErr.Boundary)
		})
	}
}

func TestScanInputContracts(t *testing.T) {
	XRaw, X, y := makeBinaryData(t, 12, 8)

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "step below 2",
			run: func() error {
				_, err := Scan(X, XRaw, y, 1, fastFit())
				return err
			},
		},
		{
			name: "inverted bounds",
			run: func() error {
				_, err := Scan(X, XRaw, y, 10, fastFit(), WithScanBounds(1e-2, 1e-6))
				return err
			},
		},
		{
			name: "raw/design shape mismatch",
			run: func() error {
				_, err := Scan(X, mat.NewDense(12, 5, nil), y, 10, fastFit())
				return err
			},
		},
		{
			name: "label count mismatch",
			run: func() error {
				short, err := penalized.NewBinaryTarget(
					[]string{"a", "b", "a", "b", "a", "b", "a", "b", "a"}, "a")
				require.NoError(t, err)
				_, err = Scan(X, XRaw, short, 10, fastFit())
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.run())
		})
	}
}

func TestScanColumnMismatchReportsFeatureAxis(t *testing.T) {
	_, X, y := makeBinaryData(t, 12, 8)

	_, err := Scan(X, mat.NewDense(12, 5, nil), y, 10, fastFit())
	require.Error(t, err)

	var dimErr *selgoErrors.DimensionError
	require.True(t, selgoErrors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Axis)
	assert.Equal(t, 8, dimErr.Expected)
	assert.Equal(t, 5, dimErr.Got)
}

func TestBisect(t *testing.T) {
	// pred flips at log-lambda = -5.
	got, err := bisect(-10, 0, 30, func(lambda float64) (bool, error) {
		return math.Log(lambda) >= -5, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, -5, got, 1e-6)
}
