package pipeline

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/selgo-ml/selgo/penalized"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

func init() {
	// Keep convergence warnings out of test output.
	selgoErrors.SetZerologWarnFunc(func(error) {})
}

// makeCohort builds a microbiome-shaped toy cohort: a raw count matrix
// with many more features than samples, a handful of taxa tracking the
// case/control labels and the rest sparse noise.
func makeCohort(t *testing.T, samples, features int) (XRaw *mat.Dense, y *penalized.Target, ids []string) {
	t.Helper()

	rng := rand.New(rand.NewPCG(2024, 2024))
	XRaw = mat.NewDense(samples, features, nil)
	labels := make([]string, samples)
	nCases := samples * 6 / 10

	for i := 0; i < samples; i++ {
		isCase := i < nCases
		if isCase {
			labels[i] = "crc"
		} else {
			labels[i] = "control"
		}
		for j := 0; j < features; j++ {
			switch {
			case j < 5 && isCase:
				XRaw.Set(i, j, float64(30+rng.IntN(20)))
			case j < 5:
				XRaw.Set(i, j, float64(1+rng.IntN(4)))
			default:
				if rng.Float64() < 0.5 || i == j%samples {
					XRaw.Set(i, j, float64(1+rng.IntN(15)))
				}
			}
		}
	}

	ids = make([]string, features)
	for j := range ids {
		ids[j] = fmt.Sprintf("taxon_%03d", j)
	}

	target, err := penalized.NewBinaryTarget(labels, "control")
	require.NoError(t, err)
	return XRaw, target, ids
}

func TestFeatureSelectorEndToEnd(t *testing.T) {
	samples, features := 10, 100
	XRaw, y, ids := makeCohort(t, samples, features)
	X := mat.DenseCopyOf(XRaw)

	fs := NewFeatureSelector(
		WithStep(30),
		WithEstimatorOptions(penalized.WithMaxIter(300)),
	)
	report, err := fs.Run(X, XRaw, y, ids)
	require.NoError(t, err)

	// The swept range stays inside the default search bounds and is
	// strictly increasing.
	require.Len(t, report.Table.Rows, 30)
	low, high := math.Log(1e-10), math.Log(1e-1)
	prev := math.Inf(-1)
	for _, row := range report.Table.Rows {
		assert.GreaterOrEqual(t, row.LogLambda, low)
		assert.LessOrEqual(t, row.LogLambda, high)
		assert.Greater(t, row.LogLambda, prev)
		prev = row.LogLambda
	}

	// The chosen lambda lies strictly inside the swept range and keeps a
	// non-trivial subset of the features.
	assert.Greater(t, report.Lambda, math.Exp(report.Table.Rows[0].LogLambda))
	assert.Less(t, report.Lambda, math.Exp(report.Table.Rows[29].LogLambda))
	assert.Greater(t, report.NSelected, 0, "selection must keep at least one feature")
	assert.Less(t, report.NSelected, features, "selection must drop at least one feature")

	require.Len(t, report.Coefficients, features)
	nSelected := 0
	for id, c := range report.Coefficients {
		if c.Selected {
			nSelected++
			assert.NotZero(t, c.Value, "%s marked selected but has zero weight", id)
		} else {
			assert.Zero(t, c.Value, "%s marked dropped but has nonzero weight", id)
		}
	}
	assert.Equal(t, report.NSelected, nSelected)

	require.NotNil(t, report.Decision)
	assert.Equal(t, report.Decision.Lambda, report.Lambda)

	// The final fit carries the task-matched training score.
	assert.Equal(t, "log_loss", report.MetricName)
	assert.False(t, math.IsNaN(report.TrainMetric))
	assert.Greater(t, report.TrainMetric, 0.0)
	assert.Less(t, report.TrainMetric, math.Log(2), "a fit keeping signal taxa must beat the coin-flip cross-entropy")
}

func TestFeatureSelectorRegressionMetric(t *testing.T) {
	samples, features := 12, 40
	XRaw, _, ids := makeCohort(t, samples, features)
	X := mat.DenseCopyOf(XRaw)

	// Continuous outcome driven by the first signal taxon.
	outcome := make([]float64, samples)
	for i := range outcome {
		outcome[i] = 0.1 * XRaw.At(i, 0)
	}
	y, err := penalized.NewRegressionTarget(outcome)
	require.NoError(t, err)

	fs := NewFeatureSelector(
		WithStep(20),
		WithEstimatorOptions(penalized.WithMaxIter(300)),
	)
	report, err := fs.Run(X, XRaw, y, ids)
	require.NoError(t, err)

	assert.Equal(t, "mse", report.MetricName)
	assert.False(t, math.IsNaN(report.TrainMetric))
	assert.GreaterOrEqual(t, report.TrainMetric, 0.0)
}

func TestFeatureSelectorPersistsArtifacts(t *testing.T) {
	XRaw, y, ids := makeCohort(t, 10, 60)
	X := mat.DenseCopyOf(XRaw)
	dir := t.TempDir()

	fs := NewFeatureSelector(
		WithStep(20),
		WithEstimatorOptions(penalized.WithMaxIter(300)),
		WithOutputDir(dir),
	)
	_, err := fs.Run(X, XRaw, y, ids)
	require.NoError(t, err)

	for _, name := range []string{"tuning_table.csv", "prevalence_dist.csv", "loss_curve.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "artifact %s", name)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestFeatureSelectorInputContracts(t *testing.T) {
	XRaw, y, ids := makeCohort(t, 10, 20)
	X := mat.DenseCopyOf(XRaw)

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "label count mismatch aborts before fitting",
			run: func() error {
				labels := make([]string, 9)
				for i := range labels {
					if i%2 == 0 {
						labels[i] = "crc"
					} else {
						labels[i] = "control"
					}
				}
				short, err := penalized.NewBinaryTarget(labels, "control")
				require.NoError(t, err)
				_, err = NewFeatureSelector().Run(X, XRaw, short, ids)
				return err
			},
		},
		{
			name: "feature id count mismatch",
			run: func() error {
				_, err := NewFeatureSelector().Run(X, XRaw, y, ids[:5])
				return err
			},
		},
		{
			name: "empty design",
			run: func() error {
				_, err := NewFeatureSelector().Run(&mat.Dense{}, &mat.Dense{}, y, nil)
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
