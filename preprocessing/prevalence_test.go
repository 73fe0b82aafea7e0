package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

func TestPrevalence(t *testing.T) {
	// 4 samples x 3 features: present in 4, 2 and 1 samples respectively.
	XRaw := mat.NewDense(4, 3, []float64{
		3, 0, 7,
		1, 2, 0,
		8, 0, 0,
		2, 5, 0,
	})

	got, err := Prevalence(XRaw)
	if err != nil {
		t.Fatalf("Prevalence failed: %v", err)
	}

	want := []float64{1.0, 0.5, 0.25}
	for j := range want {
		if math.Abs(got[j]-want[j]) > 1e-12 {
			t.Errorf("feature %d: prevalence = %g, want %g", j, got[j], want[j])
		}
	}
}

func TestPrevalenceErrors(t *testing.T) {
	tests := []struct {
		name string
		XRaw *mat.Dense
	}{
		{
			name: "zero-prevalence feature",
			XRaw: mat.NewDense(2, 2, []float64{
				1, 0,
				2, 0,
			}),
		},
		{
			name: "negative count",
			XRaw: mat.NewDense(2, 2, []float64{
				1, -3,
				2, 4,
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Prevalence(tt.XRaw); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPrevalenceZeroFeatureSentinel(t *testing.T) {
	XRaw := mat.NewDense(2, 1, []float64{0, 0})
	_, err := Prevalence(XRaw)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !selgoErrors.Is(err, selgoErrors.ErrZeroPrevalence) {
		t.Errorf("error should wrap ErrZeroPrevalence, got %v", err)
	}
}

func TestPrevalenceEmpty(t *testing.T) {
	if _, err := Prevalence(&mat.Dense{}); err == nil {
		t.Error("expected error on empty input")
	}
}
