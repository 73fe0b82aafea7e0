package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// Prevalence computes the per-feature prevalence from a raw count matrix:
// the fraction of samples in which the feature has a nonzero count. XRaw
// has samples as rows and features as columns.
//
// Every prevalence lies in (0, 1]. A zero-prevalence feature makes the
// prevalence-weighted penalty undefined, so its presence is an input
// contract violation and must be filtered upstream; negative counts are
// rejected for the same reason.
func Prevalence(XRaw mat.Matrix) ([]float64, error) {
	r, c := XRaw.Dims()
	if r == 0 || c == 0 {
		return nil, selgoErrors.NewModelError("Prevalence", "empty data", selgoErrors.ErrEmptyData)
	}

	prevalence := make([]float64, c)
	for j := 0; j < c; j++ {
		nonzero := 0
		for i := 0; i < r; i++ {
			v := XRaw.At(i, j)
			if v < 0 {
				return nil, selgoErrors.NewValidationError("XRaw",
					fmt.Sprintf("negative count at sample %d, feature %d", i, j), v)
			}
			if v != 0 {
				nonzero++
			}
		}
		if nonzero == 0 {
			return nil, selgoErrors.NewModelError("Prevalence",
				fmt.Sprintf("feature %d has no nonzero counts", j), selgoErrors.ErrZeroPrevalence)
		}
		prevalence[j] = float64(nonzero) / float64(r)
	}

	return prevalence, nil
}
