// Package metrics provides the evaluation metrics used when scoring
// penalized fits on a held-out partition.
//
// All functions take gonum vectors, validate dimensions up front and return
// typed errors from pkg/errors on contract violations.
package metrics

import (
	"gonum.org/v1/gonum/mat"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// MSE calculates the mean squared error between true and predicted values.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, selgoErrors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, selgoErrors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// LogLoss calculates the mean binary cross-entropy between true labels in
// {0, 1} and predicted probabilities. Probabilities are clipped away from 0
// and 1 before taking logarithms.
func LogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, selgoErrors.NewValueError("LogLoss", "empty vector")
	}
	if yProb.Len() != n {
		return 0, selgoErrors.NewDimensionError("LogLoss", n, yProb.Len(), 0)
	}

	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		p := selgoErrors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		if yTrue.AtVec(i) != 0 {
			sum -= selgoErrors.StabilizeLog(p)
		} else {
			sum -= selgoErrors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Accuracy calculates the fraction of exactly matching labels.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, selgoErrors.NewValueError("Accuracy", "empty vector")
	}
	if yPred.Len() != n {
		return 0, selgoErrors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
