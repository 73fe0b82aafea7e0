// Package penalized implements the sparse regularized estimator at the core
// of selgo: a linear model fitted under a feature-prevalence-weighted L1
// penalty
//
//	lambda * sum_j |w_j| / p_j
//
// where p_j is the fraction of samples in which feature j has a nonzero raw
// count. Rare features need disproportionately larger coefficients to
// survive shrinkage, which protects against spurious low-prevalence signal
// without over-penalizing common features.
//
// The smooth part of the objective is task-specific (binary or one-vs-rest
// multiclass cross-entropy, squared error, or a Cox partial likelihood) and
// is optimized by RMSprop-style adaptive gradient steps. After every
// gradient step a coordinatewise soft-threshold (proximal) operator is
// applied, which drives coefficients to exact zeros and so produces true
// sparsity rather than merely small weights.
package penalized

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/selgo-ml/selgo/core/model"
	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// Convergence criteria accepted by WithConvergenceCriterion.
const (
	// CriterionLoss stops when the relative change of the penalized loss
	// between consecutive iterations falls below tol. This is the default.
	CriterionLoss = "loss"

	// CriterionWeights stops when the relative change of the weight vector
	// norm falls below tol.
	CriterionWeights = "weights"
)

// selectionTol is the magnitude below which a coefficient counts as zero.
// The proximity operator produces exact zeros; the tolerance only guards
// against floating point dust.
const selectionTol = 1e-12

// Estimator fits one penalized linear model at a fixed lambda.
//
// A single Estimator owns its weight state exclusively for the duration of
// one Fit; concurrent sweeps construct one Estimator per lambda.
type Estimator struct {
	state *model.StateManager

	// Hyperparameters
	lambda       float64 // Regularization strength
	maxIter      int     // Iteration cap
	tol          float64 // Convergence tolerance
	lr           float64 // RMSprop base learning rate
	alpha        float64 // RMSprop smoothing constant
	epsilon      float64 // RMSprop stability constant
	criterion    string  // Convergence criterion: "loss" or "weights"
	fitIntercept bool    // Whether to learn a bias term

	// Learned attributes
	task_        Task
	coef_        []float64   // Weight vector (binary, regression, cox)
	coefMatrix_  [][]float64 // Per-class weights (multiclass, nClasses x nFeatures)
	intercept_   float64
	intercepts_  []float64 // Per-class intercepts (multiclass)
	prevalence_  []float64
	lossHistory_ []float64
	converged_   bool
	nIter_       int
	nFeatures_   int

	mu sync.RWMutex
}

// NewEstimator creates an Estimator with defaults suited to standardized
// sparse count data: lambda 0, 1000 iterations, tolerance 1e-4, learning
// rate 0.01, RMSprop smoothing 0.9, epsilon 1e-8, loss-delta convergence,
// intercept on.
func NewEstimator(options ...Option) *Estimator {
	e := &Estimator{
		state:        model.NewStateManager(),
		lambda:       0,
		maxIter:      1000,
		tol:          1e-4,
		lr:           0.01,
		alpha:        0.9,
		epsilon:      1e-8,
		criterion:    CriterionLoss,
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Fit trains the estimator on X (samples x features) against y with the
// given per-feature prevalence. All contract checks run before any
// optimization: dimension agreement, prevalence in (0, 1], non-negative
// lambda and positive hyperparameters.
//
// Non-convergence within maxIter is not an error; it raises a
// ConvergenceWarning and leaves Converged() false.
func (e *Estimator) Fit(X mat.Matrix, y *Target, prevalence []float64) (err error) {
	defer selgoErrors.Recover(&err, "Estimator.Fit")
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return selgoErrors.NewModelError("Estimator.Fit", "empty design matrix", selgoErrors.ErrEmptyData)
	}
	if y.Len() != rows {
		return selgoErrors.NewDimensionError("Estimator.Fit", rows, y.Len(), 0)
	}
	if len(prevalence) != cols {
		return selgoErrors.NewDimensionError("Estimator.Fit", cols, len(prevalence), 1)
	}
	for j, p := range prevalence {
		if p <= 0 || p > 1 {
			return selgoErrors.NewValidationError("prevalence",
				"must lie in (0, 1]; zero-prevalence features must be excluded upstream", map[string]interface{}{"feature": j, "value": p})
		}
	}
	if e.lambda < 0 {
		return selgoErrors.NewValueError("Estimator.Fit", "lambda must be non-negative")
	}
	if e.maxIter <= 0 {
		return selgoErrors.NewValidationError("max_iter", "must be positive", e.maxIter)
	}
	if e.lr <= 0 {
		return selgoErrors.NewValidationError("learning_rate", "must be positive", e.lr)
	}
	if e.alpha <= 0 || e.alpha >= 1 {
		return selgoErrors.NewValidationError("alpha", "must lie in (0, 1)", e.alpha)
	}
	if e.criterion != CriterionLoss && e.criterion != CriterionWeights {
		return selgoErrors.NewValidationError("criterion", "must be \"loss\" or \"weights\"", e.criterion)
	}

	e.reset()
	e.task_ = y.Task()
	e.nFeatures_ = cols
	e.prevalence_ = make([]float64, cols)
	copy(e.prevalence_, prevalence)

	if y.Task() == TaskMulticlass {
		e.fitMulticlass(X, y)
	} else {
		w, b, hist, converged, iters := e.fitVector(X, objectiveFor(y))
		e.coef_ = w
		e.intercept_ = b
		e.lossHistory_ = hist
		e.converged_ = converged
		e.nIter_ = iters
	}

	if !e.converged_ {
		selgoErrors.Warn(selgoErrors.NewConvergenceWarning("PenalizedEstimator", e.nIter_, ""))
	}

	e.state.SetDimensions(cols, rows)
	e.state.SetFitted()
	return nil
}

// fitMulticlass decomposes the target into one-vs-rest binary problems,
// one weight vector per class, each carrying its own penalty term. The
// reported loss trajectory is the classwise average.
func (e *Estimator) fitMulticlass(X mat.Matrix, y *Target) {
	nClasses := y.NClasses()

	e.coefMatrix_ = make([][]float64, nClasses)
	e.intercepts_ = make([]float64, nClasses)
	histories := make([][]float64, nClasses)

	allConverged := true
	maxIters := 0
	for k := 0; k < nClasses; k++ {
		w, b, hist, converged, iters := e.fitVector(X, oneVsRestObjective(y, k))
		e.coefMatrix_[k] = w
		e.intercepts_[k] = b
		histories[k] = hist
		if !converged {
			allConverged = false
		}
		if iters > maxIters {
			maxIters = iters
		}
	}

	// Classes may stop at different iterations; extend each trajectory with
	// its final value before averaging.
	maxLen := 0
	for _, h := range histories {
		if len(h) > maxLen {
			maxLen = len(h)
		}
	}
	avg := make([]float64, maxLen)
	for t := 0; t < maxLen; t++ {
		sum := 0.0
		for _, h := range histories {
			idx := t
			if idx >= len(h) {
				idx = len(h) - 1
			}
			sum += h[idx]
		}
		avg[t] = sum / float64(nClasses)
	}

	e.lossHistory_ = avg
	e.converged_ = allConverged
	e.nIter_ = maxIters
}

// fitVector runs the shared optimization shell for one weight vector:
// RMSprop gradient steps on the smooth loss followed by a coordinatewise
// prevalence-scaled soft-threshold.
func (e *Estimator) fitVector(X mat.Matrix, obj objective) (w []float64, b float64, hist []float64, converged bool, iters int) {
	rows, cols := X.Dims()

	w = make([]float64, cols)
	wPrev := make([]float64, cols)
	eta := make([]float64, rows)
	gEta := make([]float64, rows)
	gw := make([]float64, cols)
	vw := make([]float64, cols) // RMSprop squared-gradient averages
	vb := 0.0
	hist = make([]float64, 0, e.maxIter)

	prevLoss := math.Inf(1)

	for iter := 0; iter < e.maxIter; iter++ {
		iters = iter + 1
		copy(wPrev, w)

		// Linear scores eta = Xw + b.
		for i := 0; i < rows; i++ {
			score := b
			for j := 0; j < cols; j++ {
				score += X.At(i, j) * w[j]
			}
			eta[i] = score
		}

		// Gradient of the smooth loss, chained through X.
		obj.scoreGrad(eta, gEta)
		for j := 0; j < cols; j++ {
			g := 0.0
			for i := 0; i < rows; i++ {
				g += gEta[i] * X.At(i, j)
			}
			gw[j] = g
		}
		gb := 0.0
		for i := 0; i < rows; i++ {
			gb += gEta[i]
		}

		// RMSprop step per coordinate, then the proximal soft-threshold
		// with the prevalence-scaled penalty weight. The threshold is
		// applied to the weight itself, so a coordinate survives only while
		// its adaptive gradient pull outruns lambda/p_j per iteration.
		for j := 0; j < cols; j++ {
			vw[j] = e.alpha*vw[j] + (1-e.alpha)*gw[j]*gw[j]
			step := e.lr / (math.Sqrt(vw[j]) + e.epsilon)
			w[j] -= step * gw[j]
			w[j] = softThreshold(w[j], e.lambda/e.prevalence_[j])
		}
		if e.fitIntercept {
			vb = e.alpha*vb + (1-e.alpha)*gb*gb
			b -= e.lr / (math.Sqrt(vb) + e.epsilon) * gb
		}

		// Penalized loss at the updated weights.
		for i := 0; i < rows; i++ {
			score := b
			for j := 0; j < cols; j++ {
				score += X.At(i, j) * w[j]
			}
			eta[i] = score
		}
		loss := obj.loss(eta) + e.penalty(w)
		if numErr := selgoErrors.CheckScalar("loss", loss, iter); numErr != nil {
			selgoErrors.Warn(numErr)
			copy(w, wPrev)
			return w, b, hist, false, iters
		}
		hist = append(hist, loss)

		switch e.criterion {
		case CriterionWeights:
			var delta, norm float64
			for j := 0; j < cols; j++ {
				d := w[j] - wPrev[j]
				delta += d * d
				norm += wPrev[j] * wPrev[j]
			}
			if iter > 0 && math.Sqrt(delta)/(math.Sqrt(norm)+e.epsilon) < e.tol {
				return w, b, hist, true, iters
			}
		default: // CriterionLoss
			if iter > 0 && math.Abs(prevLoss-loss)/math.Max(math.Abs(prevLoss), 1e-12) < e.tol {
				return w, b, hist, true, iters
			}
		}
		prevLoss = loss
	}

	return w, b, hist, false, iters
}

// penalty returns lambda * sum_j |w_j| / p_j.
func (e *Estimator) penalty(w []float64) float64 {
	if e.lambda == 0 {
		return 0
	}
	sum := 0.0
	for j, wj := range w {
		sum += math.Abs(wj) / e.prevalence_[j]
	}
	return e.lambda * sum
}

// softThreshold is the proximal operator of the L1 norm.
func softThreshold(x, threshold float64) float64 {
	if x > threshold {
		return x - threshold
	}
	if x < -threshold {
		return x + threshold
	}
	return 0
}

// Evaluate returns the penalized loss of the fitted model on a held-out
// partition. The tuning sweep uses it to score each lambda.
func (e *Estimator) Evaluate(X mat.Matrix, y *Target) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.state.IsFitted() {
		return 0, selgoErrors.NewNotFittedError("PenalizedEstimator", "Evaluate")
	}
	rows, cols := X.Dims()
	if cols != e.nFeatures_ {
		return 0, selgoErrors.NewDimensionError("Estimator.Evaluate", e.nFeatures_, cols, 1)
	}
	if y.Len() != rows {
		return 0, selgoErrors.NewDimensionError("Estimator.Evaluate", rows, y.Len(), 0)
	}
	if y.Task() != e.task_ {
		return 0, selgoErrors.NewValidationError("y", "task does not match the fitted task", y.Task().String())
	}

	if e.task_ == TaskMulticlass {
		if y.NClasses() != len(e.coefMatrix_) {
			return 0, selgoErrors.NewDimensionError("Estimator.Evaluate", len(e.coefMatrix_), y.NClasses(), 1)
		}
		sum := 0.0
		for k := range e.coefMatrix_ {
			eta := e.scores(X, e.coefMatrix_[k], e.intercepts_[k])
			sum += oneVsRestObjective(y, k).loss(eta) + e.penalty(e.coefMatrix_[k])
		}
		return sum / float64(len(e.coefMatrix_)), nil
	}

	eta := e.scores(X, e.coef_, e.intercept_)
	return objectiveFor(y).loss(eta) + e.penalty(e.coef_), nil
}

// Predict returns per-sample predictions as an n x 1 matrix: probabilities
// of the non-reference class for binary targets, fitted values for
// regression, the highest-scoring class index for multiclass, and relative
// risks exp(eta) for Cox.
func (e *Estimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.state.IsFitted() {
		return nil, selgoErrors.NewNotFittedError("PenalizedEstimator", "Predict")
	}
	rows, cols := X.Dims()
	if cols != e.nFeatures_ {
		return nil, selgoErrors.NewDimensionError("Estimator.Predict", e.nFeatures_, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	switch e.task_ {
	case TaskBinary:
		eta := e.scores(X, e.coef_, e.intercept_)
		for i, v := range eta {
			out.Set(i, 0, stableSigmoid(v))
		}
	case TaskRegression:
		eta := e.scores(X, e.coef_, e.intercept_)
		for i, v := range eta {
			out.Set(i, 0, v)
		}
	case TaskCox:
		eta := e.scores(X, e.coef_, e.intercept_)
		for i, v := range eta {
			out.Set(i, 0, selgoErrors.StabilizeExp(selgoErrors.ClipValue(v, -maxLogit, maxLogit)))
		}
	case TaskMulticlass:
		for i := 0; i < rows; i++ {
			best, bestScore := 0, math.Inf(-1)
			for k := range e.coefMatrix_ {
				score := e.intercepts_[k]
				for j := 0; j < cols; j++ {
					score += X.At(i, j) * e.coefMatrix_[k][j]
				}
				if score > bestScore {
					best, bestScore = k, score
				}
			}
			out.Set(i, 0, float64(best))
		}
	}
	return out, nil
}

// scores computes Xw + b.
func (e *Estimator) scores(X mat.Matrix, w []float64, b float64) []float64 {
	rows, cols := X.Dims()
	eta := make([]float64, rows)
	for i := 0; i < rows; i++ {
		score := b
		for j := 0; j < cols; j++ {
			score += X.At(i, j) * w[j]
		}
		eta[i] = score
	}
	return eta
}

// Coef returns the fitted weight vector. For multiclass fits it returns,
// per feature, the coefficient of largest magnitude across classes.
func (e *Estimator) Coef() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.task_ == TaskMulticlass && e.coefMatrix_ != nil {
		out := make([]float64, e.nFeatures_)
		for j := 0; j < e.nFeatures_; j++ {
			for k := range e.coefMatrix_ {
				if math.Abs(e.coefMatrix_[k][j]) > math.Abs(out[j]) {
					out[j] = e.coefMatrix_[k][j]
				}
			}
		}
		return out
	}

	out := make([]float64, len(e.coef_))
	copy(out, e.coef_)
	return out
}

// CoefMatrix returns the per-class weight matrix for multiclass fits, nil
// otherwise.
func (e *Estimator) CoefMatrix() [][]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.coefMatrix_ == nil {
		return nil
	}
	out := make([][]float64, len(e.coefMatrix_))
	for k, row := range e.coefMatrix_ {
		out[k] = make([]float64, len(row))
		copy(out[k], row)
	}
	return out
}

// Intercept returns the fitted bias term (the first class's bias for
// multiclass fits; see Intercepts).
func (e *Estimator) Intercept() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.task_ == TaskMulticlass && len(e.intercepts_) > 0 {
		return e.intercepts_[0]
	}
	return e.intercept_
}

// Intercepts returns the per-class bias terms for multiclass fits.
func (e *Estimator) Intercepts() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.intercepts_))
	copy(out, e.intercepts_)
	return out
}

// Selected reports, per feature, whether the fitted coefficient is nonzero.
// For multiclass fits a feature counts as selected when any class keeps it.
func (e *Estimator) Selected() []bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	selected := make([]bool, e.nFeatures_)
	if e.task_ == TaskMulticlass && e.coefMatrix_ != nil {
		for j := 0; j < e.nFeatures_; j++ {
			for k := range e.coefMatrix_ {
				if math.Abs(e.coefMatrix_[k][j]) > selectionTol {
					selected[j] = true
					break
				}
			}
		}
		return selected
	}
	for j, wj := range e.coef_ {
		if math.Abs(wj) > selectionTol {
			selected[j] = true
		}
	}
	return selected
}

// NSelected returns the number of selected features.
func (e *Estimator) NSelected() int {
	n := 0
	for _, s := range e.Selected() {
		if s {
			n++
		}
	}
	return n
}

// LossHistory returns the per-iteration penalized loss trajectory.
func (e *Estimator) LossHistory() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.lossHistory_))
	copy(out, e.lossHistory_)
	return out
}

// Loss returns the final training loss, or +Inf before fitting.
func (e *Estimator) Loss() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.lossHistory_) == 0 {
		return math.Inf(1)
	}
	return e.lossHistory_[len(e.lossHistory_)-1]
}

// Converged reports whether the last fit satisfied the convergence
// criterion before hitting the iteration cap.
func (e *Estimator) Converged() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.converged_
}

// NIter returns the number of iterations executed by the last fit.
func (e *Estimator) NIter() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nIter_
}

// IsFitted returns whether the estimator has been fitted.
func (e *Estimator) IsFitted() bool {
	return e.state.IsFitted()
}

// Lambda returns the configured regularization strength.
func (e *Estimator) Lambda() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lambda
}

// GetParams returns the hyperparameters.
func (e *Estimator) GetParams() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"lambda":        e.lambda,
		"max_iter":      e.maxIter,
		"tol":           e.tol,
		"learning_rate": e.lr,
		"alpha":         e.alpha,
		"epsilon":       e.epsilon,
		"criterion":     e.criterion,
		"fit_intercept": e.fitIntercept,
	}
}

// reset clears learned state ahead of a fresh fit.
func (e *Estimator) reset() {
	e.coef_ = nil
	e.coefMatrix_ = nil
	e.intercept_ = 0
	e.intercepts_ = nil
	e.prevalence_ = nil
	e.lossHistory_ = nil
	e.converged_ = false
	e.nIter_ = 0
	e.nFeatures_ = 0
	e.state.Reset()
}
