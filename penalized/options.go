package penalized

// Option is a configuration option for Estimator.
type Option func(*Estimator)

// WithLambda sets the regularization strength. Zero disables the penalty.
func WithLambda(lambda float64) Option {
	return func(e *Estimator) {
		e.lambda = lambda
	}
}

// WithMaxIter sets the iteration cap of the optimization loop.
func WithMaxIter(maxIter int) Option {
	return func(e *Estimator) {
		e.maxIter = maxIter
	}
}

// WithTol sets the convergence tolerance.
func WithTol(tol float64) Option {
	return func(e *Estimator) {
		e.tol = tol
	}
}

// WithLearningRate sets the RMSprop base learning rate.
func WithLearningRate(lr float64) Option {
	return func(e *Estimator) {
		e.lr = lr
	}
}

// WithAlpha sets the RMSprop smoothing constant, the decay of the
// exponential moving average of squared gradients.
func WithAlpha(alpha float64) Option {
	return func(e *Estimator) {
		e.alpha = alpha
	}
}

// WithEpsilon sets the numerical stability constant added to the RMSprop
// denominator.
func WithEpsilon(epsilon float64) Option {
	return func(e *Estimator) {
		e.epsilon = epsilon
	}
}

// WithConvergenceCriterion selects the stopping rule: CriterionLoss stops on
// the relative change of the penalized loss, CriterionWeights on the
// relative change of the weight vector norm.
func WithConvergenceCriterion(criterion string) Option {
	return func(e *Estimator) {
		e.criterion = criterion
	}
}

// WithFitIntercept controls whether a bias term is learned.
func WithFitIntercept(fit bool) Option {
	return func(e *Estimator) {
		e.fitIntercept = fit
	}
}
