package penalized

import (
	"math"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// objective supplies the smooth (unpenalized) part of the fitting problem
// for one weight vector. The optimizer shell is task-agnostic: it asks the
// objective for the data loss at the current linear scores eta = Xw + b and
// for the gradient of that loss with respect to eta, then chains through X
// itself. The penalty and the proximal step never enter the objective.
type objective interface {
	// loss returns the mean data loss at the given linear scores.
	loss(eta []float64) float64

	// scoreGrad writes dLoss/dEta into out. len(out) == len(eta).
	scoreGrad(eta []float64, out []float64)
}

// maxLogit bounds linear scores before exponentiating. Keeps sigmoid and
// hazard terms finite for extreme weights.
const maxLogit = 30.0

// stableSigmoid computes sigmoid(z) without overflow.
func stableSigmoid(z float64) float64 {
	z = selgoErrors.ClipValue(z, -maxLogit, maxLogit)
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1.0 + ez)
}

// binaryObjective is mean binary cross-entropy on labels in {0, 1}.
type binaryObjective struct {
	y []float64
}

func (o *binaryObjective) loss(eta []float64) float64 {
	n := len(o.y)
	sum := 0.0
	for i, e := range eta {
		p := stableSigmoid(e)
		if o.y[i] != 0 {
			sum -= selgoErrors.StabilizeLog(p)
		} else {
			sum -= selgoErrors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n)
}

func (o *binaryObjective) scoreGrad(eta []float64, out []float64) {
	n := float64(len(o.y))
	for i, e := range eta {
		out[i] = (stableSigmoid(e) - o.y[i]) / n
	}
}

// regressionObjective is mean squared error on a continuous outcome.
type regressionObjective struct {
	y []float64
}

func (o *regressionObjective) loss(eta []float64) float64 {
	n := len(o.y)
	sum := 0.0
	for i, e := range eta {
		diff := e - o.y[i]
		sum += diff * diff
	}
	return sum / float64(n)
}

func (o *regressionObjective) scoreGrad(eta []float64, out []float64) {
	n := float64(len(o.y))
	for i, e := range eta {
		out[i] = 2 * (e - o.y[i]) / n
	}
}

// coxObjective is the negative Cox partial log-likelihood with an
// exponential risk term. The baseline hazard cancels out of the ratio, so
// only relative risks exp(eta) appear. Risk sets are formed over samples
// whose duration is at least the event time.
type coxObjective struct {
	event    []float64
	duration []float64
}

// nEvents counts observed events; the loss is normalized by it.
func (o *coxObjective) nEvents() int {
	n := 0
	for _, e := range o.event {
		if e != 0 {
			n++
		}
	}
	return n
}

func (o *coxObjective) loss(eta []float64) float64 {
	m := o.nEvents()
	if m == 0 {
		return 0
	}

	sum := 0.0
	for i := range eta {
		if o.event[i] == 0 {
			continue
		}
		etaI := selgoErrors.ClipValue(eta[i], -maxLogit, maxLogit)
		riskSum := 0.0
		for j := range eta {
			if o.duration[j] >= o.duration[i] {
				riskSum += selgoErrors.StabilizeExp(selgoErrors.ClipValue(eta[j], -maxLogit, maxLogit))
			}
		}
		sum -= etaI - selgoErrors.StabilizeLog(riskSum)
	}
	return sum / float64(m)
}

func (o *coxObjective) scoreGrad(eta []float64, out []float64) {
	m := o.nEvents()
	for i := range out {
		out[i] = 0
	}
	if m == 0 {
		return
	}

	expEta := make([]float64, len(eta))
	for i, e := range eta {
		expEta[i] = selgoErrors.StabilizeExp(selgoErrors.ClipValue(e, -maxLogit, maxLogit))
	}

	for i := range eta {
		if o.event[i] == 0 {
			continue
		}
		riskSum := 0.0
		for j := range eta {
			if o.duration[j] >= o.duration[i] {
				riskSum += expEta[j]
			}
		}
		if riskSum <= 0 {
			continue
		}
		for j := range eta {
			if o.duration[j] >= o.duration[i] {
				out[j] += expEta[j] / riskSum / float64(m)
			}
		}
		out[i] -= 1.0 / float64(m)
	}
}

// objectiveFor builds the vector objective for a target. Multiclass targets
// are decomposed into one-vs-rest binary objectives by the estimator, so
// they never reach this constructor directly.
func objectiveFor(t *Target) objective {
	switch t.task {
	case TaskBinary:
		return &binaryObjective{y: t.y}
	case TaskRegression:
		return &regressionObjective{y: t.y}
	case TaskCox:
		return &coxObjective{event: t.y, duration: t.duration}
	default:
		return nil
	}
}

// oneVsRestObjective builds the binary objective for class index k of a
// multiclass target.
func oneVsRestObjective(t *Target, k int) objective {
	y := make([]float64, len(t.y))
	for i, v := range t.y {
		if int(v) == k {
			y[i] = 1
		}
	}
	return &binaryObjective{y: y}
}
