package penalized

import (
	"fmt"
	"sort"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// Task selects the objective the estimator optimizes.
type Task int

const (
	// TaskBinary fits mean binary cross-entropy on two-level labels.
	TaskBinary Task = iota
	// TaskMulticlass fits one-vs-rest binary cross-entropy averaged over
	// three or more classes.
	TaskMulticlass
	// TaskRegression fits mean squared error on a continuous outcome.
	TaskRegression
	// TaskCox fits a proportional-hazards partial likelihood on
	// (event, duration) pairs.
	TaskCox
)

// String returns the task name.
func (t Task) String() string {
	switch t {
	case TaskBinary:
		return "binary"
	case TaskMulticlass:
		return "multiclass"
	case TaskRegression:
		return "regression"
	case TaskCox:
		return "cox"
	default:
		return fmt.Sprintf("Task(%d)", int(t))
	}
}

// Target holds the outcome for one fit. Construct it with one of the
// NewXXXTarget constructors, which validate the task contract up front.
type Target struct {
	task Task

	// y holds numeric outcomes: 0/1 for binary, class indices for
	// multiclass, raw values for regression, event indicators for Cox.
	y []float64

	// classes holds the original level names for binary and multiclass
	// targets, index-aligned with the values in y. classes[0] is the
	// control/reference level for binary targets.
	classes []string

	// duration holds follow-up times for Cox targets, parallel to y.
	duration []float64
}

// NewBinaryTarget builds a binary target from string labels. The control
// label becomes the reference level (encoded 0); every other observed label
// must be a single second level (encoded 1).
func NewBinaryTarget(labels []string, control string) (*Target, error) {
	if len(labels) == 0 {
		return nil, selgoErrors.NewModelError("NewBinaryTarget", "empty labels", selgoErrors.ErrEmptyData)
	}

	levels := uniqueLevels(labels)
	if len(levels) != 2 {
		return nil, selgoErrors.NewValidationError("labels",
			"binary task requires exactly 2 levels", len(levels))
	}
	if levels[0] != control && levels[1] != control {
		return nil, selgoErrors.NewValidationError("control",
			"control level not present in labels", control)
	}

	y := make([]float64, len(labels))
	var positive string
	for _, level := range levels {
		if level != control {
			positive = level
		}
	}
	for i, label := range labels {
		if label != control {
			y[i] = 1
		}
	}

	return &Target{task: TaskBinary, y: y, classes: []string{control, positive}}, nil
}

// NewMulticlassTarget builds a multiclass target from string labels. At
// least three levels are required; labels with two levels belong to
// TaskBinary. Levels are ordered lexically and encoded as class indices.
func NewMulticlassTarget(labels []string) (*Target, error) {
	if len(labels) == 0 {
		return nil, selgoErrors.NewModelError("NewMulticlassTarget", "empty labels", selgoErrors.ErrEmptyData)
	}

	levels := uniqueLevels(labels)
	if len(levels) < 3 {
		return nil, selgoErrors.NewValidationError("labels",
			"multiclass task requires at least 3 levels", len(levels))
	}

	index := make(map[string]int, len(levels))
	for i, level := range levels {
		index[level] = i
	}
	y := make([]float64, len(labels))
	for i, label := range labels {
		y[i] = float64(index[label])
	}

	return &Target{task: TaskMulticlass, y: y, classes: levels}, nil
}

// NewRegressionTarget builds a continuous-outcome target.
func NewRegressionTarget(y []float64) (*Target, error) {
	if len(y) == 0 {
		return nil, selgoErrors.NewModelError("NewRegressionTarget", "empty outcome", selgoErrors.ErrEmptyData)
	}
	out := make([]float64, len(y))
	copy(out, y)
	return &Target{task: TaskRegression, y: out}, nil
}

// NewCoxTarget builds a time-to-event target from parallel event indicators
// and follow-up durations. At least one event is required, otherwise the
// partial likelihood is empty.
func NewCoxTarget(event []bool, duration []float64) (*Target, error) {
	if len(event) == 0 {
		return nil, selgoErrors.NewModelError("NewCoxTarget", "empty outcome", selgoErrors.ErrEmptyData)
	}
	if len(event) != len(duration) {
		return nil, selgoErrors.NewDimensionError("NewCoxTarget", len(event), len(duration), 0)
	}

	y := make([]float64, len(event))
	nEvents := 0
	for i, e := range event {
		if duration[i] < 0 {
			return nil, selgoErrors.NewValidationError("duration",
				fmt.Sprintf("negative duration at sample %d", i), duration[i])
		}
		if e {
			y[i] = 1
			nEvents++
		}
	}
	if nEvents == 0 {
		return nil, selgoErrors.NewValidationError("event",
			"cox task requires at least one observed event", nEvents)
	}

	d := make([]float64, len(duration))
	copy(d, duration)
	return &Target{task: TaskCox, y: y, duration: d}, nil
}

// Task returns the target's task.
func (t *Target) Task() Task {
	return t.task
}

// Len returns the number of samples.
func (t *Target) Len() int {
	return len(t.y)
}

// NClasses returns the number of class levels (0 for regression and Cox).
func (t *Target) NClasses() int {
	return len(t.classes)
}

// Classes returns the class level names for binary and multiclass targets.
func (t *Target) Classes() []string {
	out := make([]string, len(t.classes))
	copy(out, t.classes)
	return out
}

// Values returns a copy of the encoded outcomes: 0/1 for binary targets,
// class indices for multiclass, raw values for regression and event
// indicators for Cox.
func (t *Target) Values() []float64 {
	out := make([]float64, len(t.y))
	copy(out, t.y)
	return out
}

// Subset returns a new target restricted to the given sample indices.
// Used by the tuning sweep to carve train/test partitions.
func (t *Target) Subset(indices []int) *Target {
	sub := &Target{task: t.task, classes: t.classes}
	sub.y = make([]float64, len(indices))
	for i, idx := range indices {
		sub.y[i] = t.y[idx]
	}
	if t.duration != nil {
		sub.duration = make([]float64, len(indices))
		for i, idx := range indices {
			sub.duration[i] = t.duration[idx]
		}
	}
	return sub
}

// uniqueLevels returns the sorted distinct labels.
func uniqueLevels(labels []string) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, label := range labels {
		if !seen[label] {
			seen[label] = true
			levels = append(levels, label)
		}
	}
	sort.Strings(levels)
	return levels
}
