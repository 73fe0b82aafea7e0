package tuning

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
	"github.com/selgo-ml/selgo/pkg/log"
)

// Decide defaults, matching the conventional complexity controls of a
// recursive-partitioning regression.
const (
	DefaultMaxDepth   = 3
	DefaultMinBucket  = 3
	DefaultMinImprove = 0.01
)

// DecideOption configures Decide.
type DecideOption func(*decideConfig)

type decideConfig struct {
	maxDepth   int
	minBucket  int
	minImprove float64
}

// WithMaxDepth caps the depth of the partitioning tree.
func WithMaxDepth(depth int) DecideOption {
	return func(c *decideConfig) {
		c.maxDepth = depth
	}
}

// WithMinBucket sets the minimum number of points per sub-range.
func WithMinBucket(minBucket int) DecideOption {
	return func(c *decideConfig) {
		c.minBucket = minBucket
	}
}

// WithMinImprove sets the minimum fraction of the total sum of squared
// errors a split must remove to be accepted. Flat or near-constant loss
// curves produce no acceptable split and fail the decision.
func WithMinImprove(minImprove float64) DecideOption {
	return func(c *decideConfig) {
		c.minImprove = minImprove
	}
}

// splitNode is one node of the 1-D partitioning tree over log-lambda.
type splitNode struct {
	lo, hi     int // Point range [lo, hi)
	isLeaf     bool
	breakpoint float64 // Split position in log-lambda (internal nodes)
	mean       float64 // Range mean (leaves)
	depth      int
	left       *splitNode
	right      *splitNode
}

// Decision is the outcome of an inflection search: the chosen lambda plus
// the diagnostic curves needed to inspect or plot the segmented fit.
type Decision struct {
	// Lambda is the chosen regularization strength (natural scale).
	Lambda float64

	// LogLambda is the chosen breakpoint in log space.
	LogLambda float64

	// Breakpoints lists every split position found, ascending.
	Breakpoints []float64

	// LogLambdas and Losses echo the tuning curve the decision was made on.
	LogLambdas []float64
	Losses     []float64

	// Fitted holds the per-point segment means of the piecewise-constant
	// fit, parallel to LogLambdas.
	Fitted []float64
}

// Decide fits a recursive binary-partitioning regression over the
// (log-lambda, loss) pairs of the tuning table and returns the first
// breakpoint in ascending log-lambda order as the optimal lambda: the point
// where the slope of the loss curve changes most sharply, read as the
// transition from "penalty negligible" to "penalty dominates".
//
// Splits at the same depth tie-break toward the smallest log-lambda. A
// curve with no split that clears the improvement threshold (flat or
// near-constant loss) fails with a DecisionError; no fallback lambda is
// ever chosen.
func Decide(table *Table, opts ...DecideOption) (*Decision, error) {
	cfg := &decideConfig{maxDepth: DefaultMaxDepth, minBucket: DefaultMinBucket, minImprove: DefaultMinImprove}
	for _, opt := range opts {
		opt(cfg)
	}

	if table == nil || len(table.Rows) == 0 {
		return nil, selgoErrors.NewModelError("Decide", "empty tuning table", selgoErrors.ErrEmptyData)
	}
	if cfg.maxDepth < 1 {
		return nil, selgoErrors.NewValidationError("max_depth", "must be at least 1", cfg.maxDepth)
	}
	if cfg.minBucket < 1 {
		return nil, selgoErrors.NewValidationError("min_bucket", "must be at least 1", cfg.minBucket)
	}

	x := table.LogLambdas()
	y := table.Losses()
	n := len(x)
	for i := 1; i < n; i++ {
		if x[i] <= x[i-1] {
			return nil, selgoErrors.NewValidationError("tuning_table",
				"rows must be strictly ordered by ascending lambda", i)
		}
	}
	if n < 2*cfg.minBucket {
		return nil, selgoErrors.NewDecisionError("fewer points than two minimum buckets", n)
	}

	totalSSE := rangeSSE(y, 0, n)

	root := buildSplits(x, y, 0, n, 0, cfg, totalSSE)
	if root.isLeaf {
		return nil, selgoErrors.NewDecisionError("loss curve has no detectable breakpoint", n)
	}

	var breakpoints []float64
	collectBreakpoints(root, &breakpoints)
	sort.Float64s(breakpoints)

	fitted := make([]float64, n)
	fillFitted(root, fitted)

	decision := &Decision{
		LogLambda:   breakpoints[0],
		Lambda:      math.Exp(breakpoints[0]),
		Breakpoints: breakpoints,
		LogLambdas:  x,
		Losses:      y,
		Fitted:      fitted,
	}

	logger := log.WithComponent("tuning")
	logger.Debug().
		Float64("lambda", decision.Lambda).
		Int("breakpoints", len(breakpoints)).
		Msg("inflection decided")

	return decision, nil
}

// buildSplits recursively partitions the point range [lo, hi). A split is
// accepted only when it removes at least minImprove of the total SSE and
// leaves minBucket points on both sides; otherwise the range stays a leaf.
func buildSplits(x, y []float64, lo, hi, depth int, cfg *decideConfig, totalSSE float64) *splitNode {
	node := &splitNode{lo: lo, hi: hi, depth: depth, mean: rangeMean(y, lo, hi)}

	if depth >= cfg.maxDepth || hi-lo < 2*cfg.minBucket {
		node.isLeaf = true
		return node
	}

	parentSSE := rangeSSE(y, lo, hi)
	bestSplit := -1
	bestSSE := math.Inf(1)

	// Candidate split s partitions into [lo, s) and [s, hi). Scanning in
	// ascending order and demanding a strict improvement keeps ties at the
	// smallest log-lambda.
	for s := lo + cfg.minBucket; s <= hi-cfg.minBucket; s++ {
		combined := rangeSSE(y, lo, s) + rangeSSE(y, s, hi)
		if combined < bestSSE {
			bestSSE = combined
			bestSplit = s
		}
	}

	if bestSplit < 0 || totalSSE <= 0 || (parentSSE-bestSSE)/totalSSE < cfg.minImprove {
		node.isLeaf = true
		return node
	}

	// Breakpoint at the midpoint between the neighboring points, the
	// threshold convention of a CART split.
	node.breakpoint = (x[bestSplit-1] + x[bestSplit]) / 2
	node.left = buildSplits(x, y, lo, bestSplit, depth+1, cfg, totalSSE)
	node.right = buildSplits(x, y, bestSplit, hi, depth+1, cfg, totalSSE)
	return node
}

// collectBreakpoints gathers every internal node's split position.
func collectBreakpoints(node *splitNode, out *[]float64) {
	if node == nil || node.isLeaf {
		return
	}
	*out = append(*out, node.breakpoint)
	collectBreakpoints(node.left, out)
	collectBreakpoints(node.right, out)
}

// fillFitted writes each leaf's mean into the fitted curve.
func fillFitted(node *splitNode, fitted []float64) {
	if node == nil {
		return
	}
	if node.isLeaf {
		for i := node.lo; i < node.hi; i++ {
			fitted[i] = node.mean
		}
		return
	}
	fillFitted(node.left, fitted)
	fillFitted(node.right, fitted)
}

// rangeMean returns the mean of y[lo:hi].
func rangeMean(y []float64, lo, hi int) float64 {
	return floats.Sum(y[lo:hi]) / float64(hi-lo)
}

// rangeSSE returns the sum of squared errors of y[lo:hi] around its mean.
func rangeSSE(y []float64, lo, hi int) float64 {
	mean := rangeMean(y, lo, hi)
	sse := 0.0
	for i := lo; i < hi; i++ {
		d := y[i] - mean
		sse += d * d
	}
	return sse
}
