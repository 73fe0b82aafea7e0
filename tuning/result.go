package tuning

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	selgoErrors "github.com/selgo-ml/selgo/pkg/errors"
)

// Row is the tuning record for one lambda: the held-out loss of the fit,
// how many features survived, whether the fit converged and the mean
// prevalence of the surviving features. Rows are keyed by lambda and the
// table keeps them in ascending lambda order.
type Row struct {
	Lambda         float64
	LogLambda      float64
	Loss           float64
	NSelected      int
	Converged      bool
	MeanPrevalence float64
}

// Table is the tuning table produced by Sweep, ordered by ascending lambda.
// The ordering is a correctness requirement for Decide, not cosmetic.
type Table struct {
	Rows []Row
}

// LogLambdas returns the log-lambda column.
func (t *Table) LogLambdas() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.LogLambda
	}
	return out
}

// Losses returns the loss column.
func (t *Table) Losses() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Loss
	}
	return out
}

// WriteCSV writes the table as a delimited text table, one row per lambda.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lambda", "log_lambda", "loss", "n_selected", "converged", "mean_prevalence"}); err != nil {
		return selgoErrors.Wrap(err, "write tuning table header")
	}
	for _, r := range t.Rows {
		record := []string{
			strconv.FormatFloat(r.Lambda, 'g', -1, 64),
			strconv.FormatFloat(r.LogLambda, 'g', -1, 64),
			strconv.FormatFloat(r.Loss, 'g', -1, 64),
			strconv.Itoa(r.NSelected),
			strconv.FormatBool(r.Converged),
			strconv.FormatFloat(r.MeanPrevalence, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return selgoErrors.Wrap(err, "write tuning table row")
		}
	}
	cw.Flush()
	return selgoErrors.WithStack(cw.Error())
}

// SaveCSV writes the table to a file.
func (t *Table) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return selgoErrors.Wrap(err, "create tuning table file")
	}
	defer f.Close()
	return t.WriteCSV(f)
}

// PvlBucket is one prevalence decile of the features selected at one
// lambda.
type PvlBucket struct {
	Lambda    float64
	LogLambda float64
	Low       float64 // Bucket lower edge, exclusive
	High      float64 // Bucket upper edge, inclusive
	Count     int     // Selected features whose prevalence falls in the bucket
}

// PvlDist summarizes, per swept lambda, how the prevalence of the selected
// features distributes across deciles. One row per (lambda, bucket) pair.
type PvlDist struct {
	Buckets []PvlBucket
}

// WriteCSV writes the distribution as a delimited text table.
func (d *PvlDist) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lambda", "log_lambda", "bucket_low", "bucket_high", "count"}); err != nil {
		return selgoErrors.Wrap(err, "write prevalence distribution header")
	}
	for _, b := range d.Buckets {
		record := []string{
			strconv.FormatFloat(b.Lambda, 'g', -1, 64),
			strconv.FormatFloat(b.LogLambda, 'g', -1, 64),
			strconv.FormatFloat(b.Low, 'g', -1, 64),
			strconv.FormatFloat(b.High, 'g', -1, 64),
			strconv.Itoa(b.Count),
		}
		if err := cw.Write(record); err != nil {
			return selgoErrors.Wrap(err, "write prevalence distribution row")
		}
	}
	cw.Flush()
	return selgoErrors.WithStack(cw.Error())
}

// SaveCSV writes the distribution to a file.
func (d *PvlDist) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return selgoErrors.Wrap(err, "create prevalence distribution file")
	}
	defer f.Close()
	return d.WriteCSV(f)
}
