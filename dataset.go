package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDatasetFormat is returned for malformed dataset files.
var ErrDatasetFormat = errors.New("dataset: malformed file")

// Dataset pairs inputs X [n × x_dim] with targets Y [n × y_dim].
type Dataset struct {
	X *Tensor
	Y *Tensor
}

// NewDataset checks that x and y have the same number of rows.
func NewDataset(x, y *Tensor) (*Dataset, error) {
	if x.Dims() != 2 || y.Dims() != 2 || x.shape[0] != y.shape[0] {
		return nil, fmt.Errorf("x %v and y %v: %w", x.shape, y.shape, ErrShapeMismatch)
	}
	return &Dataset{X: x, Y: y}, nil
}

// Len is the number of rows.
func (d *Dataset) Len() int { return d.X.shape[0] }

// XDim is the input width.
func (d *Dataset) XDim() int { return d.X.shape[1] }

// YDim is the target width.
func (d *Dataset) YDim() int { return d.Y.shape[1] }

// InvertedSinusoid is the textbook multi-valued regression problem:
//
//	t ~ U(0, 1), x = t + 0.3 sin(2πt) + ε, ε ~ U(-noise, noise)
//
// with x the input and t the target. For x near 0.5 there are three valid
// targets, so a unimodal regressor fails. Both columns are rescaled to
// [-2.5, 2.5] to sit inside the default plot limits.
func InvertedSinusoid(n int, noise float64, src rand.Source) *Dataset {
	x := NewTensor(n, 1)
	y := NewTensor(n, 1)

	unit := distuv.Uniform{Min: 0, Max: 1, Src: src}
	eps := distuv.Uniform{Min: -noise, Max: noise, Src: src}

	for i := 0; i < n; i++ {
		t := unit.Rand()
		x.data[i] = t + 0.3*math.Sin(2*math.Pi*t) + eps.Rand()
		y.data[i] = t
	}

	rescale(x.data, -2.5, 2.5)
	rescale(y.data, -2.5, 2.5)
	return &Dataset{X: x, Y: y}
}

// TwoBranch is a two-output heteroscedastic problem on x ~ U(-1, 1):
//
//	y0 = sin(πx) + |x|·ε0
//	y1 = ±(1.5x) + 0.1·ε1   (branch picked by a fair coin)
//
// y0 has input-dependent noise (aleatoric), y1 is bimodal (a mixture is
// needed to represent it).
func TwoBranch(n int, src rand.Source) *Dataset {
	x := NewTensor(n, 1)
	y := NewTensor(n, 2)

	input := distuv.Uniform{Min: -1, Max: 1, Src: src}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	coin := distuv.Bernoulli{P: 0.5, Src: src}

	for i := 0; i < n; i++ {
		v := input.Rand()
		x.data[i] = v
		y.data[2*i] = math.Sin(math.Pi*v) + math.Abs(v)*normal.Rand()
		sign := 1.0
		if coin.Rand() == 0 {
			sign = -1
		}
		y.data[2*i+1] = sign*1.5*v + 0.1*normal.Rand()
	}
	return &Dataset{X: x, Y: y}
}

// rescale maps values linearly onto [lo, hi] in place.
func rescale(values []float64, lo, hi float64) {
	minV, maxV := floats.Min(values), floats.Max(values)
	if maxV == minV {
		return
	}
	for i, v := range values {
		values[i] = lo + (v-minV)*(hi-lo)/(maxV-minV)
	}
}

// LinearGrid returns n test inputs [n × xDim] whose first column is evenly
// spaced on [lo, hi]; other columns are zero.
func LinearGrid(lo, hi float64, n, xDim int) *Tensor {
	grid := make([]float64, n)
	if n == 1 {
		grid[0] = lo
	} else {
		floats.Span(grid, lo, hi)
	}

	out := NewTensor(n, xDim)
	for i, v := range grid {
		out.data[i*xDim] = v
	}
	return out
}

// LoadCSV reads a headerless CSV where the first xDim columns are inputs
// and the rest are targets.
func LoadCSV(path string, xDim int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	cols := len(records[0])
	if xDim <= 0 || cols <= xDim {
		return nil, fmt.Errorf("%w: %d columns cannot hold x_dim=%d plus targets", ErrDatasetFormat, cols, xDim)
	}

	xRows := make([][]float64, len(records))
	yRows := make([][]float64, len(records))
	for i, rec := range records {
		values := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %v", ErrDatasetFormat, i+1, j+1, err)
			}
			values[j] = v
		}
		xRows[i], yRows[i] = values[:xDim], values[xDim:]
	}

	x, err := NewTensorRows(xRows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
	}
	y, err := NewTensorRows(yRows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
	}
	return &Dataset{X: x, Y: y}, nil
}

// SaveCSV writes the dataset in the layout LoadCSV reads.
func (d *Dataset) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := make([]string, d.XDim()+d.YDim())
	for i := 0; i < d.Len(); i++ {
		for j, v := range d.X.Row(i) {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		for j, v := range d.Y.Row(i) {
			row[d.XDim()+j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write dataset: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return f.Close()
}
