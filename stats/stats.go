// Package stats holds the user-mutable part of a variable's metadata: free
// form attributes and summary statistics ("statsV1").
//
// JSON form:
//
//	{
//	  "attributes": {"foo": "bar"},
//	  "statsV1": {
//	    "count": 100, "min": -1000.0, "max": 1000.0, "sum": 0.0, "sumSquares": 0.0,
//	    "histogram": {"binCenters": [1.0, 2.0, 3.0], "counts": [1, 2, 3]}
//	  }
//	}
//
// "statsV1" may also be a list of such objects.
package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/pithecene-io/mdio/internal/jsondoc"
)

// Kind is the numeric type of min, max, sum, sumSquares and histogram bins.
type Kind int

const (
	// Float32 is the default kind; values keep their JSON precision.
	Float32 Kind = iota
	// Int32 requires integral values within the int32 range.
	Int32
)

func (k Kind) String() string {
	if k == Int32 {
		return "int32"
	}
	return "float32"
}

// JSON keys.
const (
	KeyAttributes = "attributes"
	KeyStats      = "statsV1"
	KeyMetadata   = "metadata"
	KeyHistogram  = "histogram"
)

var (
	// ErrMissingField indicates a required statistics key is absent.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidValue indicates a key holding a value of the wrong shape or type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrVariableNotFound indicates a dataset document without the named variable.
	ErrVariableNotFound = errors.New("variable not found")
)

// -----------------------------------------------------------------------------
// Histograms
// -----------------------------------------------------------------------------

// Histogram is a binned distribution of a variable's values.
type Histogram interface {
	// JSON returns the "histogram" object.
	JSON() map[string]any
	// NumBins returns the number of counted bins.
	NumBins() int
}

// CenteredHistogram is described by the center of each bin.
type CenteredHistogram struct {
	BinCenters []float64
	Counts     []int64
	kind       Kind
}

// JSON implements Histogram.
func (h *CenteredHistogram) JSON() map[string]any {
	return map[string]any{
		"binCenters": numbers(h.kind, h.BinCenters),
		"counts":     h.Counts,
	}
}

// NumBins implements Histogram.
func (h *CenteredHistogram) NumBins() int { return len(h.Counts) }

// EdgeHistogram is described by the lower edge and width of each bin.
type EdgeHistogram struct {
	BinEdges  []float64
	BinWidths []float64
	Counts    []int64
	kind      Kind
}

// JSON implements Histogram.
func (h *EdgeHistogram) JSON() map[string]any {
	return map[string]any{
		"binEdges":  numbers(h.kind, h.BinEdges),
		"binWidths": numbers(h.kind, h.BinWidths),
		"counts":    h.Counts,
	}
}

// NumBins implements Histogram.
func (h *EdgeHistogram) NumBins() int { return len(h.Counts) }

// HistogramFromJSON decodes a "histogram" object. Centered bins are tried
// first; an object with neither binCenters nor binEdges is rejected.
func HistogramFromJSON(v any, kind Kind) (Histogram, error) {
	obj, ok := jsondoc.Object(v)
	if !ok {
		return nil, fmt.Errorf("stats: %w: histogram must be an object", ErrInvalidValue)
	}
	counts, err := countsOf(obj)
	if err != nil {
		return nil, err
	}
	if raw, ok := obj["binCenters"]; ok {
		centers, err := floats("binCenters", raw, kind)
		if err != nil {
			return nil, err
		}
		return &CenteredHistogram{BinCenters: centers, Counts: counts, kind: kind}, nil
	}
	if raw, ok := obj["binEdges"]; ok {
		edges, err := floats("binEdges", raw, kind)
		if err != nil {
			return nil, err
		}
		rawWidths, ok := obj["binWidths"]
		if !ok {
			return nil, fmt.Errorf("stats: %w: histogram.binWidths", ErrMissingField)
		}
		widths, err := floats("binWidths", rawWidths, kind)
		if err != nil {
			return nil, err
		}
		return &EdgeHistogram{BinEdges: edges, BinWidths: widths, Counts: counts, kind: kind}, nil
	}
	return nil, fmt.Errorf("stats: %w: histogram.binCenters or histogram.binEdges", ErrMissingField)
}

func countsOf(obj map[string]any) ([]int64, error) {
	raw, ok := obj["counts"]
	if !ok {
		return nil, fmt.Errorf("stats: %w: histogram.counts", ErrMissingField)
	}
	counts, ok := jsondoc.Ints(raw)
	if !ok {
		return nil, fmt.Errorf("stats: %w: histogram.counts must be integers", ErrInvalidValue)
	}
	for _, c := range counts {
		if c < 0 || c > math.MaxInt32 {
			return nil, fmt.Errorf("stats: %w: histogram count %d", ErrInvalidValue, c)
		}
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Summary statistics
// -----------------------------------------------------------------------------

// SummaryStats are the aggregate statistics of a variable.
type SummaryStats struct {
	Count      int64
	Min        float64
	Max        float64
	Sum        float64
	SumSquares float64
	Histogram  Histogram
	Kind       Kind
}

// SummaryStatsFromJSON decodes one "statsV1" object. Every key is required.
func SummaryStatsFromJSON(v any, kind Kind) (SummaryStats, error) {
	obj, ok := jsondoc.Object(v)
	if !ok {
		return SummaryStats{}, fmt.Errorf("stats: %w: statsV1 must be an object", ErrInvalidValue)
	}
	s := SummaryStats{Kind: kind}

	raw, ok := obj["count"]
	if !ok {
		return SummaryStats{}, fmt.Errorf("stats: %w: count", ErrMissingField)
	}
	count, ok := jsondoc.Number(raw)
	if !ok || count < 0 || count != math.Trunc(count) {
		return SummaryStats{}, fmt.Errorf("stats: %w: count %v", ErrInvalidValue, raw)
	}
	s.Count = int64(count)

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"min", &s.Min},
		{"max", &s.Max},
		{"sum", &s.Sum},
		{"sumSquares", &s.SumSquares},
	} {
		raw, ok := obj[f.key]
		if !ok {
			return SummaryStats{}, fmt.Errorf("stats: %w: %s", ErrMissingField, f.key)
		}
		val, err := number(f.key, raw, kind)
		if err != nil {
			return SummaryStats{}, err
		}
		*f.dst = val
	}

	rawHist, ok := obj[KeyHistogram]
	if !ok {
		return SummaryStats{}, fmt.Errorf("stats: %w: %s", ErrMissingField, KeyHistogram)
	}
	hist, err := HistogramFromJSON(rawHist, kind)
	if err != nil {
		return SummaryStats{}, err
	}
	s.Histogram = hist
	return s, nil
}

// JSON returns the "statsV1" object.
func (s SummaryStats) JSON() map[string]any {
	out := map[string]any{
		"count":      s.Count,
		"min":        scalar(s.Kind, s.Min),
		"max":        scalar(s.Kind, s.Max),
		"sum":        scalar(s.Kind, s.Sum),
		"sumSquares": scalar(s.Kind, s.SumSquares),
	}
	if s.Histogram != nil {
		out[KeyHistogram] = s.Histogram.JSON()
	}
	return out
}

// Mean returns Sum/Count, or NaN for an empty sample.
func (s SummaryStats) Mean() float64 {
	if s.Count == 0 {
		return math.NaN()
	}
	return s.Sum / float64(s.Count)
}

// -----------------------------------------------------------------------------
// Numeric helpers
// -----------------------------------------------------------------------------

func number(key string, raw any, kind Kind) (float64, error) {
	v, ok := jsondoc.Number(raw)
	if !ok {
		return 0, fmt.Errorf("stats: %w: %s must be a number, got %s", ErrInvalidValue, key, jsondoc.Dump(raw))
	}
	if kind == Int32 && (v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32) {
		return 0, fmt.Errorf("stats: %w: %s %v is not an int32", ErrInvalidValue, key, v)
	}
	return v, nil
}

func floats(key string, raw any, kind Kind) ([]float64, error) {
	list, ok := raw.([]any)
	if !ok {
		if ints, isInts := jsondoc.Ints(raw); isInts {
			out := make([]float64, len(ints))
			for i, v := range ints {
				out[i] = float64(v)
			}
			return out, nil
		}
		return nil, fmt.Errorf("stats: %w: histogram.%s must be a list", ErrInvalidValue, key)
	}
	out := make([]float64, len(list))
	for i, e := range list {
		v, err := number(key, e, kind)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func scalar(kind Kind, v float64) any {
	if kind == Int32 {
		return int64(v)
	}
	return v
}

func numbers(kind Kind, vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = scalar(kind, v)
	}
	return out
}
