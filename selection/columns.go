// Package selection converts pointer-drag text selections into column-aware
// highlight geometry anchored to fragment boundaries.
package selection

import (
	"math"
	"sort"

	"github.com/voxread/readkit/doctext"
)

// Column is a detected vertical band of text on a page.
type Column struct {
	Index  int
	StartX float64
	EndX   float64
}

// Contains reports whether an x center falls inside the column.
func (c Column) Contains(x float64) bool { return x >= c.StartX && x < c.EndX }

const (
	maxColumnCandidates = 5
	minColumnGap        = 18.0 // pt; narrower gaps are intra-column spacing
)

// DetectColumns clusters fragment X centers into 1..5 columns by splitting
// at the widest gaps and keeping the candidate count that minimizes
// within-cluster variance (penalized per extra column). When clustering is
// degenerate but the page clearly has two bands, it falls back to a
// midpoint split.
func DetectColumns(frags []doctext.Fragment, pageWidth float64) []Column {
	single := []Column{{Index: 0, StartX: 0, EndX: pageWidth}}
	if len(frags) < 4 || pageWidth <= 0 {
		return single
	}
	centers := make([]float64, 0, len(frags))
	for _, f := range frags {
		centers = append(centers, f.X+f.Width/2)
	}
	sort.Float64s(centers)

	type gap struct {
		width float64
		after int // split between centers[after] and centers[after+1]
	}
	var gaps []gap
	for i := 0; i+1 < len(centers); i++ {
		w := centers[i+1] - centers[i]
		if w >= minColumnGap {
			gaps = append(gaps, gap{width: w, after: i})
		}
	}
	if len(gaps) == 0 {
		return single
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].width > gaps[j].width })

	bestScore := clusterVariance(centers, nil)
	bestSplits := []int(nil)
	for k := 2; k <= maxColumnCandidates && k-1 <= len(gaps); k++ {
		splits := make([]int, k-1)
		for i := range splits {
			splits[i] = gaps[i].after
		}
		sort.Ints(splits)
		// Per-column penalty keeps a wide word gap from spawning a
		// phantom column.
		score := clusterVariance(centers, splits) + float64(k)*columnPenalty(pageWidth)
		if score < bestScore {
			bestScore = score
			bestSplits = splits
		}
	}
	if bestSplits == nil {
		if likelyTwoBands(centers, pageWidth) {
			mid := pageWidth / 2
			return []Column{
				{Index: 0, StartX: 0, EndX: mid},
				{Index: 1, StartX: mid, EndX: pageWidth},
			}
		}
		return single
	}

	cols := make([]Column, 0, len(bestSplits)+1)
	startX := 0.0
	for i, s := range bestSplits {
		boundary := (centers[s] + centers[s+1]) / 2
		cols = append(cols, Column{Index: i, StartX: startX, EndX: boundary})
		startX = boundary
	}
	cols = append(cols, Column{Index: len(bestSplits), StartX: startX, EndX: pageWidth})
	return cols
}

func columnPenalty(pageWidth float64) float64 {
	p := pageWidth * pageWidth / 64
	return p
}

// clusterVariance sums within-cluster variance for centers split at the
// given sorted indices.
func clusterVariance(centers []float64, splits []int) float64 {
	total := 0.0
	start := 0
	bounds := append(append([]int(nil), splits...), len(centers)-1)
	for _, b := range bounds {
		cluster := centers[start : b+1]
		total += variance(cluster)
		start = b + 1
	}
	return total
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	// Normalized, so the score stays comparable across fragment counts.
	return v / float64(len(xs))
}

// likelyTwoBands reports whether centers mass on both sides of the page
// midline with a sparse middle, the classic two-column signature.
func likelyTwoBands(centers []float64, pageWidth float64) bool {
	mid := pageWidth / 2
	left, right, middle := 0, 0, 0
	for _, c := range centers {
		switch {
		case math.Abs(c-mid) < pageWidth*0.05:
			middle++
		case c < mid:
			left++
		default:
			right++
		}
	}
	return left > 2 && right > 2 && middle == 0
}

// ColumnFor returns the column containing x, or the single full-width
// column when cols is empty.
func ColumnFor(cols []Column, x float64) Column {
	for _, c := range cols {
		if c.Contains(x) {
			return c
		}
	}
	if len(cols) > 0 {
		return cols[len(cols)-1]
	}
	return Column{Index: 0, StartX: 0, EndX: math.MaxFloat64}
}
