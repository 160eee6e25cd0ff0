// Package params sizes filters and sketches from set sizes and difference
// estimates.
package params

import (
	"math"
)

const (
	// MinErrorRate and MaxErrorRate clamp filter false positive rates.
	MinErrorRate = 1e-4
	MaxErrorRate = 1 - 1e-4

	// CellOverhead is the per-cell padding factor of the cost model.
	CellOverhead = 1.5

	countBytes = 3
	sumBytes   = 4
)

var ln2sq = math.Ln2 * math.Ln2

// CellCost is the cost, in bits, of one sketch cell holding keySize byte keys
// relative to one filter bit.
func CellCost(keySize int) float64 {
	return 8 * float64(countBytes+keySize+sumBytes) * CellOverhead
}

// OptimumParams returns the filter error rate and sketch cell count for a set
// of setSize items reconciled against a pool of poolSize items, where
// pctMissing of the set is expected to be absent from the pool and pctExcess
// of the pool is expected to be outside of the set. The cell count is a raw
// estimate and callers floor it to a usable minimum.
func OptimumParams(setSize, poolSize int, pctMissing, pctExcess, cellCost float64) (errorRate, cells float64) {
	n := float64(setSize)
	m := float64(poolSize)
	errorRate = clip(n/(cellCost*m*pctExcess*ln2sq), MinErrorRate, MaxErrorRate)
	cells = n*pctMissing + m*pctExcess*errorRate
	return errorRate, cells
}

// EstimateExcess is the expected share of a pool of poolSize items that is not
// part of a set of setSize items, given the share of the set missing from the
// pool.
func EstimateExcess(setSize, poolSize int, pctMissing float64) float64 {
	m := float64(max(poolSize, 1))
	return (m - float64(setSize)*(1-pctMissing)) / m
}

// CellCount turns a raw estimate into a usable table size.
func CellCount(raw, multiplier float64, minCells int) int {
	if math.IsNaN(raw) || raw < 0 {
		raw = 0
	}
	cells := int(math.Ceil(raw * multiplier))
	if cells < minCells {
		return minCells
	}
	return cells
}

// GrapheneParams searches for the expected difference a that minimizes the
// combined size of a bloom filter over the block and a sketch of a cells, as
// in the Graphene block propagation protocol. The receiver pool is assumed to
// miss at most one block item.
func GrapheneParams(blockSize, poolSize int, cellSize float64) (errorRate float64, cells int) {
	const (
		fprMin    = 0.001
		fprMax    = 0.999
		numHashes = 4
	)
	shared := blockSize - 1
	excess := poolSize - shared
	fpr := func(a int) float64 {
		if excess <= 0 {
			return fprMax
		}
		return clip(float64(a)/float64(excess), fprMin, fprMax)
	}
	padded := func(a int) int {
		return numHashes * int(math.Ceil(float64(a)*CellOverhead/numHashes))
	}
	filterBytes := func(a int) float64 {
		return math.Floor(-1 / ln2sq * float64(blockSize) * math.Log(fpr(a)) / 8)
	}
	best, bestSize := 1, math.Inf(1)
	for a := 1; a < max(poolSize, 2); a++ {
		size := filterBytes(a) + cellSize*float64(padded(a))
		if size < bestSize {
			best, bestSize = a, size
		}
	}
	return fpr(best), padded(best)
}

// PrefixSize returns the number of bytes needed to truncate hashes of a set
// of n distinct values while keeping the chance of any prefix collision near
// 2^-margin (birthday bound), clamped to [minSize, maxSize].
func PrefixSize(n, margin, minSize, maxSize int) int {
	bits := margin
	if n > 1 {
		bits += int(math.Ceil(2 * math.Log2(float64(n))))
	}
	size := (bits + 7) / 8
	return min(max(size, minSize), maxSize)
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return math.Min(math.Max(v, lo), hi)
}
