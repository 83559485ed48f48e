package capture

import "math"

// Legal frame sizes are multiples of 8, at least 8.
const sizeQuantum = 8

var maxLegalSize = LegalSizeDown(math.MaxInt32)

// LegalSize rounds n to the nearest legal frame dimension.
func LegalSize(n int) int {
	if n < sizeQuantum {
		return sizeQuantum
	}
	if n >= maxLegalSize {
		return maxLegalSize
	}
	return (n + sizeQuantum/2) / sizeQuantum * sizeQuantum
}

// LegalSizeDown rounds n down to a legal frame dimension.
func LegalSizeDown(n int) int {
	if n < sizeQuantum {
		return sizeQuantum
	}
	return n / sizeQuantum * sizeQuantum
}

// Validator clamps requested frame dimensions into legal bounds.
type Validator struct {
	legalWidth  func(int) int
	legalHeight func(int) int

	minWidth, maxWidth   int
	minHeight, maxHeight int
}

// NewValidator builds a validator from a legality policy and bounds. Nil
// policies default to LegalSize; zero bounds default to the smallest and
// largest legal sizes. The minimum is raised to the smallest legal size at
// or above it and the maximum lowered to the largest legal size at or below
// it, so every clamped size is legal and within the requested bounds.
func NewValidator(legalWidth, legalHeight func(int) int, minWidth, maxWidth, minHeight, maxHeight int) *Validator {
	if legalWidth == nil {
		legalWidth = LegalSize
	}
	if legalHeight == nil {
		legalHeight = LegalSize
	}
	v := &Validator{
		legalWidth:  legalWidth,
		legalHeight: legalHeight,
	}
	v.minWidth, v.maxWidth = bounds(legalWidth, minWidth, maxWidth)
	v.minHeight, v.maxHeight = bounds(legalHeight, minHeight, maxHeight)
	return v
}

func bounds(legal func(int) int, lo, hi int) (int, int) {
	lo = legalAtLeast(legal, lo)
	if hi <= 0 {
		hi = maxLegalSize
	}
	hi = legalAtMost(legal, hi)
	if hi < lo {
		// No legal size fits; the minimum wins.
		hi = lo
	}
	return lo, hi
}

// Smallest legal size not below n.
func legalAtLeast(legal func(int) int, n int) int {
	for c := n; c < maxLegalSize; c++ {
		if x := legal(c); x >= n {
			return x
		}
	}
	return legal(maxLegalSize)
}

// Largest legal size not above n, or the smallest legal size if there is
// none.
func legalAtMost(legal func(int) int, n int) int {
	for c := n; c > 0; c-- {
		if x := legal(c); x <= n {
			return x
		}
	}
	return legal(0)
}

// Clamp never fails and is idempotent: Clamp(Clamp(w, h)) == Clamp(w, h).
func (v *Validator) Clamp(width, height int) (int, int) {
	return clamp(v.legalWidth(width), v.minWidth, v.maxWidth),
		clamp(v.legalHeight(height), v.minHeight, v.maxHeight)
}

func (v *Validator) Bounds() (minWidth, maxWidth, minHeight, maxHeight int) {
	return v.minWidth, v.maxWidth, v.minHeight, v.maxHeight
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
