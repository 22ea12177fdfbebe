package kde

// FindPeaks returns the indices of local maxima in the density curve, in
// ascending index order. A plateau (run of equal values higher than both
// shoulders) counts as one peak at its midpoint, rounding left.
func FindPeaks(density []float64) []int {
	var peaks []int
	for i := 1; i < len(density)-1; i++ {
		if density[i] <= density[i-1] {
			continue
		}
		// Walk any plateau starting at i.
		j := i
		for j < len(density)-1 && density[j+1] == density[j] {
			j++
		}
		if j < len(density)-1 && density[j+1] < density[i] {
			peaks = append(peaks, (i+j)/2)
		}
		i = j
	}
	return peaks
}

// FilterPeaks discards peaks whose density falls below threshold times the
// tallest peak's density. The tallest peak itself is always retained, so a
// threshold above 1 still leaves one peak. Input order (ascending index) is
// preserved.
func FilterPeaks(peaks []int, density []float64, threshold float64) []int {
	if len(peaks) <= 1 {
		return peaks
	}
	tallest := peaks[0]
	for _, p := range peaks[1:] {
		if density[p] > density[tallest] {
			tallest = p
		}
	}
	cutoff := threshold * density[tallest]
	kept := make([]int, 0, len(peaks))
	for _, p := range peaks {
		if p == tallest || density[p] >= cutoff {
			kept = append(kept, p)
		}
	}
	return kept
}

// TruncateAfterTallest drops every peak listed after the tallest one,
// collapsing right-hand secondary modes into it. Used by the gating option
// that ignores double-positive populations, whose spurious minima would
// otherwise pull the threshold right of the main mode.
func TruncateAfterTallest(peaks []int, density []float64) []int {
	if len(peaks) <= 1 {
		return peaks
	}
	tallestPos := 0
	for i, p := range peaks {
		if density[p] > density[peaks[tallestPos]] {
			tallestPos = i
		}
	}
	return peaks[:tallestPos+1]
}

// LocalMinimumBetween locates the density minimum strictly between the two
// tallest peaks and returns the grid coordinate at that minimum. When the
// two tallest peaks tie exactly, the two lowest-index peaks holding that
// density are used. The peaks slice must hold at least two indices.
func LocalMinimumBetween(density, grid []float64, peaks []int) float64 {
	p1, p2 := twoTallest(density, peaks)
	lo, hi := p1, p2
	if lo > hi {
		lo, hi = hi, lo
	}

	minIdx := lo + 1
	if minIdx >= hi {
		// Adjacent peaks cannot occur for strict local maxima; fall back to
		// the midpoint sample.
		minIdx = (lo + hi) / 2
		return grid[minIdx]
	}
	for i := lo + 1; i < hi; i++ {
		if density[i] < density[minIdx] {
			minIdx = i
		}
	}
	return grid[minIdx]
}

// twoTallest returns the indices of the two highest-density peaks. An exact
// tie at the top selects the two lowest peak indices carrying that value.
func twoTallest(density []float64, peaks []int) (int, int) {
	first, second := -1, -1
	for _, p := range peaks {
		switch {
		case first == -1 || density[p] > density[first]:
			second = first
			first = p
		case second == -1 || density[p] > density[second]:
			second = p
		}
	}
	if density[first] == density[second] {
		// Keep ascending index order for the tie so the search interval is
		// stable across runs.
		a, b := -1, -1
		for _, p := range peaks {
			if density[p] == density[first] {
				if a == -1 {
					a = p
				} else if b == -1 {
					b = p
				}
			}
		}
		if a != -1 && b != -1 {
			return a, b
		}
	}
	return first, second
}
