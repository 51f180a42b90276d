package detection

import (
	"cmp"
	"slices"
)

// Rank orders faces best first by confidence*0.7 + relative area*0.3, so a
// confident face wins over a larger uncertain one and size breaks near-ties.
func Rank(faces []Scored) {
	if len(faces) < 2 {
		return
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, f := range faces {
		maxArea = max(maxArea, f.Box.Area())
	}

	score := func(f Scored) float64 {
		if maxArea == 0 {
			return f.Confidence
		}
		return f.Confidence*0.7 + (f.Box.Area()/maxArea)*0.3
	}
	slices.SortStableFunc(faces, func(a, b Scored) int {
		return cmp.Compare(score(b), score(a))
	})
}
