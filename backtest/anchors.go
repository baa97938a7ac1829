package backtest

import "slices"

// DefaultAnchorStep is the spacing between anchors in periods
const DefaultAnchorStep = 12

// ChooseAnchors returns up to maxAnchors ascending row indices to cut training data at.
// The latest anchor leaves horizon rows after it and the earliest keeps minTrainLen rows at
// or before it. Anchors walk back from the latest in steps of step (DefaultAnchorStep when
// step is not positive). An empty result means the series is too short to backtest.
func ChooseAnchors(n, horizon, minTrainLen, maxAnchors, step int) []int {
	if step <= 0 {
		step = DefaultAnchorStep
	}
	if horizon < 0 || minTrainLen < 1 || maxAnchors <= 0 || n < minTrainLen+horizon {
		return []int{}
	}

	latest := n - 1 - horizon
	earliest := minTrainLen - 1

	anchors := make([]int, 0, maxAnchors)
	for a := latest; a >= earliest && len(anchors) < maxAnchors; a -= step {
		anchors = append(anchors, a)
	}
	slices.Reverse(anchors)
	return anchors
}
