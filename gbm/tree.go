package gbm

import (
	"sort"
)

// minGain is the smallest squared error reduction accepted for a split
const minGain = 1e-12

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

func (n *node) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func (n *node) scale(f float64) {
	if n.leaf {
		n.value *= f
		return
	}
	n.left.scale(f)
	n.right.scale(f)
}

type builder struct {
	rows       [][]float64
	resid      []float64
	cols       []int
	maxDepth   int
	minLeaf    int
	importance []float64
}

func (b *builder) leaf(idx []int) *node {
	var sum float64
	for _, i := range idx {
		sum += b.resid[i]
	}
	return &node{leaf: true, value: sum / float64(len(idx))}
}

func (b *builder) grow(idx []int, depth int) *node {
	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf {
		return b.leaf(idx)
	}

	var total float64
	for _, i := range idx {
		total += b.resid[i]
	}
	parent := total * total / float64(len(idx))

	bestGain := minGain
	bestFeat := -1
	var bestThresh float64

	sorted := make([]int, len(idx))
	for _, f := range b.cols {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.rows[sorted[a]][f] < b.rows[sorted[c]][f]
		})

		var left float64
		for k := 0; k < len(sorted)-1; k++ {
			left += b.resid[sorted[k]]
			nl := k + 1
			nr := len(sorted) - nl
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}
			lo, hi := b.rows[sorted[k]][f], b.rows[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			right := total - left
			gain := left*left/float64(nl) + right*right/float64(nr) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeat = f
				bestThresh = lo + (hi-lo)/2
			}
		}
	}

	if bestFeat < 0 {
		return b.leaf(idx)
	}
	b.importance[bestFeat] += bestGain

	var l, r []int
	for _, i := range idx {
		if b.rows[i][bestFeat] <= bestThresh {
			l = append(l, i)
		} else {
			r = append(r, i)
		}
	}
	return &node{
		feature:   bestFeat,
		threshold: bestThresh,
		left:      b.grow(l, depth+1),
		right:     b.grow(r, depth+1),
	}
}
