package tmodel

import (
	"errors"
	"math"
	"math/bits"
	"strings"
)

// MinParsimonyBranch is the smallest branch length set by the
// parsimony initialization.
const MinParsimonyBranch = 1e-3

// parsimony computes the Fitch parsimony cost of the attached data
// over the last tuple position, and the number of changes per branch
// in one most parsimonious reconstruction.
func (tm *TreeModel) parsimony() (cost float64, changes []float64, err error) {
	if tm.stats == nil {
		return 0, nil, ErrNoData
	}
	alphabet := tm.Sub.Alphabet
	if len(alphabet) > 64 {
		return 0, nil, errors.New("alphabet is too large for parsimony")
	}
	t := tm.Tree
	nn := t.NNodes()
	if len(tm.leafSeq) != nn {
		return 0, nil, errors.New("data has to be attached after pruning")
	}
	all := uint64(1)<<uint(len(alphabet)) - 1
	sets := make([]uint64, nn)
	state := make([]int, nn)
	changes = make([]float64, nn)
	s := tm.stats
	counts := make([]int, len(alphabet))
	for tup, c := range s.CountsFor(tm.cat) {
		if c == 0 {
			continue
		}
		tcost := 0
		for _, v := range t.Postorder() {
			node := t.Node(v)
			if node.IsTerminal() {
				sets[v] = all
				if seq := tm.leafSeq[v]; seq >= 0 {
					if k := strings.IndexByte(alphabet, s.Symbol(tup, seq, s.TupleSize-1)); k >= 0 {
						sets[v] = 1 << uint(k)
					}
				}
				continue
			}
			for k := range counts {
				counts[k] = 0
			}
			max := 0
			for _, ch := range node.Children {
				for k := range counts {
					if sets[ch]&(1<<uint(k)) != 0 {
						counts[k]++
						if counts[k] > max {
							max = counts[k]
						}
					}
				}
			}
			sets[v] = 0
			for k, n := range counts {
				if n == max {
					sets[v] |= 1 << uint(k)
				}
			}
			tcost += len(node.Children) - max
		}
		cost += c * float64(tcost)
		for _, v := range t.Preorder() {
			node := t.Node(v)
			if node.IsRoot() {
				state[v] = bits.TrailingZeros64(sets[v])
				continue
			}
			ps := state[node.Parent]
			if sets[v]&(1<<uint(ps)) != 0 {
				state[v] = ps
			} else {
				state[v] = bits.TrailingZeros64(sets[v])
				changes[v] += c
			}
		}
	}
	return cost, changes, nil
}

// InitParsimony sets branch lengths to the number of parsimony
// changes per site (floored at MinParsimonyBranch) and returns the
// parsimony cost.
func InitParsimony(tm *TreeModel) (float64, error) {
	cost, changes, err := tm.parsimony()
	if err != nil {
		return 0, err
	}
	nsites := tm.stats.Total(tm.cat)
	if nsites == 0 {
		return cost, nil
	}
	for v := 0; v < tm.Tree.NNodes(); v++ {
		if v != tm.Tree.Root() {
			tm.Tree.Node(v).BranchLength = math.Max(changes[v]/nsites, MinParsimonyBranch)
		}
	}
	tm.Invalidate()
	return cost, nil
}
