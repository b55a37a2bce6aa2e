package tmodel

import (
	"math"
)

// Posteriors are posterior statistics of every tuple.
type Posteriors struct {
	NStates int
	// Nodes[t][v][i] is the marginal probability of state i at node
	// v for tuple t.
	Nodes [][][]float64
	// Subst[t][v] is the expected number of substitutions on the
	// branch above v for tuple t.
	Subst [][]float64
	// Total[v] is the n*n matrix of expected transition counts on
	// the branch above v over all the data.
	Total [][]float64
}

// outside computes outside vectors after inside has been run for the
// same tuple. out[v][j] is proportional to the probability of the
// data outside of the subtree of v and state j at v.
func (pr *pruner) outside(pm [][]float64, out [][]float64, pre [][]float64) {
	tm := pr.tm
	n := pr.n
	root := tm.Tree.Root()
	copy(out[root], tm.Freqs)
	for _, v := range tm.Tree.Preorder() {
		node := tm.Tree.Node(v)
		for _, c := range node.Children {
			// pre[c] is the parent side of the edge v->c
			pc := pre[c]
			copy(pc, out[v])
			for _, s := range node.Children {
				if s == c {
					continue
				}
				m := pr.msg[s]
				for i := range pc {
					pc[i] *= m[i]
				}
			}
			max := 0.0
			for _, x := range pc {
				max = math.Max(max, x)
			}
			if max > 0 {
				for i := range pc {
					pc[i] /= max
				}
			}
			p := pm[c]
			oc := out[c]
			for j := 0; j < n; j++ {
				s := 0.0
				for i := 0; i < n; i++ {
					s += pc[i] * p[i*n+j]
				}
				oc[j] = s
			}
		}
	}
}

// edgeJoint fills joint with the normalized posterior of the
// (parent state, child state) pair on the branch above c and returns
// the expected number of substitutions.
func (pr *pruner) edgeJoint(c int, pm [][]float64, pre [][]float64, joint []float64) float64 {
	n := pr.n
	p := pm[c]
	lc := pr.partial[c]
	pc := pre[c]
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := pc[i] * p[i*n+j] * lc[j]
			joint[i*n+j] = x
			sum += x
		}
	}
	subst := 0.0
	if sum == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			joint[i*n+j] /= sum
			if i != j {
				subst += joint[i*n+j]
			}
		}
	}
	return subst
}

func (pr *pruner) nodeMarginal(v int, out [][]float64, res []float64) {
	s := 0.0
	for i, x := range pr.partial[v] {
		res[i] = x * out[v][i]
		s += res[i]
	}
	if s > 0 {
		for i := range res {
			res[i] /= s
		}
	}
}

func newVectors(m, n int) [][]float64 {
	vs := make([][]float64, m)
	for i := range vs {
		vs[i] = make([]float64, n)
	}
	return vs
}

// ComputePosteriors computes ancestral state marginals and expected
// substitution counts for the attached data. It is supported only
// with a single rate category.
func (tm *TreeModel) ComputePosteriors() (*Posteriors, error) {
	if tm.NRateCats > 1 {
		return nil, ErrPosteriorRateVariation
	}
	if err := tm.ensurePrepared(); err != nil {
		return nil, err
	}
	pm, err := tm.transitionMatrices()
	if err != nil {
		return nil, err
	}
	n := tm.NStates()
	nn := tm.Tree.NNodes()
	root := tm.Tree.Root()
	pr := tm.newPruner()
	out := newVectors(nn, n)
	pre := newVectors(nn, n)
	joint := make([]float64, n*n)
	counts := tm.stats.CountsFor(tm.cat)

	post := &Posteriors{
		NStates: n,
		Nodes:   make([][][]float64, tm.stats.NTuples()),
		Subst:   make([][]float64, tm.stats.NTuples()),
		Total:   newVectors(nn, n*n),
	}
	for t := range post.Nodes {
		post.Nodes[t] = newVectors(nn, n)
		post.Subst[t] = make([]float64, nn)
		if math.IsInf(pr.inside(t, pm[0], false), -1) {
			continue
		}
		pr.outside(pm[0], out, pre)
		for v := 0; v < nn; v++ {
			pr.nodeMarginal(v, out, post.Nodes[t][v])
			if v == root {
				continue
			}
			post.Subst[t][v] = pr.edgeJoint(v, pm[0], pre, joint)
			for i, x := range joint {
				post.Total[v][i] += counts[t] * x
			}
		}
	}
	return post, nil
}
