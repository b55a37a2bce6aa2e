package tmodel

import (
	"fmt"
	"math"
	"strings"

	"github.com/gonum/matrix/mat64"

	"github.com/mrrlab/phylofit/align"
)

// SetData attaches sufficient statistics to the model. names are the
// sequence names in the order of the statistics; cat selects the
// category, negative cat means all the columns. Missing background
// frequencies are set to the empirical ones.
func (tm *TreeModel) SetData(stats *align.Stats, names []string, cat int) error {
	if stats.TupleSize != tm.Order()+1 {
		return fmt.Errorf("statistics have tuple size %d, model %v needs %d",
			stats.TupleSize, tm.Kind(), tm.Order()+1)
	}
	if len(names) != stats.NSeqs {
		return fmt.Errorf("%d names for %d sequences", len(names), stats.NSeqs)
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	leafSeq := make([]int, tm.Tree.NNodes())
	for v := range leafSeq {
		leafSeq[v] = -1
	}
	for _, v := range tm.Tree.Leaves() {
		i, ok := index[tm.Tree.Node(v).Name]
		if !ok {
			return fmt.Errorf("leaf %s is not in the alignment", tm.Tree.Node(v).Name)
		}
		leafSeq[v] = i
	}
	tm.stats = stats
	tm.cat = cat
	tm.leafSeq = leafSeq
	tm.leafCache = make(map[string][]float64)
	if tm.Freqs == nil {
		tm.Freqs = tm.EmpiricalFreqs()
		tm.prepared = false
	}
	return nil
}

// Stats returns attached statistics.
func (tm *TreeModel) Stats() *align.Stats {
	return tm.stats
}

// Category returns the category of attached statistics.
func (tm *TreeModel) Category() int {
	return tm.cat
}

// EmpiricalFreqs returns state frequencies observed in the attached
// data. Only tuples without missing symbols are counted.
func (tm *TreeModel) EmpiricalFreqs() []float64 {
	if tm.Kind().Capability().UniformFreqs || tm.stats == nil {
		return tm.Sub.UniformFreqs()
	}
	s := tm.stats
	if s.TupleSize == 1 {
		return s.Frequencies(tm.Sub.Alphabet, tm.cat)
	}
	freqs := make([]float64, tm.NStates())
	total := 0.0
	for t, c := range s.CountsFor(tm.cat) {
		if c == 0 {
			continue
		}
		for i := 0; i < s.NSeqs; i++ {
			st := tm.Sub.StateIndex(s.Tuples[t][i*s.TupleSize : (i+1)*s.TupleSize])
			if st >= 0 {
				freqs[st] += c
				total += c
			}
		}
	}
	if total == 0 {
		return tm.Sub.UniformFreqs()
	}
	for i := range freqs {
		freqs[i] /= total
	}
	return freqs
}

// leafVector returns the partial likelihood of a leaf observing
// sequence seq in tuple t. Symbols outside of the alphabet are
// missing data. With prefix the last tuple position is marginalized.
func (tm *TreeModel) leafVector(t, seq int, prefix bool) []float64 {
	n := tm.NStates()
	if seq < 0 {
		v := make([]float64, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	ts := tm.stats.TupleSize
	key := tm.stats.Tuples[t][seq*ts : (seq+1)*ts]
	if prefix {
		key += "|"
	}
	if v, ok := tm.leafCache[key]; ok {
		return v
	}
	alphabet := tm.Sub.Alphabet
	v := make([]float64, n)
	for i, st := range tm.Sub.States {
		match := true
		for k := 0; k < ts && match; k++ {
			if prefix && k == ts-1 {
				continue
			}
			c := key[k]
			if strings.IndexByte(alphabet, c) >= 0 && st[k] != c {
				match = false
			}
		}
		if match {
			v[i] = 1
		}
	}
	tm.leafCache[key] = v
	return v
}

// transitionMatrices returns P[k][v], the flattened substitution
// probability matrix of the branch above node v in rate category k.
// Ignored branches have all the rows equal to the background.
func (tm *TreeModel) transitionMatrices() ([][][]float64, error) {
	t := tm.Tree
	n := tm.NStates()
	root := t.Root()
	qs := make(map[int]*mat64.Dense)
	pm := make([][][]float64, len(tm.rates.Rates))
	for k := range pm {
		pm[k] = make([][]float64, t.NNodes())
	}
	qt := mat64.NewDense(n, n, nil)
	p := mat64.NewDense(n, n, nil)
	for v := 0; v < t.NNodes(); v++ {
		if v == root {
			continue
		}
		if tm.Ignore[v] {
			flat := make([]float64, n*n)
			for i := 0; i < n; i++ {
				copy(flat[i*n:(i+1)*n], tm.Freqs)
			}
			for k := range pm {
				pm[k][v] = flat
			}
			continue
		}
		sub, params, altIdx := tm.branchModel(v)
		q, ok := qs[altIdx]
		if !ok {
			var err error
			q, err = sub.NewRateMatrix(params, tm.Freqs)
			if err != nil {
				return nil, err
			}
			qs[altIdx] = q
		}
		for k, rate := range tm.rates.Rates {
			flat := make([]float64, n*n)
			bl := rate * t.Node(v).BranchLength
			if bl == 0 {
				for i := 0; i < n; i++ {
					flat[i*n+i] = 1
				}
			} else {
				qt.Scale(bl, q)
				p.Exp(qt)
				for i := 0; i < n; i++ {
					row := p.RawRowView(i)
					for j, x := range row {
						flat[i*n+j] = math.Max(x, 0)
					}
				}
			}
			pm[k][v] = flat
		}
	}
	return pm, nil
}

// pruner holds buffers for the postorder recursion.
type pruner struct {
	tm      *TreeModel
	n       int
	post    []int
	partial [][]float64
	msg     [][]float64
}

func (tm *TreeModel) newPruner() *pruner {
	nn := tm.Tree.NNodes()
	n := tm.NStates()
	pr := &pruner{
		tm:      tm,
		n:       n,
		post:    tm.Tree.Postorder(),
		partial: make([][]float64, nn),
		msg:     make([][]float64, nn),
	}
	for v := range pr.partial {
		pr.partial[v] = make([]float64, n)
		pr.msg[v] = make([]float64, n)
	}
	return pr
}

// inside computes partial likelihoods of tuple t with transition
// matrices pm of one rate category. Partials are rescaled at every
// node; the log-likelihood including the scaling is returned.
func (pr *pruner) inside(t int, pm [][]float64, prefix bool) float64 {
	tm := pr.tm
	n := pr.n
	root := tm.Tree.Root()
	logScale := 0.0
	for _, v := range pr.post {
		node := tm.Tree.Node(v)
		part := pr.partial[v]
		if node.IsTerminal() {
			copy(part, tm.leafVector(t, tm.leafSeq[v], prefix))
		} else {
			for i := range part {
				part[i] = 1
			}
			for _, c := range node.Children {
				m := pr.msg[c]
				for i := range part {
					part[i] *= m[i]
				}
			}
			max := 0.0
			for _, x := range part {
				if x > max {
					max = x
				}
			}
			if max == 0 {
				return math.Inf(-1)
			}
			for i := range part {
				part[i] /= max
			}
			logScale += math.Log(max)
		}
		if v != root {
			p := pm[v]
			m := pr.msg[v]
			for i := 0; i < n; i++ {
				s := 0.0
				row := p[i*n : (i+1)*n]
				for j, x := range part {
					s += row[j] * x
				}
				m[i] = s
			}
		}
	}
	l := 0.0
	for i, x := range pr.partial[root] {
		l += tm.Freqs[i] * x
	}
	return math.Log(l) + logScale
}

func logSumExp(v []float64) float64 {
	max := math.Inf(-1)
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	s := 0.0
	for _, x := range v {
		s += math.Exp(x - max)
	}
	return max + math.Log(s)
}

// ensurePrepared builds the parameters on first use and pushes the
// parameter values into the model.
func (tm *TreeModel) ensurePrepared() error {
	if tm.stats == nil {
		return ErrNoData
	}
	if !tm.prepared {
		if err := tm.Prepare(); err != nil {
			return err
		}
	}
	tm.update()
	if tm.leafSeq == nil || len(tm.leafSeq) != tm.Tree.NNodes() {
		return fmt.Errorf("data has to be attached after pruning")
	}
	return nil
}

// tupleLogLiks returns log-likelihoods of tuples. Tuples with zero
// count in the category are skipped (left zero) unless all is set.
func (tm *TreeModel) tupleLogLiks(all bool) ([]float64, error) {
	if err := tm.ensurePrepared(); err != nil {
		return nil, err
	}
	pm, err := tm.transitionMatrices()
	if err != nil {
		return nil, err
	}
	pr := tm.newPruner()
	counts := tm.stats.CountsFor(tm.cat)
	lls := make([]float64, tm.stats.NTuples())
	cl := make([]float64, len(pm))
	for t := range lls {
		if !all && counts[t] == 0 {
			continue
		}
		for k := range pm {
			cl[k] = math.Log(tm.rates.Weights[k]) + pr.inside(t, pm[k], false)
		}
		lls[t] = logSumExp(cl)
		if tm.Conditional {
			for k := range pm {
				cl[k] = math.Log(tm.rates.Weights[k]) + pr.inside(t, pm[k], true)
			}
			lls[t] -= logSumExp(cl)
		}
	}
	return lls, nil
}

// LogLikelihood returns the natural log-likelihood of the attached
// data.
func (tm *TreeModel) LogLikelihood() (float64, error) {
	lls, err := tm.tupleLogLiks(false)
	if err != nil {
		return math.Inf(-1), err
	}
	total := 0.0
	for t, c := range tm.stats.CountsFor(tm.cat) {
		if c > 0 {
			total += c * lls[t]
		}
	}
	return total, nil
}

// Likelihood implements optimize.Optimizable.
func (tm *TreeModel) Likelihood() float64 {
	l, err := tm.LogLikelihood()
	if err != nil {
		log.Errorf("Error computing likelihood: %v", err)
		return math.Inf(-1)
	}
	if math.IsNaN(l) {
		return math.Inf(-1)
	}
	return l
}

// ColumnLogProbs returns log-probabilities of every alignment column.
// Columns outside of the statistics (or of the category) are NaN. If
// statistics have no column index, tuple i is column i.
func (tm *TreeModel) ColumnLogProbs() ([]float64, error) {
	lls, err := tm.tupleLogLiks(true)
	if err != nil {
		return nil, err
	}
	idx := tm.stats.TupleIdx
	if idx == nil {
		idx = make([]int, tm.stats.NTuples())
		for i := range idx {
			idx[i] = i
		}
	}
	cats := tm.stats.Categories()
	out := make([]float64, len(idx))
	for col, t := range idx {
		if t < 0 || (tm.cat >= 0 && cats != nil && cats[col] != tm.cat) {
			out[col] = math.NaN()
			continue
		}
		out[col] = lls[t]
	}
	return out, nil
}
