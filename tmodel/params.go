package tmodel

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/mrrlab/phylofit/bio"
	"github.com/mrrlab/phylofit/dist"
	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/tree"
)

// nodeLabel returns the name used for the branch above the node in
// parameter names.
func (tm *TreeModel) nodeLabel(id int) string {
	if name := tm.Tree.Node(id).Name; name != "" {
		return name
	}
	return "n" + strconv.Itoa(id)
}

// nodeByLabel resolves a node name, a label produced by nodeLabel or a
// numeric id.
func (tm *TreeModel) nodeByLabel(label string) int {
	if id := tm.Tree.NodeByName(label); id != tree.None {
		return id
	}
	num := label
	if len(num) > 1 && num[0] == 'n' {
		num = num[1:]
	}
	if id, err := strconv.Atoi(num); err == nil && id >= 0 && id < tm.Tree.NNodes() {
		return id
	}
	return tree.None
}

func revComp(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := bio.Complement(s[len(s)-1-i])
		if c == 0 {
			c = s[len(s)-1-i]
		}
		b[i] = c
	}
	return string(b)
}

// freqClasses maps states to frequency weight classes; with symmetric
// frequencies a state shares the class with its reverse complement.
func (tm *TreeModel) freqClasses() (classes []int, nclass int) {
	states := tm.Sub.States
	classes = make([]int, len(states))
	index := make(map[string]int)
	for i, s := range states {
		key := s
		if tm.SymFreqs {
			if rc := revComp(s); tm.Sub.StateIndex(rc) >= 0 && rc < key {
				key = rc
			}
		}
		c, ok := index[key]
		if !ok {
			c = len(index)
			index[key] = c
		}
		classes[i] = c
	}
	return classes, len(index)
}

// freqsEstimated tests whether background frequencies are free.
func (tm *TreeModel) freqsEstimated() bool {
	return tm.EstimateFreqs && !tm.Kind().Capability().UniformFreqs
}

// Prepare builds the parameter vector from the current model state.
// It has to be called after the estimation settings are changed.
func (tm *TreeModel) Prepare() error {
	t := tm.Tree
	n := t.NNodes()
	root := t.Root()

	tm.lens = make([]float64, n)
	for i := range tm.lens {
		tm.lens[i] = t.Node(i).BranchLength
	}
	tm.base = append([]float64(nil), tm.lens...)
	rootKids := t.Node(root).Children
	tm.tieRoot = tm.BranchMode == BranchFree && tm.Kind().Reversible() &&
		len(rootKids) == 2 && tm.AncestorNode == tree.None &&
		!tm.Ignore[rootKids[0]] && !tm.Ignore[rootKids[1]]
	if tm.tieRoot {
		tm.lens[rootKids[0]] += tm.lens[rootKids[1]]
	}
	tm.scale, tm.scaleSub = 1, 1

	tm.heights = make([]float64, n)
	h := make([]float64, n)
	for _, v := range t.Postorder() {
		node := t.Node(v)
		if node.IsTerminal() {
			continue
		}
		top, maxChild := 0.0, 0.0
		for _, c := range node.Children {
			top = math.Max(top, h[c]+tm.lens[c])
			maxChild = math.Max(maxChild, h[c])
		}
		h[v] = top
		tm.heights[v] = top - maxChild
	}

	if tm.Freqs == nil {
		tm.Freqs = tm.Sub.UniformFreqs()
	}
	var nclass int
	tm.freqClass, nclass = tm.freqClasses()
	tm.freqW = make([]float64, nclass)
	cnt := make([]float64, nclass)
	for i, f := range tm.Freqs {
		tm.freqW[tm.freqClass[i]] += f
		cnt[tm.freqClass[i]]++
	}
	for c := range tm.freqW {
		tm.freqW[c] /= cnt[c]
	}
	if tm.SymFreqs {
		for i := range tm.Freqs {
			tm.Freqs[i] = tm.freqW[tm.freqClass[i]]
		}
		normalize(tm.Freqs)
	}
	last := math.Max(tm.freqW[nclass-1], 1e-6)
	for c := range tm.freqW {
		tm.freqW[c] = math.Max(tm.freqW[c]/last, 1e-4)
	}

	if tm.RateWeights == nil || len(tm.RateWeights) != tm.NRateCats {
		tm.RateWeights = make([]float64, tm.NRateCats)
		for i := range tm.RateWeights {
			tm.RateWeights[i] = 1 / float64(tm.NRateCats)
		}
	}
	tm.catW = make([]float64, tm.NRateCats)
	for k := range tm.catW {
		tm.catW[k] = tm.RateWeights[k] / tm.RateWeights[tm.NRateCats-1]
	}

	if err := tm.buildParams(); err != nil {
		return err
	}
	tm.prepared = true
	tm.update()
	return nil
}

func normalize(v []float64) {
	s := 0.0
	for _, x := range v {
		s += x
	}
	for i := range v {
		v[i] /= s
	}
}

type paramSpec struct {
	ptr        *float64
	name       string
	group      string
	enabled    bool
	min, max   float64
	smin, smax float64
}

func (tm *TreeModel) addParam(ps paramSpec) {
	par := optimize.NewBasicFloatParameter(ps.ptr, ps.name)
	par.SetMin(ps.min)
	par.SetMax(ps.max)
	par.SetStartRange(ps.smin, ps.smax)
	if b, ok := tm.Bounds[ps.name]; ok {
		if !math.IsNaN(b.Min) {
			ps.min = b.Min
		}
		if !math.IsNaN(b.Max) {
			ps.max = b.Max
		}
		par.SetMin(ps.min)
		par.SetMax(ps.max)
		lo, hi := math.Max(ps.min, ps.smin), math.Min(ps.max, ps.smax)
		if lo >= hi {
			lo, hi = ps.min, ps.max
		}
		par.SetStartRange(lo, hi)
	}
	tm.allParams.Append(par)
	if ps.enabled && !tm.NoOpt[ps.name] && !tm.NoOpt[ps.group] {
		tm.params.Append(par)
	}
}

func (tm *TreeModel) buildParams() error {
	tm.params = nil
	tm.allParams = nil
	t := tm.Tree
	root := t.Root()

	switch tm.BranchMode {
	case BranchFree:
		for v := 0; v < t.NNodes(); v++ {
			if v == root || v == tm.AncestorNode || tm.Ignore[v] {
				continue
			}
			if tm.tieRoot && v == t.Node(root).Children[1] {
				continue
			}
			tm.addParam(paramSpec{&tm.lens[v], "branch." + tm.nodeLabel(v), GroupBranches,
				true, 0, 50, 0.01, 0.5})
		}
	case BranchScale:
		tm.addParam(paramSpec{&tm.scale, "scale", GroupBranches, true, 0, 100, 0.5, 2})
		if tm.SubtreeNode != tree.None {
			ps := paramSpec{&tm.scaleSub, "scale_sub", GroupBranches, true, 0, 100, 0.5, 2}
			switch tm.SubtreeDir {
			case Loss:
				ps.min, ps.smin = 1, 1
			case Gain:
				ps.max, ps.smax = 1, 1
			}
			tm.addParam(ps)
		}
	case BranchClock:
		for v := 0; v < t.NNodes(); v++ {
			if t.Node(v).IsTerminal() {
				continue
			}
			tm.addParam(paramSpec{&tm.heights[v], "height." + tm.nodeLabel(v), GroupBranches,
				true, 0, 50, 0.01, 0.2})
		}
	}

	for i, name := range tm.Sub.ParamNames() {
		tm.addParam(paramSpec{&tm.RateParams[i], name, GroupRateMatrix,
			tm.EstimateRates, 0, 1000, 0.5, 5})
	}

	for c := 0; c < len(tm.freqW)-1; c++ {
		state := ""
		for i, fc := range tm.freqClass {
			if fc == c {
				state = tm.Sub.States[i]
				break
			}
		}
		tm.addParam(paramSpec{&tm.freqW[c], "freq." + state, GroupBackground,
			tm.freqsEstimated(), 1e-4, 1e4, 0.5, 2})
	}

	if tm.NRateCats > 1 {
		if tm.RateConsts == nil {
			tm.addParam(paramSpec{&tm.Alpha, "alpha", GroupRateVar, true, 1e-3, 100, 0.2, 2})
		} else {
			for k := 0; k < tm.NRateCats-1; k++ {
				tm.addParam(paramSpec{&tm.catW[k], "rate_weight." + strconv.Itoa(k), GroupRateVar,
					true, 1e-4, 1e4, 0.5, 2})
			}
		}
	}

	for i, alt := range tm.Alt {
		alt.addParams(tm, i+1)
	}

	known := make(map[string]bool, len(tm.allParams))
	for _, par := range tm.allParams {
		known[par.Name()] = true
	}
	var unknown []string
	for name := range tm.Bounds {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("bounds for unknown parameters: %v", unknown)
	}
	return nil
}

// update derives branch lengths, frequencies and rate categories from
// the parameter storage.
func (tm *TreeModel) update() {
	t := tm.Tree
	root := t.Root()
	n := t.NNodes()
	switch tm.BranchMode {
	case BranchFree:
		for v := 0; v < n; v++ {
			if v != root {
				t.Node(v).BranchLength = tm.lens[v]
			}
		}
		if tm.tieRoot {
			kids := t.Node(root).Children
			half := tm.lens[kids[0]] / 2
			t.Node(kids[0]).BranchLength = half
			t.Node(kids[1]).BranchLength = half
		}
	case BranchScale:
		for v := 0; v < n; v++ {
			if v == root {
				continue
			}
			l := tm.base[v] * tm.scale
			if tm.SubtreeNode != tree.None && t.InSubtree(tm.SubtreeNode, v) {
				l *= tm.scaleSub
			}
			t.Node(v).BranchLength = l
		}
	case BranchClock:
		h := make([]float64, n)
		for _, v := range t.Postorder() {
			node := t.Node(v)
			if node.IsTerminal() {
				continue
			}
			top := 0.0
			for _, c := range node.Children {
				top = math.Max(top, h[c])
			}
			h[v] = top + tm.heights[v]
			for _, c := range node.Children {
				t.Node(c).BranchLength = h[v] - h[c]
			}
		}
	}
	if tm.AncestorNode != tree.None {
		t.Node(tm.AncestorNode).BranchLength = 0
	}

	if tm.freqsEstimated() {
		for i := range tm.Freqs {
			tm.Freqs[i] = tm.freqW[tm.freqClass[i]]
		}
		normalize(tm.Freqs)
	}

	for _, alt := range tm.Alt {
		alt.link(tm)
	}

	if tm.RateConsts != nil {
		w := append([]float64(nil), tm.catW...)
		normalize(w)
		tm.rates = dist.RateCategories{Rates: tm.RateConsts, Weights: w}
	} else {
		tm.rates = dist.GammaRates(tm.Alpha, tm.NRateCats)
	}
	tm.RateWeights = tm.rates.Weights
}

// GetFloatParameters returns the free parameters.
func (tm *TreeModel) GetFloatParameters() optimize.FloatParameters {
	if !tm.prepared {
		if err := tm.Prepare(); err != nil {
			log.Errorf("Error preparing parameters: %v", err)
		}
	}
	return tm.params
}

// AllParameters returns free and frozen parameters.
func (tm *TreeModel) AllParameters() optimize.FloatParameters {
	tm.GetFloatParameters()
	return tm.allParams
}

// ParamMap returns all the parameter values keyed by name.
func (tm *TreeModel) ParamMap() map[string]float64 {
	pars := tm.AllParameters()
	return pars.Map()
}

// SetParamMap sets parameters present in the map; others are left
// unchanged.
func (tm *TreeModel) SetParamMap(m map[string]float64) {
	for _, par := range tm.AllParameters() {
		if v, ok := m[par.Name()]; ok {
			par.Set(v)
		}
	}
	tm.update()
}
