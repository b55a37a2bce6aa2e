// Package tmodel implements tree models: a phylogenetic tree combined
// with a substitution model, their likelihood, posterior statistics
// and parameter estimation.
package tmodel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/op/go-logging"

	"github.com/mrrlab/phylofit/align"
	"github.com/mrrlab/phylofit/dist"
	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tree"
)

var log = logging.MustGetLogger("tmodel")

// BranchMode controls branch length estimation.
type BranchMode int

// Branch length estimation modes.
const (
	// BranchFree estimates every branch independently.
	BranchFree BranchMode = iota
	// BranchScale estimates a single scale factor (and optionally a
	// subtree scale factor).
	BranchScale
	// BranchClock constrains branch lengths by a molecular clock.
	BranchClock
	// BranchNone keeps branch lengths fixed.
	BranchNone
)

var branchModeNames = []string{"free", "scale", "clock", "none"}

func (m BranchMode) String() string {
	if m < BranchFree || m > BranchNone {
		return fmt.Sprintf("BranchMode(%d)", int(m))
	}
	return branchModeNames[m]
}

// Direction restricts the subtree scale factor.
type Direction int

// Subtree scale directions.
const (
	NoDirection Direction = iota
	// Loss constrains subtree scale to be at least one.
	Loss
	// Gain constrains subtree scale to be at most one.
	Gain
)

// Parameter groups which can be used in the no-opt set.
const (
	GroupBranches   = "branches"
	GroupBackground = "backgd"
	GroupRateMatrix = "ratematrix"
	GroupRateVar    = "ratevar"
)

// Errors returned by the tree model.
var (
	ErrRateConsts             = errors.New("invalid rate constants")
	ErrPosteriorRateVariation = errors.New("posteriors are not supported with rate variation")
	ErrNoData                 = errors.New("no data attached to the model")
)

// Bound is a box constraint of a parameter.
type Bound struct {
	Min, Max float64
}

// TreeModel is a tree with a substitution model and estimation
// settings.
type TreeModel struct {
	Tree *tree.Tree
	Sub  *submod.Model
	// RateParams are the rate matrix parameters.
	RateParams []float64
	// Freqs are background (equilibrium) state frequencies, nil
	// means empirical frequencies computed from the data.
	Freqs []float64

	NRateCats   int
	Alpha       float64
	RateConsts  []float64
	RateWeights []float64

	BranchMode    BranchMode
	EstimateRates bool
	EstimateFreqs bool
	SymFreqs      bool
	SubtreeNode   int
	SubtreeDir    Direction
	NoOpt         map[string]bool
	Bounds        map[string]Bound
	Ignore        map[int]bool
	AncestorNode  int
	Conditional   bool
	Alt           []*AltModel

	// LnL is the natural log-likelihood of the last fit.
	LnL float64

	// parameter storage
	lens      []float64
	base      []float64
	scale     float64
	scaleSub  float64
	heights   []float64
	freqW     []float64
	freqClass []int
	catW      []float64
	params    optimize.FloatParameters
	allParams optimize.FloatParameters
	prepared  bool
	tieRoot   bool

	// data
	stats     *align.Stats
	cat       int
	leafSeq   []int
	rates     dist.RateCategories
	leafCache map[string][]float64
}

// New creates a tree model with default settings: one rate category,
// free branch lengths, estimated rate matrix and fixed empirical
// background frequencies.
func New(t *tree.Tree, sub *submod.Model) *TreeModel {
	tm := &TreeModel{
		Tree:          t,
		Sub:           sub,
		RateParams:    sub.DefaultParams(),
		NRateCats:     1,
		Alpha:         1,
		BranchMode:    BranchFree,
		EstimateRates: true,
		SubtreeNode:   tree.None,
		AncestorNode:  tree.None,
		scale:         1,
		scaleSub:      1,
	}
	if sub.Kind.Capability().UniformFreqs {
		tm.Freqs = sub.UniformFreqs()
	}
	return tm
}

// Kind returns the substitution model kind.
func (tm *TreeModel) Kind() submod.Kind {
	return tm.Sub.Kind
}

// Order returns the context order.
func (tm *TreeModel) Order() int {
	return tm.Sub.Kind.Order()
}

// NStates returns the number of states.
func (tm *TreeModel) NStates() int {
	return tm.Sub.NStates()
}

// Copy creates a deep copy of the model without attached data.
func (tm *TreeModel) Copy() *TreeModel {
	n := &TreeModel{
		Tree:          tm.Tree.Copy(),
		Sub:           tm.Sub,
		RateParams:    append([]float64(nil), tm.RateParams...),
		Freqs:         append([]float64(nil), tm.Freqs...),
		NRateCats:     tm.NRateCats,
		Alpha:         tm.Alpha,
		RateConsts:    append([]float64(nil), tm.RateConsts...),
		RateWeights:   append([]float64(nil), tm.RateWeights...),
		BranchMode:    tm.BranchMode,
		EstimateRates: tm.EstimateRates,
		EstimateFreqs: tm.EstimateFreqs,
		SymFreqs:      tm.SymFreqs,
		SubtreeNode:   tm.SubtreeNode,
		SubtreeDir:    tm.SubtreeDir,
		AncestorNode:  tm.AncestorNode,
		Conditional:   tm.Conditional,
		LnL:           tm.LnL,
		scale:         1,
		scaleSub:      1,
	}
	if tm.NoOpt != nil {
		n.NoOpt = make(map[string]bool, len(tm.NoOpt))
		for k, v := range tm.NoOpt {
			n.NoOpt[k] = v
		}
	}
	if tm.Bounds != nil {
		n.Bounds = make(map[string]Bound, len(tm.Bounds))
		for k, v := range tm.Bounds {
			n.Bounds[k] = v
		}
	}
	if tm.Ignore != nil {
		n.Ignore = make(map[int]bool, len(tm.Ignore))
		for k, v := range tm.Ignore {
			n.Ignore[k] = v
		}
	}
	for _, alt := range tm.Alt {
		n.Alt = append(n.Alt, alt.copy())
	}
	return n
}

// SetRateVariation sets the number of rate categories, the gamma
// shape parameter and optional fixed rate constants. Rate constants
// have to be positive, distinct, at least two and exactly nratecats;
// they are sorted and their mixture weights are estimated.
func (tm *TreeModel) SetRateVariation(nratecats int, alpha float64, consts []float64) error {
	if nratecats < 1 {
		return fmt.Errorf("%w: number of rate categories has to be positive", ErrRateConsts)
	}
	if consts != nil {
		if err := ValidateRateConsts(consts, nratecats); err != nil {
			return err
		}
		consts = append([]float64(nil), consts...)
		sort.Float64s(consts)
	}
	if alpha <= 0 {
		return fmt.Errorf("%w: alpha has to be positive", ErrRateConsts)
	}
	tm.NRateCats = nratecats
	tm.Alpha = alpha
	tm.RateConsts = consts
	tm.RateWeights = make([]float64, nratecats)
	for i := range tm.RateWeights {
		tm.RateWeights[i] = 1 / float64(nratecats)
	}
	tm.prepared = false
	return nil
}

// ValidateRateConsts checks a rate constants list against the number
// of rate categories.
func ValidateRateConsts(consts []float64, nratecats int) error {
	if len(consts) < 2 {
		return fmt.Errorf("%w: at least two rate constants required", ErrRateConsts)
	}
	if len(consts) != nratecats {
		return fmt.Errorf("%w: %d rate constants for %d rate categories", ErrRateConsts, len(consts), nratecats)
	}
	sorted := append([]float64(nil), consts...)
	sort.Float64s(sorted)
	for i, c := range sorted {
		if c <= 0 {
			return fmt.Errorf("%w: rate constants must be positive", ErrRateConsts)
		}
		if i > 0 && c == sorted[i-1] {
			return fmt.Errorf("%w: rate constants must be distinct", ErrRateConsts)
		}
	}
	return nil
}

// Reset prepares a model shared between units for the next unit.
// Estimation settings, alternate models and the likelihood are
// cleared; the tree and the parameter values are kept. If the model
// has several rate categories and alpha was not set explicitly, the
// current alpha is kept.
func (tm *TreeModel) Reset(nratecats int, alpha float64, alphaSet bool, consts []float64) error {
	if tm.NRateCats > 1 && !alphaSet {
		alpha = tm.Alpha
	}
	if err := tm.SetRateVariation(nratecats, alpha, consts); err != nil {
		return err
	}
	tm.BranchMode = BranchFree
	tm.EstimateRates = true
	tm.EstimateFreqs = false
	tm.SymFreqs = false
	tm.SubtreeNode = tree.None
	tm.SubtreeDir = NoDirection
	tm.NoOpt = nil
	tm.Bounds = nil
	tm.Ignore = nil
	tm.AncestorNode = tree.None
	tm.Conditional = false
	tm.Alt = nil
	tm.LnL = 0
	tm.stats = nil
	tm.leafCache = nil
	tm.prepared = false
	return nil
}

// Invalidate has to be called after changing estimation settings.
func (tm *TreeModel) Invalidate() {
	tm.prepared = false
}

// SetSubtree restricts the second scale factor to the subtree rooted
// at the named node. Branch mode is switched to scale.
func (tm *TreeModel) SetSubtree(name string, dir Direction) error {
	id := tm.Tree.NodeByName(name)
	if id == tree.None {
		return fmt.Errorf("no node named %s in the tree", name)
	}
	tm.SubtreeNode = id
	tm.SubtreeDir = dir
	tm.BranchMode = BranchScale
	tm.prepared = false
	return nil
}

// SetAncestor marks a leaf as the sequence of the root; its branch is
// fixed to zero. The model has to be non-reversible and the leaf has
// to be a child of the root.
func (tm *TreeModel) SetAncestor(name string) error {
	if tm.Kind().Reversible() {
		return fmt.Errorf("ancestor requires a non-reversible model, got %v", tm.Kind())
	}
	id := tm.Tree.NodeByName(name)
	if id == tree.None || !tm.Tree.Node(id).IsTerminal() {
		return fmt.Errorf("no leaf named %s in the tree", name)
	}
	if tm.Tree.Node(id).Parent != tm.Tree.Root() {
		return fmt.Errorf("ancestor %s is not a child of the root", name)
	}
	tm.AncestorNode = id
	tm.Tree.Node(id).BranchLength = 0
	tm.prepared = false
	return nil
}

// SetIgnoredBranches marks branches (by node name) whose substitution
// probabilities are replaced by the background distribution.
func (tm *TreeModel) SetIgnoredBranches(names []string) error {
	tm.Ignore = make(map[int]bool, len(names))
	for _, name := range names {
		id := tm.Tree.NodeByName(name)
		if id == tree.None {
			return fmt.Errorf("no node named %s in the tree", name)
		}
		if id == tm.Tree.Root() {
			return errors.New("root has no branch to ignore")
		}
		tm.Ignore[id] = true
	}
	tm.prepared = false
	return nil
}

// Prune removes leaves not present in names, see tree.Prune. Node
// references (subtree, ancestor, ignored branches) are resolved again
// by name after pruning.
func (tm *TreeModel) Prune(names []string) ([]string, error) {
	nameOf := func(id int) string {
		if id == tree.None {
			return ""
		}
		return tm.Tree.Node(id).Name
	}
	subtree, ancestor := nameOf(tm.SubtreeNode), nameOf(tm.AncestorNode)
	var ignored []string
	for id := range tm.Ignore {
		ignored = append(ignored, nameOf(id))
	}
	removed, err := tm.Tree.PruneToNames(names)
	if err != nil || len(removed) == 0 {
		return removed, err
	}
	tm.prepared = false
	tm.leafSeq = nil
	resolve := func(name string) (int, error) {
		id := tm.Tree.NodeByName(name)
		if id == tree.None {
			return id, fmt.Errorf("node %s was removed by pruning", name)
		}
		return id, nil
	}
	if tm.SubtreeNode != tree.None {
		if tm.SubtreeNode, err = resolve(subtree); err != nil {
			return removed, err
		}
	}
	if tm.AncestorNode != tree.None {
		if tm.AncestorNode, err = resolve(ancestor); err != nil {
			return removed, err
		}
	}
	if tm.Ignore != nil {
		tm.Ignore = make(map[int]bool, len(ignored))
		for _, name := range ignored {
			id, err := resolve(name)
			if err != nil {
				return removed, err
			}
			tm.Ignore[id] = true
		}
	}
	return removed, nil
}

// TotalLength returns the sum of branch lengths.
func (tm *TreeModel) TotalLength() float64 {
	return tm.Tree.TotalLength()
}
