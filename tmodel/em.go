package tmodel

import (
	"fmt"
	"math"

	"github.com/mrrlab/phylofit/optimize"
)

// expectedCounts are the sufficient statistics of the complete data
// computed by the E-step.
type expectedCounts struct {
	// edges[k][v] are n*n expected transition counts on the branch
	// above v in rate category k
	edges [][][]float64
	root  []float64
	occ   []float64
}

// expectation runs the E-step and returns the expected counts and
// the current log-likelihood.
func (tm *TreeModel) expectation() (*expectedCounts, float64, error) {
	if err := tm.ensurePrepared(); err != nil {
		return nil, 0, err
	}
	pm, err := tm.transitionMatrices()
	if err != nil {
		return nil, 0, err
	}
	n := tm.NStates()
	nn := tm.Tree.NNodes()
	root := tm.Tree.Root()
	K := len(pm)
	ec := &expectedCounts{
		edges: make([][][]float64, K),
		root:  make([]float64, n),
		occ:   make([]float64, K),
	}
	for k := range ec.edges {
		ec.edges[k] = newVectors(nn, n*n)
	}
	prs := make([]*pruner, K)
	for k := range prs {
		prs[k] = tm.newPruner()
	}
	out := newVectors(nn, n)
	pre := newVectors(nn, n)
	joint := make([]float64, n*n)
	marg := make([]float64, n)
	cl := make([]float64, K)
	lnl := 0.0
	for t, c := range tm.stats.CountsFor(tm.cat) {
		if c == 0 {
			continue
		}
		for k := range pm {
			cl[k] = math.Log(tm.rates.Weights[k]) + prs[k].inside(t, pm[k], false)
		}
		l := logSumExp(cl)
		lnl += c * l
		for k, pr := range prs {
			gamma := math.Exp(cl[k] - l)
			if gamma < 1e-300 {
				continue
			}
			w := c * gamma
			ec.occ[k] += w
			pr.outside(pm[k], out, pre)
			pr.nodeMarginal(root, out, marg)
			for i, x := range marg {
				ec.root[i] += w * x
			}
			for v := 0; v < nn; v++ {
				if v == root {
					continue
				}
				pr.edgeJoint(v, pm[k], pre, joint)
				e := ec.edges[k][v]
				for i, x := range joint {
					e[i] += w * x
				}
			}
		}
	}
	return ec, lnl, nil
}

// emObjective is the expected complete-data log-likelihood.
type emObjective struct {
	tm *TreeModel
	ec *expectedCounts
}

func (o *emObjective) GetFloatParameters() optimize.FloatParameters {
	return o.tm.GetFloatParameters()
}

func (o *emObjective) Likelihood() float64 {
	tm := o.tm
	tm.update()
	pm, err := tm.transitionMatrices()
	if err != nil {
		return math.Inf(-1)
	}
	q := 0.0
	for i, x := range o.ec.root {
		if x > 0 {
			q += x * math.Log(math.Max(tm.Freqs[i], 1e-300))
		}
	}
	for k, x := range o.ec.occ {
		if x > 0 {
			q += x * math.Log(tm.rates.Weights[k])
		}
	}
	for k, edges := range o.ec.edges {
		for v, e := range edges {
			if e == nil || pm[k][v] == nil {
				continue
			}
			p := pm[k][v]
			for i, x := range e {
				if x > 0 {
					q += x * math.Log(math.Max(p[i], 1e-300))
				}
			}
		}
	}
	return q
}

// FitEM estimates parameters by expectation maximization. The M-step
// maximizes the expected complete-data log-likelihood with L-BFGS-B.
// Iterations stop when the log-likelihood improvement falls below the
// precision tolerance or after the iteration cap.
func FitEM(tm *TreeModel, opts FitOptions) error {
	if tm.Conditional {
		return ErrEMConditional
	}
	if err := tm.Prepare(); err != nil {
		return err
	}
	tol := opts.Precision.Tolerances()
	if opts.Trace != nil {
		fmt.Fprintf(opts.Trace, "iteration\tlikelihood\t%s\n", tm.params.NamesString())
	}
	prev := math.Inf(-1)
	best := math.Inf(-1)
	var bestPar []float64
	it := 0
	for it = 1; it <= tol.EMIter; it++ {
		ec, lnl, err := tm.expectation()
		if err != nil {
			return err
		}
		if opts.reported(it) {
			if opts.Trace != nil {
				fmt.Fprintf(opts.Trace, "%d\t%f\t%s\n", it, lnl, tm.params.ValuesString())
			}
			if opts.Progress != nil {
				opts.Progress(it, lnl)
			}
		}
		if lnl > best {
			best = lnl
			bestPar = tm.params.Values(bestPar)
		}
		if lnl-prev < tol.EMTol {
			break
		}
		prev = lnl
		if len(tm.params) == 0 {
			break
		}
		opt := optimize.NewLBFGSB(tol)
		opt.SetOptimizable(&emObjective{tm: tm, ec: ec})
		opt.Run(tol.MaxEvals)
	}
	if it > tol.EMIter {
		log.Infof("EM did not converge after %d iterations", tol.EMIter)
	}
	if bestPar != nil {
		tm.params.SetValues(bestPar)
	}
	lnl, err := tm.LogLikelihood()
	if err != nil {
		return err
	}
	tm.LnL = lnl
	return nil
}
