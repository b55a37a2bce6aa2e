package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a bounded quasi-Newton optimizer with finite difference
// gradients.
type LBFGSB struct {
	BaseOptimizer
	dH       float64
	ftol     float64
	gtol     float64
	maxEvals int
	grad     []float64
	stopped  bool
}

// NewLBFGSB creates a new L-BFGS-B optimizer with the tolerances of
// the precision tier.
func NewLBFGSB(tol Tolerances) *LBFGSB {
	return &LBFGSB{
		BaseOptimizer: BaseOptimizer{
			repPeriod: 1,
		},
		dH:       1e-6,
		ftol:     tol.FTol,
		gtol:     tol.GTol,
		maxEvals: tol.MaxEvals,
	}
}

func (l *LBFGSB) exhausted() bool {
	if l.stopped {
		return true
	}
	if l.maxEvals > 0 && l.calls >= l.maxEvals*(len(l.parameters)+1) {
		log.Infof("Likelihood evaluation budget exhausted (%d calls)", l.calls)
		l.stopped = true
	}
	return l.stopped
}

// Logger is called by the L-BFGS-B implementation every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	if l.repPeriod > 0 && l.i%l.repPeriod == 0 {
		l.PrintLine(-info.F)
	}
	if l.signalled() {
		l.stopped = true
	}
}

// EvaluateFunction returns negative log-likelihood. After the
// evaluation budget is exhausted the best value is returned, which
// makes the optimizer converge.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.exhausted() {
		return -l.maxL
	}
	return -l.evaluate(x)
}

// EvaluateGradient computes the central difference gradient of the
// negative log-likelihood. Near the bounds one-sided differences are
// used.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	grad := l.grad
	if l.exhausted() {
		for i := range grad {
			grad[i] = 0
		}
		return grad
	}
	xc := make([]float64, len(x))
	copy(xc, x)
	f0 := math.NaN()
	for i := range x {
		par := l.parameters[i]
		lo, hi := x[i]-l.dH, x[i]+l.dH
		var d float64
		switch {
		case par.ValueInRange(lo) && par.ValueInRange(hi):
			xc[i] = lo
			f1 := -l.evaluate(xc)
			xc[i] = hi
			f2 := -l.evaluate(xc)
			d = (f2 - f1) / 2 / l.dH
		default:
			if math.IsNaN(f0) {
				f0 = -l.evaluate(x)
			}
			if par.ValueInRange(hi) {
				xc[i] = hi
				d = (-l.evaluate(xc) - f0) / l.dH
			} else {
				xc[i] = lo
				f1 := -l.evaluate(xc)
				d = (f0 - f1) / l.dH
			}
		}
		xc[i] = x[i]
		if math.IsInf(d, 0) || math.IsNaN(d) {
			d = 0
		}
		grad[i] = d
	}
	l.parameters.SetValues(x)
	return grad
}

// Run starts the optimization. The iterations argument is ignored,
// the tolerances and the evaluation budget control convergence.
func (l *LBFGSB) Run(iterations int) {
	l.maxL = math.Inf(-1)
	l.stopped = false
	l.PrintHeader()
	if len(l.parameters) == 0 {
		l.l = l.evaluate(nil)
		return
	}
	bounds := make([][2]float64, len(l.parameters))
	x0 := l.parameters.Values(nil)
	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + 1e-5
		bounds[i][1] = par.GetMax() - 1e-5
		if x0[i] < bounds[i][0] {
			x0[i] = bounds[i][0]
		}
		if x0[i] > bounds[i][1] {
			x0[i] = bounds[i][1]
		}
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(l.ftol)
	opt.SetGTolerance(l.gtol)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, x0)

	log.Debugf("L-BFGS-B exit status: %v", exitStatus)
	l.restoreBest()
	log.Debugf("Maximum likelihood: %v, function calls: %v", l.maxL, l.calls)
	l.PrintFinal()
}
