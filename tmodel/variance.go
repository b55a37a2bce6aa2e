package tmodel

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// StdErrors approximates standard errors of the free parameters by
// the diagonal of the numerical Hessian of the log-likelihood at the
// current point. Parameters with a non-negative curvature get NaN.
// Parameter values are restored on return.
func StdErrors(tm *TreeModel) (map[string]float64, error) {
	f0, err := tm.LogLikelihood()
	if err != nil {
		return nil, err
	}
	pars := tm.GetFloatParameters()
	res := make(map[string]float64, len(pars))
	for _, par := range pars {
		x := par.Get()
		h := math.Max(1e-4*math.Abs(x), 1e-6)
		// shift the stencil inside the bounds
		c := x
		if c-h < par.GetMin() {
			c = par.GetMin() + h
		}
		if c+h > par.GetMax() {
			c = par.GetMax() - h
		}
		settings := &fd.Settings{
			Formula:     fd.Central2nd,
			Step:        h,
			OriginKnown: c == x,
			OriginValue: f0,
		}
		d2 := fd.Derivative(func(y float64) float64 {
			par.Set(y)
			return tm.Likelihood()
		}, c, settings)
		par.Set(x)

		if d2 < 0 && !math.IsInf(d2, 0) {
			res[par.Name()] = math.Sqrt(-1 / d2)
		} else {
			res[par.Name()] = math.NaN()
		}
	}
	tm.update()
	return res, nil
}
