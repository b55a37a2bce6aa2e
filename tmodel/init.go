package tmodel

import (
	"math/rand"
)

// InitDefault sets the default starting point: branch lengths, rate
// parameters governing transitions set to kappa and others to one,
// and the gamma shape alpha. In scale mode the input branch lengths
// are kept.
func InitDefault(tm *TreeModel, branch, kappa, alpha float64) {
	if tm.BranchMode == BranchFree || tm.BranchMode == BranchClock {
		for v := 0; v < tm.Tree.NNodes(); v++ {
			if v != tm.Tree.Root() {
				tm.Tree.Node(v).BranchLength = branch
			}
		}
	}
	setRates := func(params []float64, sub interface{ IsTransitionParam(int) bool }) {
		for p := range params {
			if sub.IsTransitionParam(p) {
				params[p] = kappa
			} else {
				params[p] = 1
			}
		}
	}
	setRates(tm.RateParams, tm.Sub)
	for _, alt := range tm.Alt {
		setRates(alt.Params, alt.model(tm))
	}
	if tm.NRateCats > 1 {
		tm.Alpha = alpha
	}
	tm.Invalidate()
}

// InitRandom draws every free parameter uniformly from its start
// range.
func InitRandom(tm *TreeModel, rng *rand.Rand) error {
	if err := tm.Prepare(); err != nil {
		return err
	}
	tm.params.Randomize(rng)
	tm.update()
	return nil
}

// InitFrom copies parameter values from another model by name.
func InitFrom(tm, src *TreeModel) {
	if tm == src {
		return
	}
	tm.SetParamMap(src.ParamMap())
}
