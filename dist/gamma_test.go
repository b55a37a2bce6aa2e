package dist

import (
	"math"
	"testing"
)

const smallDiff = 1e-6

func appreq(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestQuantileGamma(tst *testing.T) {
	for _, alpha := range []float64{0.1, 0.5, 1, 2.5, 10} {
		for _, p := range []float64{0.01, 0.25, 0.5, 0.9} {
			q := QuantileGamma(p, alpha, 1)
			if !appreq(IncompleteGamma(q, alpha), p, smallDiff) {
				tst.Error("Wrong quantile for", alpha, p, ":", q)
			}
		}
	}
	// exponential distribution
	if q := QuantileGamma(0.5, 1, 2); !appreq(q, math.Log(2)/2, smallDiff) {
		tst.Error("Wrong exponential median:", q)
	}
}

func TestDiscreteGammaMean(tst *testing.T) {
	// Yang (1994), alpha=0.5, four categories
	exp := []float64{0.0334, 0.2519, 0.8203, 2.8944}
	res := DiscreteGamma(0.5, 0.5, 4, false, nil)
	for i := range exp {
		if !appreq(res[i], exp[i], 1e-3) {
			tst.Error("Wrong rate", i, "expected", exp[i], "got", res[i])
		}
	}
}

func TestGammaRates(tst *testing.T) {
	for _, settings := range []struct {
		alpha float64
		k     int
	}{{0.2, 4}, {1, 3}, {5, 8}, {1, 1}} {
		rc := GammaRates(settings.alpha, settings.k)
		if !appreq(rc.Mean(), 1, 1e-6) {
			tst.Error("Mean is not one:", settings, rc.Mean())
		}
		for i := 1; i < len(rc.Rates); i++ {
			if rc.Rates[i] <= rc.Rates[i-1] {
				tst.Error("Rates are not increasing:", rc.Rates)
			}
		}
	}
	med := DiscreteGamma(2, 2, 5, true, nil)
	s := 0.0
	for _, r := range med {
		s += r
	}
	if !appreq(s/5, 1, 1e-9) {
		tst.Error("Median rates do not keep mean:", med)
	}
}
