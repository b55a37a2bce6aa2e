// Package dist implements discretized rate distributions.
package dist

import (
	"math"

	"github.com/gonum/mathext"
)

// IncompleteGamma returns the regularized incomplete gamma ratio
// P(alpha, x).
func IncompleteGamma(x, alpha float64) float64 {
	return mathext.GammaInc(alpha, x)
}

// QuantileGamma returns quantile of the gamma distribution with shape
// alpha and rate beta.
func QuantileGamma(prob, alpha, beta float64) float64 {
	if prob <= 0 {
		return 0
	}
	if prob >= 1 {
		return math.Inf(1)
	}
	lo, hi := 0.0, math.Max(1, alpha)
	for IncompleteGamma(hi, alpha) < prob {
		lo = hi
		hi *= 2
	}
	for i := 0; i < 500 && hi-lo > 1e-14*hi; i++ {
		mid := (lo + hi) / 2
		if IncompleteGamma(mid, alpha) < prob {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2 / beta
}

// DiscreteGamma returns K rate categories of G(alpha, beta) with
// equal proportions. With UseMedian the median of every category is
// used (rescaled to keep the mean), otherwise the category mean.
// res is reused if not nil.
func DiscreteGamma(alpha, beta float64, K int, UseMedian bool, res []float64) []float64 {
	if res == nil {
		res = make([]float64, K)
	}
	if K == 1 {
		res[0] = alpha / beta
		return res
	}
	mean := alpha / beta
	fK := float64(K)

	if UseMedian {
		t := 0.0
		for i := 0; i < K; i++ {
			res[i] = QuantileGamma((float64(i)*2+1)/(2*fK), alpha, beta)
			t += res[i]
		}
		for i := range res {
			res[i] *= mean * fK / t
		}
		return res
	}

	prev := 0.0
	for i := 0; i < K-1; i++ {
		cut := QuantileGamma(float64(i+1)/fK, alpha, beta)
		cur := IncompleteGamma(cut*beta, alpha+1)
		res[i] = (cur - prev) * mean * fK
		prev = cur
	}
	res[K-1] = (1 - prev) * mean * fK
	return res
}

// RateCategories describes across-site rate variation: relative rates
// and their mixture weights.
type RateCategories struct {
	Rates   []float64
	Weights []float64
}

// GammaRates returns K equally weighted discrete gamma categories with
// mean one.
func GammaRates(alpha float64, K int) RateCategories {
	rc := RateCategories{
		Rates:   DiscreteGamma(alpha, alpha, K, false, nil),
		Weights: make([]float64, K),
	}
	for i := range rc.Weights {
		rc.Weights[i] = 1 / float64(K)
	}
	return rc
}

// Mean returns weighted mean of the rates.
func (rc RateCategories) Mean() (m float64) {
	for i, r := range rc.Rates {
		m += r * rc.Weights[i]
	}
	return
}
