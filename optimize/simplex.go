package optimize

import (
	"math"
)

// Simplex constants.
const (
	TINY  = 1e-10
	SMALL = 1e-6
)

// DS is the downhill simplex (Nelder-Mead) optimizer.
type DS struct {
	BaseOptimizer
	delta  float64
	ftol   float64
	repeat bool
	oldL   float64
	points [][]float64
	psum   []float64
	lik    []float64
	trial  []float64
}

// NewDS creates a new downhill simplex optimizer.
func NewDS(tol Tolerances) *DS {
	ds := &DS{
		delta: 0.1,
		ftol:  tol.FTol,
	}
	ds.repPeriod = 10
	return ds
}

// createSimplex builds a simplex around start. Every vertex moves one
// coordinate by delta; the direction is flipped if the bound would be
// violated.
func (ds *DS) createSimplex(start []float64) {
	n := len(start)
	ds.points = make([][]float64, n+1)
	ds.lik = make([]float64, n+1)
	for i := range ds.points {
		ds.points[i] = append([]float64(nil), start...)
		if i > 0 {
			par := ds.parameters[i-1]
			step := ds.delta * math.Max(math.Abs(start[i-1]), 1)
			if !par.ValueInRange(start[i-1] + step) {
				step = -step
			}
			ds.points[i][i-1] += step
		}
		ds.lik[i] = ds.evaluate(ds.points[i])
	}
	ds.psum = make([]float64, n)
	ds.trial = make([]float64, n)
}

func (ds *DS) calcPsum() {
	for j := range ds.psum {
		ds.psum[j] = 0
		for _, point := range ds.points {
			ds.psum[j] += point[j]
		}
	}
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the low point, tries it, and replaces the low point if
// the new point is better.
func (ds *DS) amotry(ilo int, fac float64) float64 {
	ds.calcPsum()
	ndim := len(ds.psum)
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := 0; j < ndim; j++ {
		ds.trial[j] = ds.psum[j]*fac1 - ds.points[ilo][j]*fac2
	}
	l := ds.evaluate(ds.trial)
	if l > ds.lik[ilo] {
		copy(ds.points[ilo], ds.trial)
		ds.lik[ilo] = l
	}
	return l
}

// Run maximizes the likelihood for at most iterations steps.
func (ds *DS) Run(iterations int) {
	ds.PrintHeader()
	if len(ds.parameters) == 0 {
		ds.l = ds.evaluate(nil)
		return
	}
	ds.createSimplex(ds.parameters.Values(nil))
	// lowest (worst), next-lowest and highest points
	var ilo, inlo, ihi int
	var llo, lnlo, lhi float64
Iter:
	for ds.i = 1; ds.i <= iterations; ds.i++ {
		if ds.lik[0] < ds.lik[1] {
			ilo, inlo, ihi = 0, 1, 1
		} else {
			ilo, inlo, ihi = 1, 0, 0
		}
		llo, lnlo, lhi = ds.lik[ilo], ds.lik[inlo], ds.lik[ihi]
		for i := 2; i < len(ds.points); i++ {
			if ds.lik[i] >= lhi {
				lhi = ds.lik[i]
				ihi = i
			}
			if ds.lik[i] < llo {
				lnlo, inlo = llo, ilo
				llo, ilo = ds.lik[i], i
			} else if ds.lik[i] < lnlo {
				lnlo, inlo = ds.lik[i], i
			}
		}
		ds.l = lhi
		if ds.repPeriod > 0 && ds.i%ds.repPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", ds.i, lhi, lhi-llo)
			ds.parameters.SetValues(ds.points[ihi])
			ds.PrintLine(lhi)
		}
		rtol := 2 * math.Abs(lhi-llo) / (math.Abs(llo) + math.Abs(lhi) + TINY)
		if rtol < ds.ftol {
			if ds.repeat && math.Abs(ds.oldL-lhi) < SMALL {
				break Iter
			}
			ds.repeat = true
			ds.oldL = lhi
			log.Debug("Simplex converged, restarting")
			ds.createSimplex(append([]float64(nil), ds.points[ihi]...))
			continue
		}
		l := ds.amotry(ilo, -1)
		switch {
		case l >= lhi:
			ds.amotry(ilo, 2)
		case l <= lnlo:
			l := ds.amotry(ilo, 0.5)
			if l <= llo {
				for i, point := range ds.points {
					if i == ihi {
						continue
					}
					for j := range point {
						point[j] = 0.5 * (point[j] + ds.points[ihi][j])
					}
					ds.lik[i] = ds.evaluate(point)
				}
			}
		}
		if ds.signalled() {
			break Iter
		}
	}
	if ds.i > iterations {
		log.Infof("Simplex iterations exceeded (%d)", iterations)
	}
	ds.restoreBest()
	log.Debugf("Finished downhill simplex, maximum likelihood: %v", ds.maxL)
	ds.PrintFinal()
}
