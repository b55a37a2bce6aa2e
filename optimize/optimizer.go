// Package optimize implements parameter vectors and numerical
// optimizers maximizing a likelihood function.
package optimize

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("optimize")

// Optimizable is a function of a parameter vector which can be
// maximized.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
}

// Optimizer maximizes an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetTrace(io.Writer)
	WatchSignals(...os.Signal)
	StopSignals()
	SetReportPeriod(period int)
	SetProgress(func(iter int, l float64))
	Run(iterations int)
	GetL() float64
	GetMaxL() float64
	Calls() int
}

// BaseOptimizer contains functionality shared by the optimizers.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	l          float64
	maxL       float64
	maxLPar    []float64
	calls      int
	repPeriod  int
	sig        chan os.Signal
	trace      io.Writer
	progress   func(int, float64)
}

// SetOptimizable sets the function to maximize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
	o.maxL = math.Inf(-1)
}

// SetTrace sets a writer for per-iteration diagnostics.
func (o *BaseOptimizer) SetTrace(w io.Writer) {
	o.trace = w
}

// WatchSignals makes optimizer stop after receiving one of the
// signals. The best point found so far is kept.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// StopSignals stops watching signals.
func (o *BaseOptimizer) StopSignals() {
	if o.sig != nil {
		signal.Stop(o.sig)
		o.sig = nil
	}
}

// SetReportPeriod sets how often (in iterations) the trace line is
// written and the progress function called.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetProgress sets a function called at every reported iteration
// with the current parameters set.
func (o *BaseOptimizer) SetProgress(f func(iter int, l float64)) {
	o.progress = f
}

func (o *BaseOptimizer) signalled() bool {
	if o.sig == nil {
		return false
	}
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, stopping optimization", s)
		return true
	default:
		return false
	}
}

// evaluate computes the likelihood at x and keeps the best point.
func (o *BaseOptimizer) evaluate(x []float64) float64 {
	if !o.parameters.ValuesInRange(x) {
		return math.Inf(-1)
	}
	o.parameters.SetValues(x)
	L := o.Likelihood()
	o.calls++
	if math.IsNaN(L) {
		return math.Inf(-1)
	}
	if L > o.maxL || o.maxLPar == nil {
		o.maxL = L
		o.maxLPar = o.parameters.Values(o.maxLPar)
	}
	return L
}

// restoreBest sets parameters to the best point found.
func (o *BaseOptimizer) restoreBest() {
	if o.maxLPar != nil {
		o.parameters.SetValues(o.maxLPar)
		o.l = o.maxL
	}
}

// PrintHeader writes the trace header.
func (o *BaseOptimizer) PrintHeader() {
	if o.trace != nil {
		fmt.Fprintf(o.trace, "iteration\tlikelihood\t%s\n", o.parameters.NamesString())
	}
}

// PrintLine writes the current point to the trace and reports the
// progress.
func (o *BaseOptimizer) PrintLine(l float64) {
	if o.trace != nil {
		fmt.Fprintf(o.trace, "%d\t%f\t%s\n", o.i, l, o.parameters.ValuesString())
	}
	if o.progress != nil {
		o.progress(o.i, l)
	}
}

// PrintFinal logs the final parameter values.
func (o *BaseOptimizer) PrintFinal() {
	for _, par := range o.parameters {
		log.Debugf("%s=%v", par.Name(), par.Get())
	}
}

// GetL returns the final likelihood.
func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

// GetMaxL returns the maximum likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// Calls returns the number of likelihood evaluations.
func (o *BaseOptimizer) Calls() int {
	return o.calls
}
