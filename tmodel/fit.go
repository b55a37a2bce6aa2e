package tmodel

import (
	"errors"
	"io"
	"os"

	"github.com/mrrlab/phylofit/optimize"
)

// ErrEMConditional is returned when EM is requested with conditional
// likelihoods.
var ErrEMConditional = errors.New("EM is not available with conditional probabilities")

// FitOptions control the optimization.
type FitOptions struct {
	Precision optimize.Precision
	// Simplex selects downhill simplex instead of L-BFGS-B for the
	// direct optimization.
	Simplex bool
	// Trace receives per-iteration diagnostics if not nil.
	Trace io.Writer
	// Signals stop the optimization keeping the best point.
	Signals []os.Signal
	// ReportPeriod is the number of iterations between trace lines,
	// zero keeps the optimizer default.
	ReportPeriod int
	// Progress is called at every reported iteration with the model
	// set to the current point.
	Progress func(iter int, lnl float64)
}

// reported tests whether an iteration is written to the trace.
func (opts FitOptions) reported(iter int) bool {
	return opts.ReportPeriod <= 1 || iter%opts.ReportPeriod == 0
}

// FitML estimates parameters by direct maximization of the
// likelihood. Non-convergence is not an error, the best point found
// is kept.
func FitML(tm *TreeModel, opts FitOptions) error {
	if err := tm.Prepare(); err != nil {
		return err
	}
	tol := opts.Precision.Tolerances()
	var opt optimize.Optimizer
	switch {
	case len(tm.params) == 0:
		log.Info("No free parameters, computing likelihood only")
		opt = optimize.NewNone()
	case opts.Simplex:
		opt = optimize.NewDS(tol)
	default:
		opt = optimize.NewLBFGSB(tol)
	}
	opt.SetOptimizable(tm)
	opt.SetTrace(opts.Trace)
	opt.SetProgress(opts.Progress)
	if opts.ReportPeriod > 0 {
		opt.SetReportPeriod(opts.ReportPeriod)
	}
	if len(opts.Signals) > 0 {
		opt.WatchSignals(opts.Signals...)
		defer opt.StopSignals()
	}
	opt.Run(tol.MaxEvals)
	log.Debugf("Optimization finished after %d likelihood evaluations", opt.Calls())
	lnl, err := tm.LogLikelihood()
	if err != nil {
		return err
	}
	tm.LnL = lnl
	return nil
}

// Evaluate computes the likelihood without optimization and stores it
// in the model.
func Evaluate(tm *TreeModel) error {
	lnl, err := tm.LogLikelihood()
	if err != nil {
		return err
	}
	tm.LnL = lnl
	return nil
}
