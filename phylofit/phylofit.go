/*

Phylofit fits phylogenetic substitution models to multiple sequence
alignments by maximum likelihood.

The basic usage looks like this:

	phylofit --tree tree.nwk alignment.fst

, this will fit the REV model and write the model to phyloFit.mod.

Models can be fitted separately to site categories and alignment
windows:

	phylofit --subst-mod HKY85 --catmap features.cm --site-cats cats.txt \
		--do-cats CDS --windows 1000,500 --out-root res alignment.fst

Options can also be read from a YAML file (--config), explicit
command-line flags override the file. To see all the options run:

	phylofit -h

*/
package main

import (
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"github.com/mrrlab/phylofit/fit"
	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/submod"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = "branch: " + gitbranch + ", revision: " + githash + ", build time: " + buildstamp

// Logger settings.
var log = logging.MustGetLogger("phylofit")
var formatter = logging.MustStringFormatter(`%{message}`)

// packages with loggers
var loggers = []string{"phylofit", "fit", "tmodel", "optimize", "align", "checkpoint"}

// configFile finds the --config option before the flags are parsed,
// so the file can provide defaults for the flags.
func configFile(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

// splitList splits a comma separated list.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// parseInts parses a comma separated list of integers.
func parseInts(s string) ([]int, error) {
	var res []int
	for _, f := range splitList(s) {
		i, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, nil
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, ",")
}

func joinFloats(v []float64) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(s, ",")
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func kindNames() (names []string) {
	for _, k := range submod.Kinds() {
		names = append(names, k.String())
	}
	return
}

func main() {
	cfg := fit.DefaultConfig()
	if fn := configFile(os.Args[1:]); fn != "" {
		if err := fit.ReadConfig(fn, &cfg); err != nil {
			log.Fatal(err)
		}
	}

	app := kingpin.New("phylofit", "fits phylogenetic substitution models to alignments").Version(version)
	app.Flag("config", "read options from a YAML file").String()

	// inputs
	app.Arg("alignment", "sequence alignment (FASTA)").Default(cfg.Alignment).StringVar(&cfg.Alignment)
	app.Flag("tree", "tree topology (Newick)").Short('t').Default(cfg.Tree).StringVar(&cfg.Tree)
	app.Flag("init-model", "initialize with a fitted model file").Short('M').Default(cfg.InitModel).StringVar(&cfg.InitModel)
	app.Flag("catmap", "category map file").Short('c').Default(cfg.CatMap).StringVar(&cfg.CatMap)
	app.Flag("site-cats", "file with the category of every alignment column").Default(cfg.SiteCats).StringVar(&cfg.SiteCats)

	// model
	subst := app.Flag("subst-mod", "substitution model ("+strings.Join(kindNames(), ", ")+
		"), REV by default").Short('s').Default(cfg.Subst).String()
	precision := app.Flag("precision", "optimization precision (LOW, MED, HIGH, VERY_HIGH)").
		Short('p').Default(cfg.Precision.String()).String()
	app.Flag("EM", "fit by expectation maximization").Short('E').Default(formatBool(cfg.EM)).BoolVar(&cfg.EM)
	app.Flag("simplex", "use downhill simplex instead of L-BFGS-B").Default(formatBool(cfg.Simplex)).BoolVar(&cfg.Simplex)
	app.Flag("nrates", "number of rate categories").Short('k').Default(strconv.Itoa(cfg.NRateCats)).IntVar(&cfg.NRateCats)
	app.Flag("alpha", "initial gamma shape parameter").Short('a').
		Default(strconv.FormatFloat(cfg.Alpha, 'g', -1, 64)).Float64Var(&cfg.Alpha)
	rateConsts := app.Flag("rate-constants", "comma separated fixed rate constants").Short('K').
		Default(joinFloats(cfg.RateConsts)).String()
	app.Flag("gaps-as-bases", "treat gaps as a fifth base").Short('G').
		Default(formatBool(cfg.GapsAsBases)).BoolVar(&cfg.GapsAsBases)
	noOpt := app.Flag("no-opt", "comma separated parameters or groups (branches, backgd, ratematrix, ratevar) to keep fixed").
		Default(strings.Join(cfg.NoOpt, ",")).String()
	app.Flag("bound", "parameter bounds, name[min,max]").Default(cfg.Bounds...).StringsVar(&cfg.Bounds)
	app.Flag("sym-freqs", "symmetric background frequencies").Short('z').
		Default(formatBool(cfg.SymFreqs)).BoolVar(&cfg.SymFreqs)
	app.Flag("markov", "conditional probabilities of the last tuple position").Short('N').
		Default(formatBool(cfg.Conditional)).BoolVar(&cfg.Conditional)
	app.Flag("scale-only", "estimate only the tree scale").Short('B').
		Default(formatBool(cfg.ScaleOnly)).BoolVar(&cfg.ScaleOnly)
	app.Flag("scale-subtree", "estimate a separate scale of the subtree, name[:loss|:gain]").Short('S').
		Default(cfg.ScaleSubtree).StringVar(&cfg.ScaleSubtree)
	app.Flag("clock", "assume a molecular clock").
		Default(formatBool(cfg.Clock)).BoolVar(&cfg.Clock)
	app.Flag("no-branchlens", "keep branch lengths fixed").Default(formatBool(cfg.NoBranchLens)).BoolVar(&cfg.NoBranchLens)
	app.Flag("no-rates", "keep rate matrix parameters of the initial model").
		Default(formatBool(cfg.NoRates)).BoolVar(&cfg.NoRates)
	app.Flag("no-freqs", "keep background frequencies of the initial model").
		Default(formatBool(cfg.NoFreqs)).BoolVar(&cfg.NoFreqs)
	app.Flag("estimate-freqs", "estimate background frequencies by maximum likelihood").Short('F').
		Default(formatBool(cfg.EstimateFreqs)).BoolVar(&cfg.EstimateFreqs)
	ignore := app.Flag("ignore-branches", "comma separated branches to ignore").Short('b').
		Default(strings.Join(cfg.IgnoreBranches, ",")).String()
	app.Flag("alt-model", "alternative model for branches, nodes:KIND or nodes:param[,param]").Short('d').
		Default(cfg.AltModels...).StringsVar(&cfg.AltModels)
	app.Flag("ancestor", "leaf holding the root sequence").Short('A').Default(cfg.Ancestor).StringVar(&cfg.Ancestor)

	// units
	doCats := app.Flag("do-cats", "comma separated categories to process").Short('C').
		Default(strings.Join(cfg.DoCats, ",")).String()
	app.Flag("non-overlapping", "use non-overlapping tuples").Short('V').
		Default(formatBool(cfg.NonOverlapping)).BoolVar(&cfg.NonOverlapping)
	windows := app.Flag("windows", "sliding windows, size,shift").Short('w').
		Default(joinInts([]int{cfg.WindowSize, cfg.WindowShift})).String()
	windowsExplicit := app.Flag("windows-explicit", "comma separated window coordinates, beg1,end1,beg2,end2...").Short('v').
		Default(joinInts(cfg.WindowsExplicit)).String()
	app.Flag("min-informative", "minimal number of informative sites").Short('I').
		Default(strconv.Itoa(cfg.MinInformative)).IntVar(&cfg.MinInformative)

	// initialization
	app.Flag("init-random", "random starting point").Short('r').
		Default(formatBool(cfg.InitRandom)).BoolVar(&cfg.InitRandom)
	app.Flag("seed", "random generator seed, default time based").Short('D').
		Default(strconv.FormatInt(cfg.Seed, 10)).Int64Var(&cfg.Seed)
	app.Flag("init-parsimony", "initialize branch lengths by parsimony").Short('y').
		Default(formatBool(cfg.InitParsimony)).BoolVar(&cfg.InitParsimony)
	app.Flag("parsimony-only", "compute parsimony cost only").
		Default(formatBool(cfg.ParsimonyOnly)).BoolVar(&cfg.ParsimonyOnly)

	// likelihood-only and posteriors
	app.Flag("lnl", "compute the likelihood of the initial model without fitting").Short('L').
		Default(formatBool(cfg.LikelihoodOnly)).BoolVar(&cfg.LikelihoodOnly)
	app.Flag("column-probs", "write per column log-probabilities (with --lnl)").Short('P').
		Default(formatBool(cfg.ColumnProbs)).BoolVar(&cfg.ColumnProbs)
	app.Flag("post-probs", "write posterior probabilities of ancestral states").Short('X').
		Default(formatBool(cfg.PostProbs)).BoolVar(&cfg.PostProbs)
	app.Flag("expected-subs", "write expected numbers of substitutions").Short('Z').
		Default(formatBool(cfg.ExpSubs)).BoolVar(&cfg.ExpSubs)
	app.Flag("expected-total-subs", "write expected substitution matrices of branches").Short('H').
		Default(formatBool(cfg.ExpTotSubs)).BoolVar(&cfg.ExpTotSubs)

	// output
	app.Flag("out-root", "root of the output file names").Short('o').Default(cfg.OutRoot).StringVar(&cfg.OutRoot)
	app.Flag("trace", "write optimization trajectory to a file, - for stdout").Short('l').
		Default(cfg.Trace).StringVar(&cfg.Trace)
	app.Flag("trace-every", "write every n-th optimization iteration to the trace").
		Default(strconv.Itoa(cfg.TraceEvery)).IntVar(&cfg.TraceEvery)
	app.Flag("error", "write parameter standard errors to a file").Short('e').
		Default(cfg.ErrorFile).StringVar(&cfg.ErrorFile)
	app.Flag("parsimony-cost", "write parsimony costs to a file").Default(cfg.ParsimonyCost).StringVar(&cfg.ParsimonyCost)
	app.Flag("checkpoint", "checkpoint database").Default(cfg.Checkpoint).StringVar(&cfg.Checkpoint)
	app.Flag("json", "write json summary to a file").Default(cfg.Summary).StringVar(&cfg.Summary)
	app.Flag("plot", "plot total branch length along the windows (svg, png or pdf)").Default(cfg.Plot).StringVar(&cfg.Plot)

	// technical
	outLogF := app.Flag("log", "write log to a file").String()
	logLevel := app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	cpuProfile := app.Flag("cpuprofile", "write cpu profile to file").String()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, name := range loggers {
		logging.SetLevel(level, name)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	cfg.Subst = *subst
	if cfg.Precision, err = optimize.ParsePrecision(*precision); err != nil {
		log.Fatal(err)
	}
	cfg.RateConsts = nil
	if *rateConsts != "" {
		if cfg.RateConsts, err = optimize.ReadFloats(strings.ReplaceAll(*rateConsts, ",", " ")); err != nil {
			log.Fatal("Error parsing rate constants:", err)
		}
	}
	cfg.NoOpt = splitList(*noOpt)
	cfg.IgnoreBranches = splitList(*ignore)
	cfg.DoCats = splitList(*doCats)
	win, err := parseInts(*windows)
	if err != nil || len(win) != 2 {
		log.Fatal("Windows have to be specified as size,shift")
	}
	cfg.WindowSize, cfg.WindowShift = win[0], win[1]
	if cfg.WindowsExplicit, err = parseInts(*windowsExplicit); err != nil {
		log.Fatal("Error parsing window coordinates:", err)
	}
	cfg.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	in, err := fit.LoadInputs(&cfg)
	if err != nil {
		log.Fatal(err)
	}
	summary, err := fit.Run(cfg, in)
	if err != nil {
		log.Fatal(err)
	}
	summary.Version = version
	summary.CommandLine = os.Args
	log.Infof("Random seed=%v", summary.Seed)

	// output summary in json format
	if cfg.Summary != "" {
		if err := fit.WriteSummary(cfg.Summary, summary); err != nil {
			log.Error("Error writing json output:", err)
		}
	}
}
