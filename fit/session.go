package fit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mrrlab/phylofit/align"
	"github.com/mrrlab/phylofit/bio"
	"github.com/mrrlab/phylofit/checkpoint"
	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tmodel"
	"github.com/mrrlab/phylofit/tree"
)

// checkpointSeconds is the minimal interval between intermediate
// checkpoints.
const checkpointSeconds = 60

// Inputs are the data of a run.
type Inputs struct {
	Alignment *align.Alignment
	// Tree is the template tree, it is copied for every unit.
	Tree *tree.Tree
	// InputModel is a previously fitted model; it is shared between
	// the units.
	InputModel *tmodel.TreeModel
	CatMap     *CategoryMap
}

// LoadInputs reads the files named in the configuration.
func LoadInputs(cfg *Config) (*Inputs, error) {
	if cfg.Alignment == "" {
		return nil, configError("no alignment file")
	}
	in := &Inputs{}
	seqs, err := bio.ReadFasta(cfg.Alignment)
	if err != nil {
		return nil, err
	}
	if in.Alignment, err = align.FromSequences(seqs, alphabet(cfg.GapsAsBases)); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Alignment, err)
	}
	log.Infof("Read alignment of %d sequences, %d columns", in.Alignment.NSeqs(), in.Alignment.Length())

	if cfg.Tree != "" {
		f, err := os.Open(cfg.Tree)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if in.Tree, err = tree.ParseNewick(f); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Tree, err)
		}
	}
	if cfg.InitModel != "" {
		if in.InputModel, err = tmodel.LoadModel(cfg.InitModel); err != nil {
			return nil, err
		}
	}
	if cfg.CatMap != "" {
		if in.CatMap, err = ReadCategoryMap(cfg.CatMap); err != nil {
			return nil, err
		}
	}
	if cfg.SiteCats != "" {
		cats, err := readSiteCategories(cfg.SiteCats)
		if err != nil {
			return nil, err
		}
		if err := in.Alignment.SetCategories(cats); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.SiteCats, err)
		}
	}
	return in, nil
}

// readSiteCategories reads whitespace separated column categories.
func readSiteCategories(fn string) ([]int, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cats []int
	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		c, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		cats = append(cats, c)
	}
	return cats, scanner.Err()
}

// alphabet returns the alignment alphabet.
func alphabet(gapsAsBases bool) string {
	if gapsAsBases {
		return bio.DNA + string(bio.Gap)
	}
	return bio.DNA
}

// fallbackTree builds a tree when neither a tree nor an input model is
// available: two sequences or three sequences with a reversible model.
func fallbackTree(names []string, kind submod.Kind) (*tree.Tree, error) {
	switch {
	case len(names) == 2:
		return tree.ParseNewickString("(" + names[0] + "," + names[1] + ");")
	case len(names) == 3 && kind.Reversible():
		return tree.ParseNewickString("(" + names[0] + ",(" + names[1] + "," + names[2] + "));")
	}
	return nil, configError("a tree is required for %d sequences with %v", len(names), kind)
}

// session is the mutable state of a run.
type session struct {
	cfg      Config
	in       *Inputs
	cm       *CategoryMap
	kind     submod.Kind
	alphabet string
	stats    *align.Stats
	cats     []int
	windows  []Window

	// shared is the borrowed input model, template is its pristine
	// copy used for initialization.
	shared   *tmodel.TreeModel
	template *tmodel.TreeModel
	attached bool

	noOpt  map[string]bool
	bounds map[string]tmodel.Bound
	rng    *rand.Rand
	seed   int64

	db        *bolt.DB
	files     []*os.File
	trace     io.Writer
	parsimony io.Writer
	errFile   io.Writer
	winSum    io.Writer
}

// Run fits models of all the units. Configuration errors wrap
// ErrConfig.
func Run(cfg Config, in *Inputs) (summary *RunSummary, err error) {
	startTime := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := newSession(cfg, in)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	summary = &RunSummary{Seed: s.seed, Model: s.kind.String()}
	units := BuildUnits(s.cats, s.windows)
	log.Infof("%d estimation units", len(units))
	for _, u := range units {
		res, err := s.runUnit(u)
		if err != nil {
			return summary, fmt.Errorf("%s: %w", unitDescription(u), err)
		}
		if res != nil {
			summary.Units = append(summary.Units, *res)
		}
	}
	summary.TotalTime = time.Since(startTime).Seconds()

	if cfg.Plot != "" {
		if s.windows == nil {
			log.Warning("Plot requires windows, skipping")
		} else if err := plotWindows(cfg.Plot, summary.Units); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func newSession(cfg Config, in *Inputs) (*session, error) {
	if in == nil || in.Alignment == nil {
		return nil, configError("no alignment")
	}
	s := &session{
		cfg:      cfg,
		in:       in,
		cm:       in.CatMap,
		alphabet: alphabet(cfg.GapsAsBases),
	}
	var err error
	if s.kind, err = cfg.Kind(in.InputModel); err != nil {
		return nil, err
	}
	if in.InputModel != nil {
		if in.InputModel.Kind() != s.kind {
			return nil, configError("substitution model %v differs from %v of the initial model",
				s.kind, in.InputModel.Kind())
		}
		s.shared = in.InputModel
		if cfg.InitRandom {
			log.Warning("Random initialization overrides the parameters of the initial model")
		}
		s.template = in.InputModel.Copy()
		// node ids of the template have to match the pruned model
		if _, err := s.template.Prune(in.Alignment.Names); err != nil {
			if errors.Is(err, tree.ErrAllPruned) {
				return nil, configError("no match for leaves of tree in alignment (leaf names must match alignment names)")
			}
			return nil, configError("%v", err)
		}
	}
	if cfg.GapsAsBases && !s.kind.SupportsGapsAsBases() {
		return nil, configError("gaps as bases are not supported with %v", s.kind)
	}
	if cfg.Ancestor != "" && s.kind.Reversible() {
		return nil, configError("ancestor requires a non-reversible model, got %v", s.kind)
	}
	if in.Tree == nil && in.InputModel == nil {
		if in.Tree, err = fallbackTree(in.Alignment.Names, s.kind); err != nil {
			return nil, err
		}
		log.Infof("Using tree %s", in.Tree)
	}

	ali := in.Alignment
	restrict := cfg.DoCats
	if cfg.NonOverlapping {
		if !ali.HasSequences() {
			return nil, configError("non-overlapping tuples require raw sequences")
		}
		if err := ali.SetPeriodicCategories(s.kind.Order() + 1); err != nil {
			return nil, err
		}
		restrict = []string{"1"}
		s.cm = nil
	}
	if s.cats, err = resolveCategories(ali, restrict, s.cm); err != nil {
		return nil, err
	}

	switch {
	case cfg.WindowSize > 0:
		s.windows = MapWindows(ali, GenerateWindows(cfg.WindowSize, cfg.WindowShift, ali.Length()))
	case cfg.WindowsExplicit != nil:
		s.windows = MapWindows(ali, PairWindows(cfg.WindowsExplicit))
	}

	if err := s.extractStats(len(restrict) > 0 && ali.HasCategories()); err != nil {
		return nil, err
	}

	if cfg.NoOpt != nil {
		s.noOpt = make(map[string]bool, len(cfg.NoOpt))
		for _, name := range cfg.NoOpt {
			s.noOpt[name] = true
		}
	}
	if s.bounds, err = tmodel.ParseBounds(cfg.Bounds); err != nil {
		return nil, configError("%v", err)
	}

	s.seed = cfg.Seed
	if s.seed < 0 {
		s.seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(s.seed))

	if err := s.openOutputs(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// extractStats computes and compacts the sufficient statistics. With
// a category restriction only the requested categories are counted.
func (s *session) extractStats(restricted bool) error {
	ali := s.in.Alignment
	tupleSize := s.kind.Order() + 1
	stats := ali.Stats()
	if stats == nil || stats.TupleSize != tupleSize {
		var cats []int
		if restricted {
			cats = s.cats
		}
		log.Info("Extracting sufficient statistics")
		var err error
		if stats, err = align.Extract(ali, tupleSize, cats); err != nil {
			return err
		}
		ali.SetStats(stats)
		if ali.Length() > align.LargeAlignment {
			log.Debug("Dropping raw sequences")
			ali.DropSequences()
		}
	}
	if !s.cfg.LikelihoodOnly {
		log.Info("Compacting sufficient statistics")
		stats.Compact(s.alphabet, !s.cfg.GapsAsBases)
	}
	s.stats = stats
	return nil
}

// create opens an output file; "-" is the standard output.
func (s *session) create(fn string) (io.Writer, error) {
	if fn == "-" {
		return os.Stdout, nil
	}
	f, err := os.Create(fn)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	return f, nil
}

func (s *session) openOutputs() (err error) {
	if s.cfg.Checkpoint != "" {
		if s.db, err = checkpoint.Open(s.cfg.Checkpoint); err != nil {
			return fmt.Errorf("opening checkpoint %s: %w", s.cfg.Checkpoint, err)
		}
		if keys, err := checkpoint.Keys(s.db); err == nil && len(keys) > 0 {
			log.Infof("Checkpoint has %d saved units", len(keys))
		}
	}
	if s.cfg.Trace != "" {
		if s.trace, err = s.create(s.cfg.Trace); err != nil {
			return err
		}
	}
	if s.cfg.ParsimonyCost != "" {
		if s.parsimony, err = s.create(s.cfg.ParsimonyCost); err != nil {
			return err
		}
	}
	if s.cfg.ErrorFile != "" {
		if s.errFile, err = s.create(s.cfg.ErrorFile); err != nil {
			return err
		}
	}
	if s.windows != nil {
		if s.winSum, err = s.create(s.cfg.OutRoot + WinSumSuffix); err != nil {
			return err
		}
		writeWindowHeader(s.winSum)
	}
	return nil
}

func (s *session) close() error {
	var first error
	for _, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.files = nil
	if s.db != nil {
		if err := s.db.Close(); err != nil && first == nil {
			first = err
		}
		s.db = nil
	}
	return first
}

// model returns the working model of a unit: a fresh model over a copy
// of the template tree or the reset shared model.
func (s *session) model() (*tmodel.TreeModel, error) {
	if s.shared == nil {
		sub, err := submod.New(s.kind, s.alphabet)
		if err != nil {
			return nil, err
		}
		tm := tmodel.New(s.in.Tree.Copy(), sub)
		if err := tm.SetRateVariation(s.cfg.NRateCats, s.cfg.AlphaValue(), s.cfg.RateConsts); err != nil {
			return nil, configError("%v", err)
		}
		return tm, nil
	}
	tm := s.shared
	if s.cfg.LikelihoodOnly {
		return tm, nil
	}
	if err := tm.Reset(s.cfg.NRateCats, s.cfg.AlphaValue(), s.cfg.AlphaSet(), s.cfg.RateConsts); err != nil {
		return nil, configError("%v", err)
	}
	return tm, nil
}

// configure applies estimation settings. A model used verbatim for
// likelihood computation only gets the settings changing the
// likelihood.
func (s *session) configure(tm *tmodel.TreeModel) error {
	cfg := &s.cfg
	if !cfg.LikelihoodOnly {
		if s.noOpt != nil {
			tm.NoOpt = make(map[string]bool, len(s.noOpt))
			for k := range s.noOpt {
				tm.NoOpt[k] = true
			}
		}
		tm.SymFreqs = cfg.SymFreqs
		tm.Bounds = s.bounds
		switch {
		case cfg.ScaleSubtree != "":
			name, dir, err := parseSubtree(cfg.ScaleSubtree)
			if err != nil {
				return err
			}
			if err := tm.SetSubtree(name, dir); err != nil {
				return configError("%v", err)
			}
		case cfg.ScaleOnly:
			tm.BranchMode = tmodel.BranchScale
		case cfg.Clock:
			tm.BranchMode = tmodel.BranchClock
		}
		if cfg.NoBranchLens {
			tm.BranchMode = tmodel.BranchNone
		}
		tm.EstimateRates = !cfg.NoRates
		tm.EstimateFreqs = cfg.EstimateFreqs
	}
	tm.Conditional = cfg.Conditional
	if cfg.IgnoreBranches != nil {
		if err := tm.SetIgnoredBranches(cfg.IgnoreBranches); err != nil {
			return configError("%v", err)
		}
	}
	tm.Invalidate()
	return nil
}

// prune removes leaves without sequences. Losing every leaf means the
// names do not match at all.
func (s *session) prune(tm *tmodel.TreeModel) error {
	oldNNodes := tm.Tree.NNodes()
	removed, err := tm.Prune(s.in.Alignment.Names)
	if errors.Is(err, tree.ErrAllPruned) || len(removed) == (oldNNodes+1)/2 {
		return configError("no match for leaves of tree in alignment (leaf names must match alignment names)")
	}
	if err != nil {
		return configError("%v", err)
	}
	if len(removed) > 0 {
		log.Warningf("Pruned away leaves of tree with no match in alignment (%s)", strings.Join(removed, ", "))
	}
	return nil
}

// attach adds alternate models and the ancestor after pruning. A
// model used verbatim gets them once.
func (s *session) attach(tm *tmodel.TreeModel) error {
	if s.cfg.LikelihoodOnly && s.attached {
		return nil
	}
	s.attached = true
	for _, spec := range s.cfg.AltModels {
		if err := tm.AddAltModel(spec); err != nil {
			return configError("%v", err)
		}
	}
	if s.cfg.Ancestor != "" {
		if err := tm.SetAncestor(s.cfg.Ancestor); err != nil {
			return configError("%v", err)
		}
	}
	return nil
}

// initialize sets the starting point by one of the strategies.
func (s *session) initialize(tm *tmodel.TreeModel) error {
	switch {
	case s.cfg.InitRandom:
		log.Debug("Random initialization")
		return tmodel.InitRandom(tm, s.rng)
	case s.template != nil:
		log.Debug("Initialization from the input model")
		restoreLengths(tm.Tree, s.template.Tree)
		tm.Invalidate()
		tmodel.InitFrom(tm, s.template)
	default:
		tmodel.InitDefault(tm, DefaultBranchLength, DefaultKappa, s.cfg.AlphaValue())
	}
	return nil
}

// restoreLengths copies branch lengths of the template. Both trees
// were pruned to the same leaves, so node ids match; unnamed internal
// branches are restored as well.
func restoreLengths(dst, src *tree.Tree) {
	if dst.NNodes() == src.NNodes() {
		for v := 0; v < dst.NNodes(); v++ {
			if v != dst.Root() {
				dst.Node(v).BranchLength = src.Node(v).BranchLength
			}
		}
		return
	}
	for v := 0; v < dst.NNodes(); v++ {
		name := dst.Node(v).Name
		if name == "" || v == dst.Root() {
			continue
		}
		if w := src.NodeByName(name); w != tree.None {
			dst.Node(v).BranchLength = src.Node(w).BranchLength
		}
	}
}

// runUnit processes a single unit. It returns nil if the unit was
// skipped in parsimony-only mode.
func (s *session) runUnit(u Unit) (*UnitResult, error) {
	startTime := time.Now()
	cfg := &s.cfg
	name := s.unitName(u)
	desc := unitDescription(u)
	res := &UnitResult{Name: name, Cat: u.Cat, Win: u.Win}
	if u.Win != WholeAlignment {
		res.Beg, res.End = u.Beg, u.End
	}

	stats := s.stats
	if u.Win != WholeAlignment {
		var err error
		if stats, err = s.stats.Window(u.Beg, u.End); err != nil {
			return nil, err
		}
	}
	ninf := stats.Informative(s.alphabet, u.Cat)
	res.Informative = int(ninf)
	if ninf < float64(cfg.MinInformative) {
		log.Warningf("Skipping %s; insufficient informative sites", desc)
		res.Skipped = true
		return res, nil
	}

	tm, err := s.model()
	if err != nil {
		return nil, err
	}
	if err := s.configure(tm); err != nil {
		return nil, err
	}
	if err := s.prune(tm); err != nil {
		return nil, err
	}
	if err := s.attach(tm); err != nil {
		return nil, err
	}
	if !cfg.LikelihoodOnly && !cfg.NoFreqs {
		// estimated afresh from the unit data
		tm.Freqs = nil
	}
	if err := tm.SetData(stats, s.in.Alignment.Names, u.Cat); err != nil {
		return nil, err
	}

	if cfg.LikelihoodOnly {
		if err := s.likelihood(tm, name, desc); err != nil {
			return nil, err
		}
	} else {
		if err := s.initialize(tm); err != nil {
			return nil, err
		}
		if cfg.InitParsimony {
			cost, err := tmodel.InitParsimony(tm)
			if err != nil {
				return nil, err
			}
			res.ParsimonyCost = cost
			if s.parsimony != nil {
				fmt.Fprintf(s.parsimony, "%f\n", cost)
			}
			if cfg.ParsimonyOnly {
				log.Noticef("Parsimony cost of %s: %f", desc, cost)
				return nil, nil
			}
		}
		if res.Resumed, err = s.fit(tm, name, desc); err != nil {
			return nil, err
		}
		if s.errFile != nil {
			if err := s.writeErrors(tm, name); err != nil {
				return nil, err
			}
		}
	}

	if cfg.OutRoot != "" {
		fn := name + ModSuffix
		log.Infof("Writing model to %s", fn)
		if err := tmodel.SaveModel(fn, tm); err != nil {
			return nil, err
		}
	}
	if cfg.Posteriors() && cfg.OutRoot != "" {
		if err := s.writePosteriors(tm, name); err != nil {
			return nil, err
		}
	}

	res.LnL = tm.LnL
	res.GC = backgroundGC(tm)
	res.TotalLength = tm.TotalLength()
	res.Tree = tm.Tree.String()
	res.Parameters = tm.ParamMap()
	res.Time = time.Since(startTime).Seconds()
	if s.winSum != nil {
		writeWindowRow(s.winSum, *res)
	}
	return res, nil
}

// likelihood evaluates the model without fitting.
func (s *session) likelihood(tm *tmodel.TreeModel, name, desc string) error {
	log.Infof("Computing likelihood of %s", desc)
	if err := tmodel.Evaluate(tm); err != nil {
		return err
	}
	log.Noticef("lnL = %f", tm.LnL)
	if !s.cfg.ColumnProbs {
		return nil
	}
	probs, err := tm.ColumnLogProbs()
	if err != nil {
		return err
	}
	fn := name + ColProbSuffix
	log.Infof("Writing column probabilities to %s", fn)
	return createFile(fn, func(w io.Writer) error {
		return writeColProbs(w, probs)
	})
}

// fit optimizes the model. A final checkpoint restores the parameters
// without optimization, an intermediate one is the starting point.
func (s *session) fit(tm *tmodel.TreeModel, name, desc string) (resumed bool, err error) {
	var cio *checkpoint.CheckpointIO
	if s.db != nil {
		key := name
		if key == "" {
			key = "all"
		}
		cio = checkpoint.NewCheckpointIO(s.db, key, checkpointSeconds)
		data, err := cio.Load()
		if err != nil {
			log.Warningf("Cannot load checkpoint of %s: %v", desc, err)
		}
		if data != nil {
			tm.SetParamMap(data.Parameters)
			if data.Final {
				log.Noticef("Restored %s from checkpoint", desc)
				return true, tmodel.Evaluate(tm)
			}
			log.Infof("Resuming %s from checkpoint, iteration %d", desc, data.Iter)
		}
	}

	opts := tmodel.FitOptions{
		Precision:    s.cfg.Precision,
		Simplex:      s.cfg.Simplex,
		Trace:        s.trace,
		ReportPeriod: s.cfg.TraceEvery,
		Signals:      s.cfg.Signals,
	}
	if cio != nil {
		cio.SetNow()
		opts.Progress = func(iter int, lnl float64) {
			if cio.Old() {
				cio.Save(&checkpoint.CheckpointData{
					Parameters: tm.ParamMap(),
					Likelihood: lnl,
					Iter:       iter,
				})
			}
		}
	}

	rv := ""
	if tm.NRateCats > 1 {
		rv = " (with rate variation)"
	}
	log.Infof("Fitting tree model to %s using %v%s", desc, tm.Kind(), rv)
	if s.cfg.EM {
		err = tmodel.FitEM(tm, opts)
	} else {
		err = tmodel.FitML(tm, opts)
	}
	if err != nil {
		return false, err
	}
	log.Noticef("%s: lnL = %f", desc, tm.LnL)

	if cio != nil {
		err := cio.Save(&checkpoint.CheckpointData{
			Parameters: tm.ParamMap(),
			Likelihood: tm.LnL,
			Final:      true,
		})
		if err != nil {
			log.Warningf("Cannot save checkpoint of %s: %v", desc, err)
		}
	}
	return false, nil
}

// writeErrors appends standard errors of the free parameters.
func (s *session) writeErrors(tm *tmodel.TreeModel, name string) error {
	se, err := tmodel.StdErrors(tm)
	if err != nil {
		return err
	}
	values := tm.ParamMap()
	names := make([]string, 0, len(se))
	for n := range se {
		names = append(names, n)
	}
	sort.Strings(names)
	if name == "" {
		name = "all"
	}
	fmt.Fprintf(s.errFile, "# %s\n", name)
	for _, n := range names {
		fmt.Fprintf(s.errFile, "%s\t%g\t%g\n", n, values[n], se[n])
	}
	return nil
}

// writePosteriors writes the requested posterior tables. Posteriors
// are released on return.
func (s *session) writePosteriors(tm *tmodel.TreeModel, name string) error {
	post, err := tm.ComputePosteriors()
	if err != nil {
		return err
	}
	outputs := []struct {
		enabled bool
		suffix  string
		write   func(io.Writer, *tmodel.TreeModel, *tmodel.Posteriors) error
	}{
		{s.cfg.PostProbs, PostProbSuffix, writePostProbs},
		{s.cfg.ExpSubs, ExpSubSuffix, writeExpSubs},
		{s.cfg.ExpTotSubs, ExpTotSubSuffix, writeExpTotSubs},
	}
	for _, o := range outputs {
		if !o.enabled {
			continue
		}
		fn := name + o.suffix
		log.Infof("Writing %s", fn)
		write := o.write
		err := createFile(fn, func(w io.Writer) error {
			return write(w, tm, post)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
