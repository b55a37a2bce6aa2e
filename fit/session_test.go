package fit

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrrlab/phylofit/align"
	"github.com/mrrlab/phylofit/bio"
	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/tmodel"
	"github.com/mrrlab/phylofit/tree"
)

// simulated returns sequences where each next sequence differs from
// the previous one at about rate of the positions.
func simulated(n, length int, rate float64) ([]string, []string) {
	rng := rand.New(rand.NewSource(42))
	names := make([]string, n)
	seqs := make([]string, n)
	b := make([]byte, length)
	for j := range b {
		b[j] = bio.DNA[rng.Intn(4)]
	}
	for i := range seqs {
		names[i] = string(rune('a' + i))
		if i > 0 {
			for j := range b {
				if rng.Float64() < rate {
					b[j] = bio.DNA[rng.Intn(4)]
				}
			}
		}
		seqs[i] = string(b)
	}
	return names, seqs
}

func testConfig(tst *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Subst = "HKY85"
	cfg.Precision = optimize.Low
	cfg.MinInformative = 0
	cfg.Seed = 1
	cfg.OutRoot = filepath.Join(tst.TempDir(), "out")
	return cfg
}

func testInputs(tst *testing.T, n, length int) *Inputs {
	names, seqs := simulated(n, length, 0.2)
	ali, err := align.New(names, seqs, bio.DNA)
	if err != nil {
		tst.Fatal(err)
	}
	return &Inputs{Alignment: ali}
}

func countLines(tst *testing.T, fn string) (n int) {
	f, err := os.Open(fn)
	if err != nil {
		tst.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return
}

func TestRunTwoSequences(tst *testing.T) {
	cfg := testConfig(tst)
	summary, err := Run(cfg, testInputs(tst, 2, 200))
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 1 {
		tst.Fatalf("expected one unit, got %d", len(summary.Units))
	}
	res := summary.Units[0]
	if res.Cat != PoolAll || res.Win != WholeAlignment || res.Informative != 200 {
		tst.Error("wrong unit:", res)
	}
	if res.LnL >= 0 || res.TotalLength <= 0 {
		tst.Errorf("wrong fit: lnL=%v, t=%v", res.LnL, res.TotalLength)
	}
	tm, err := tmodel.LoadModel(cfg.OutRoot + ModSuffix)
	if err != nil {
		tst.Fatal("cannot read the model:", err)
	}
	if math.Abs(tm.LnL-res.LnL) > 1e-6 {
		tst.Errorf("model file lnL %v differs from %v", tm.LnL, res.LnL)
	}
	fn := cfg.OutRoot + ".json"
	if err := WriteSummary(fn, summary); err != nil {
		tst.Error("cannot write summary:", err)
	}
}

func TestRunFallbackTree(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.Subst = "UNREST"
	if _, err := Run(cfg, testInputs(tst, 3, 50)); !errors.Is(err, ErrConfig) {
		tst.Error("expected a configuration error for three sequences with UNREST, got", err)
	}
	if _, err := Run(testConfig(tst), testInputs(tst, 4, 50)); !errors.Is(err, ErrConfig) {
		tst.Error("expected a configuration error for four sequences without a tree, got", err)
	}
}

func TestRunPruning(tst *testing.T) {
	cfg := testConfig(tst)
	in := testInputs(tst, 3, 100)
	var err error
	if in.Tree, err = tree.ParseNewickString("((a:0.1,x:0.1):0.1,(b:0.1,c:0.1):0.1);"); err != nil {
		tst.Fatal(err)
	}
	summary, err := Run(cfg, in)
	if err != nil {
		tst.Fatal(err)
	}
	t, err := tree.ParseNewickString(summary.Units[0].Tree)
	if err != nil {
		tst.Fatal(err)
	}
	if t.NLeaves() != 3 || t.NodeByName("x") != tree.None {
		tst.Error("leaf was not pruned:", summary.Units[0].Tree)
	}

	if in.Tree, err = tree.ParseNewickString("((x:0.1,y:0.1):0.1,z:0.1);"); err != nil {
		tst.Fatal(err)
	}
	if _, err := Run(cfg, in); !errors.Is(err, ErrConfig) {
		tst.Error("expected a name mismatch error, got", err)
	}
}

func TestRunInsufficientSites(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.MinInformative = 1000
	summary, err := Run(cfg, testInputs(tst, 2, 100))
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 1 || !summary.Units[0].Skipped {
		tst.Error("unit was not skipped")
	}
	if _, err := os.Stat(cfg.OutRoot + ModSuffix); err == nil {
		tst.Error("model of a skipped unit was written")
	}
}

func TestRunWindows(tst *testing.T) {
	if testing.Short() {
		tst.Skip("skipping window fits in short mode")
	}
	cfg := testConfig(tst)
	cfg.WindowSize = 60
	cfg.WindowShift = 30
	cfg.Plot = cfg.OutRoot + ".svg"
	summary, err := Run(cfg, testInputs(tst, 2, 120))
	if err != nil {
		tst.Fatal(err)
	}
	// windows start at 1, 31, 61 and 91
	if len(summary.Units) != 4 {
		tst.Fatalf("expected 4 units, got %d", len(summary.Units))
	}
	last := summary.Units[3]
	if last.Beg != 91 || last.End != 120 || last.Informative != 30 {
		tst.Error("wrong last window:", last)
	}
	for k := 1; k <= 4; k++ {
		fn := cfg.OutRoot + ".win-" + string(rune('0'+k)) + ModSuffix
		if _, err := os.Stat(fn); err != nil {
			tst.Error("no window model:", err)
		}
	}
	if n := countLines(tst, cfg.OutRoot+WinSumSuffix); n != 2+4 {
		tst.Errorf("expected 6 lines in window summary, got %d", n)
	}
	if _, err := os.Stat(cfg.Plot); err != nil {
		tst.Error("no plot:", err)
	}
}

func TestRunCategories(tst *testing.T) {
	cfg := testConfig(tst)
	in := testInputs(tst, 2, 120)
	cats := make([]int, 120)
	for i := range cats {
		cats[i] = i % 3
	}
	if err := in.Alignment.SetCategories(cats); err != nil {
		tst.Fatal(err)
	}
	in.CatMap, _ = ParseCategoryMap(strings.NewReader("NCATS = 2\ncodon 1-2\n"))
	cfg.DoCats = []string{"codon"}
	summary, err := Run(cfg, in)
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 2 {
		tst.Fatalf("expected 2 units, got %d", len(summary.Units))
	}
	for _, label := range []string{"codon-1", "codon-2"} {
		if _, err := os.Stat(cfg.OutRoot + "." + label + ModSuffix); err != nil {
			tst.Error("no category model:", err)
		}
	}
	if summary.Units[0].Informative != 40 {
		tst.Error("wrong number of sites in category:", summary.Units[0].Informative)
	}
}

func TestRunNonOverlapping(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.Subst = "R2"
	cfg.NonOverlapping = true
	summary, err := Run(cfg, testInputs(tst, 2, 120))
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 1 || summary.Units[0].Cat != 1 {
		tst.Fatal("expected a single unit of category 1:", summary.Units)
	}
	if summary.Units[0].Informative != 60 {
		tst.Error("expected every second column, got", summary.Units[0].Informative)
	}
	if _, err := os.Stat(cfg.OutRoot + ModSuffix); err != nil {
		tst.Error("category label should be omitted:", err)
	}
}

func TestRunLikelihoodOnly(tst *testing.T) {
	cfg := testConfig(tst)
	fit, err := Run(cfg, testInputs(tst, 2, 100))
	if err != nil {
		tst.Fatal(err)
	}

	in := testInputs(tst, 2, 100)
	if in.InputModel, err = tmodel.LoadModel(cfg.OutRoot + ModSuffix); err != nil {
		tst.Fatal(err)
	}
	lcfg := testConfig(tst)
	lcfg.InitModel = cfg.OutRoot + ModSuffix
	lcfg.LikelihoodOnly = true
	lcfg.ColumnProbs = true
	lcfg.Subst = ""
	summary, err := Run(lcfg, in)
	if err != nil {
		tst.Fatal(err)
	}
	lnl := summary.Units[0].LnL
	if math.Abs(lnl-fit.Units[0].LnL) > 1e-4 {
		tst.Errorf("likelihood %v differs from the fit %v", lnl, fit.Units[0].LnL)
	}
	f, err := os.Open(lcfg.OutRoot + ColProbSuffix)
	if err != nil {
		tst.Fatal(err)
	}
	defer f.Close()
	sum := 0.0
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var col int
		var p float64
		if _, err := fmt.Sscan(scanner.Text(), &col, &p); err != nil {
			tst.Fatal(err)
		}
		if col != n {
			tst.Errorf("expected column %d, got %d", n, col)
		}
		sum += p
		n++
	}
	if n != 100 {
		tst.Errorf("expected 100 columns, got %d", n)
	}
	if math.Abs(sum-lnl) > 1e-3 {
		tst.Errorf("column probabilities sum to %v, lnL is %v", sum, lnl)
	}
}

func TestRunInitModel(tst *testing.T) {
	cfg := testConfig(tst)
	if _, err := Run(cfg, testInputs(tst, 3, 100)); err != nil {
		tst.Fatal(err)
	}
	in := testInputs(tst, 3, 100)
	var err error
	if in.InputModel, err = tmodel.LoadModel(cfg.OutRoot + ModSuffix); err != nil {
		tst.Fatal(err)
	}
	cfg2 := testConfig(tst)
	cfg2.InitModel = cfg.OutRoot + ModSuffix
	cfg2.Subst = ""
	cfg2.ScaleOnly = true
	summary, err := Run(cfg2, in)
	if err != nil {
		tst.Fatal(err)
	}
	if summary.Model != "HKY85" {
		tst.Error("model kind was not taken from the input model:", summary.Model)
	}
	if _, ok := summary.Units[0].Parameters["scale"]; !ok {
		tst.Error("no scale parameter:", summary.Units[0].Parameters)
	}

	// random initialization takes precedence over the input model
	cfg2.InitRandom = true
	random, err := Run(cfg2, in)
	if err != nil {
		tst.Fatal("random initialization with an input model failed:", err)
	}
	if _, ok := random.Units[0].Parameters["scale"]; !ok || random.Units[0].LnL >= 0 {
		tst.Error("wrong fit from a random start:", random.Units[0])
	}
	cfg2.InitRandom = false

	cfg2.Subst = "REV"
	if _, err := Run(cfg2, in); !errors.Is(err, ErrConfig) {
		tst.Error("expected a model mismatch error, got", err)
	}

	// no leaf of the input model matches the alignment
	cfg2.Subst = ""
	_, seqs := simulated(3, 100, 0.2)
	if in.Alignment, err = align.New([]string{"x", "y", "z"}, seqs, bio.DNA); err != nil {
		tst.Fatal(err)
	}
	if _, err := Run(cfg2, in); !errors.Is(err, ErrConfig) {
		tst.Error("expected a name mismatch error, got", err)
	}
}

func TestRunInitModelRepeatedUnits(tst *testing.T) {
	// a shared input model starts every unit from the input values, so
	// identical units give identical fits
	if testing.Short() {
		tst.Skip("skipping repeated fits in short mode")
	}
	nwk := "((a,b),(c,d));"
	cfg := testConfig(tst)
	in := testInputs(tst, 4, 150)
	var err error
	if in.Tree, err = tree.ParseNewickString(nwk); err != nil {
		tst.Fatal(err)
	}
	if _, err := Run(cfg, in); err != nil {
		tst.Fatal(err)
	}

	in = testInputs(tst, 4, 150)
	if err := in.Alignment.SetCategories(make([]int, 150)); err != nil {
		tst.Fatal(err)
	}
	if in.InputModel, err = tmodel.LoadModel(cfg.OutRoot + ModSuffix); err != nil {
		tst.Fatal(err)
	}
	cfg2 := testConfig(tst)
	cfg2.InitModel = cfg.OutRoot + ModSuffix
	cfg2.Subst = ""
	cfg2.ScaleOnly = true
	cfg2.DoCats = []string{"0", "0", "0"}
	summary, err := Run(cfg2, in)
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 3 {
		tst.Fatalf("expected 3 units, got %d", len(summary.Units))
	}
	first := summary.Units[0]
	for _, res := range summary.Units[1:] {
		if math.Abs(res.LnL-first.LnL) > 1e-6 {
			tst.Errorf("identical units differ: %v vs %v", first.LnL, res.LnL)
		}
		if math.Abs(res.TotalLength-first.TotalLength) > 1e-6 {
			tst.Errorf("identical units have different trees: %s vs %s", first.Tree, res.Tree)
		}
		if math.Abs(res.Parameters["scale"]-first.Parameters["scale"]) > 1e-6 {
			tst.Errorf("scale changed between units: %v vs %v",
				first.Parameters["scale"], res.Parameters["scale"])
		}
	}
}

func TestRestoreLengths(tst *testing.T) {
	src, _ := tree.ParseNewickString("((a:0.1,b:0.2):0.3,(c:0.4,d:0.5):0.6);")
	dst := src.Copy()
	for v := 0; v < dst.NNodes(); v++ {
		if v != dst.Root() {
			dst.Node(v).BranchLength *= 7
		}
	}
	restoreLengths(dst, src)
	if dst.String() != src.String() {
		tst.Errorf("internal branches were not restored: %s, expected %s", dst, src)
	}
}

func TestRunPosteriors(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.Subst = "JC69"
	cfg.PostProbs = true
	cfg.ExpSubs = true
	cfg.ExpTotSubs = true
	if _, err := Run(cfg, testInputs(tst, 3, 60)); err != nil {
		tst.Fatal(err)
	}
	for _, suffix := range []string{PostProbSuffix, ExpSubSuffix, ExpTotSubSuffix} {
		if n := countLines(tst, cfg.OutRoot+suffix); n < 3 {
			tst.Errorf("%s: too few lines (%d)", suffix, n)
		}
	}
}

func TestRunParsimonyOnly(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.InitParsimony = true
	cfg.ParsimonyOnly = true
	cfg.ParsimonyCost = cfg.OutRoot + ".pars"
	summary, err := Run(cfg, testInputs(tst, 3, 60))
	if err != nil {
		tst.Fatal(err)
	}
	if len(summary.Units) != 0 {
		tst.Error("parsimony-only mode should not fit")
	}
	if n := countLines(tst, cfg.ParsimonyCost); n != 1 {
		tst.Errorf("expected one parsimony cost, got %d", n)
	}
}

func TestRunCheckpoint(tst *testing.T) {
	cfg := testConfig(tst)
	cfg.Checkpoint = filepath.Join(tst.TempDir(), "checkpoint.db")
	first, err := Run(cfg, testInputs(tst, 2, 100))
	if err != nil {
		tst.Fatal(err)
	}
	second, err := Run(cfg, testInputs(tst, 2, 100))
	if err != nil {
		tst.Fatal(err)
	}
	if !second.Units[0].Resumed {
		tst.Error("unit was not restored from the checkpoint")
	}
	if math.Abs(first.Units[0].LnL-second.Units[0].LnL) > 1e-6 {
		tst.Errorf("restored lnL %v differs from %v", second.Units[0].LnL, first.Units[0].LnL)
	}
}
