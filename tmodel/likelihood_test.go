package tmodel

import (
	"math"
	"testing"

	"github.com/op/go-logging"

	"github.com/mrrlab/phylofit/align"
	"github.com/mrrlab/phylofit/bio"
	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tree"
)

// smallDiff is a threshold for likelihood comparisons.
const smallDiff = 1e-6

func init() {
	logging.SetLevel(logging.WARNING, "optimize")
	logging.SetLevel(logging.WARNING, "tmodel")
	logging.SetLevel(logging.WARNING, "align")
}

var (
	names4 = []string{"a", "b", "c", "d"}
	seqs4  = []string{
		"ACGTTGCAAC-GTNACGTAACGTTAAA",
		"ACGTTGCAGC-GTAACGTAACGCTAAA",
		"ACTTTGCAGCAGTAACTTAAC-TTAAA",
		"ACTTCGNAGCAGTAACTTGACGTTGN-",
	}
	tree4 = "((a:0.1,b:0.2):0.05,(c:0.15,d:0.1):0.1);"
)

func getModel(tst *testing.T, kind submod.Kind, nwk string, names, seqs []string) (*TreeModel, *align.Alignment) {
	t, err := tree.ParseNewickString(nwk)
	if err != nil {
		tst.Fatal("Error parsing tree:", err)
	}
	sub, err := submod.New(kind, bio.DNA)
	if err != nil {
		tst.Fatal("Error creating model:", err)
	}
	ali, err := align.New(names, seqs, bio.DNA)
	if err != nil {
		tst.Fatal("Error creating alignment:", err)
	}
	tm := New(t, sub)
	stats, err := align.Extract(ali, kind.Order()+1, nil)
	if err != nil {
		tst.Fatal("Error extracting statistics:", err)
	}
	if err := tm.SetData(stats, ali.Names, -1); err != nil {
		tst.Fatal("Error attaching data:", err)
	}
	return tm, ali
}

func TestJC69TwoSequences(tst *testing.T) {
	tm, _ := getModel(tst, submod.JC69, "(a:0.1,b:0.2);",
		[]string{"a", "b"}, []string{"AAC", "AGC"})
	L, err := tm.LogLikelihood()
	if err != nil {
		tst.Fatal(err)
	}
	e := math.Exp(-4.0 / 3.0 * 0.3)
	refL := 2*math.Log(0.25*(0.25+0.75*e)) + math.Log(0.25*(0.25-0.25*e))
	tst.Log("L=", L, ", Ref=", refL)
	if math.Abs(L-refL) > smallDiff {
		tst.Error("Expected ", refL, ", got ", L)
	}
}

func TestCompactionInvariance(tst *testing.T) {
	for _, kind := range []submod.Kind{submod.HKY85, submod.REV, submod.U2} {
		tm, ali := getModel(tst, kind, tree4, names4, seqs4)
		raw, err := tm.LogLikelihood()
		if err != nil {
			tst.Fatal(err)
		}
		stats, _ := align.Extract(ali, kind.Order()+1, nil)
		ntuples := stats.NTuples()
		stats.Compact(bio.DNA, true)
		if kind.Order() == 0 && stats.NTuples() >= ntuples {
			tst.Error("Compaction did not merge tuples:", ntuples, stats.NTuples())
		}
		if err := tm.SetData(stats, ali.Names, -1); err != nil {
			tst.Fatal(err)
		}
		compacted, err := tm.LogLikelihood()
		if err != nil {
			tst.Fatal(err)
		}
		tst.Log(kind, ": raw=", raw, ", compacted=", compacted)
		if math.IsNaN(raw) || math.Abs(raw-compacted) > smallDiff {
			tst.Error(kind, ": likelihood changed after compaction:", raw, compacted)
		}
	}
}

func TestRateVariationLikelihood(tst *testing.T) {
	tm, _ := getModel(tst, submod.HKY85, tree4, names4, seqs4)
	L1, _ := tm.LogLikelihood()
	if err := tm.SetRateVariation(4, 1000, nil); err != nil {
		tst.Fatal(err)
	}
	L4, _ := tm.LogLikelihood()
	// large alpha approaches a single rate
	if math.Abs(L1-L4) > 0.05 {
		tst.Error("Expected similar likelihoods, got", L1, L4)
	}
	if err := tm.SetRateVariation(2, 1, []float64{2, 0.5}); err != nil {
		tst.Fatal(err)
	}
	if tm.RateConsts[0] != 0.5 {
		tst.Error("Rate constants are not sorted:", tm.RateConsts)
	}
	Lc, err := tm.LogLikelihood()
	if err != nil || math.IsNaN(Lc) || Lc >= 0 {
		tst.Error("Wrong likelihood with rate constants:", Lc, err)
	}
}

func TestValidateRateConsts(tst *testing.T) {
	if err := ValidateRateConsts([]float64{0.5, 1.0, 2.0}, 3); err != nil {
		tst.Error("Unexpected error:", err)
	}
	for _, c := range []struct {
		consts []float64
		n      int
	}{
		{[]float64{0.5, 1.0, 2.0}, 2},
		{[]float64{1}, 1},
		{[]float64{1, 1}, 2},
		{[]float64{-1, 1}, 2},
	} {
		if err := ValidateRateConsts(c.consts, c.n); err == nil {
			tst.Error("Expected error for", c.consts, c.n)
		}
	}
}

func TestConditional(tst *testing.T) {
	tm, _ := getModel(tst, submod.U2, tree4, names4, seqs4)
	full, _ := tm.LogLikelihood()
	tm.Conditional = true
	cond, err := tm.LogLikelihood()
	if err != nil {
		tst.Fatal(err)
	}
	if cond < full || cond > 0 {
		tst.Error("Conditional likelihood out of range:", full, cond)
	}

	tm0, _ := getModel(tst, submod.HKY85, tree4, names4, seqs4)
	full0, _ := tm0.LogLikelihood()
	tm0.Conditional = true
	cond0, _ := tm0.LogLikelihood()
	if math.Abs(full0-cond0) > smallDiff {
		tst.Error("Conditioning on an empty prefix changed likelihood:", full0, cond0)
	}
}

func TestIgnoredBranch(tst *testing.T) {
	tm, _ := getModel(tst, submod.JC69, "(a:0.1,b:0.2);",
		[]string{"a", "b"}, []string{"AAC", "AGC"})
	if err := tm.SetIgnoredBranches([]string{"b"}); err != nil {
		tst.Fatal(err)
	}
	L, _ := tm.LogLikelihood()
	// b is independent of a: every site has probability 1/16
	refL := 3 * math.Log(1.0/16)
	if math.Abs(L-refL) > smallDiff {
		tst.Error("Expected ", refL, ", got ", L)
	}
}

func TestColumnLogProbs(tst *testing.T) {
	tm, ali := getModel(tst, submod.HKY85, tree4, names4, seqs4)
	total, _ := tm.LogLikelihood()
	cols, err := tm.ColumnLogProbs()
	if err != nil {
		tst.Fatal(err)
	}
	if len(cols) != ali.Length() {
		tst.Fatal("Wrong number of columns:", len(cols))
	}
	s := 0.0
	for _, x := range cols {
		s += x
	}
	if math.Abs(s-total) > smallDiff {
		tst.Error("Column probabilities do not sum to the likelihood:", s, total)
	}
}

func TestSetDataErrors(tst *testing.T) {
	tm, ali := getModel(tst, submod.HKY85, tree4, names4, seqs4)
	stats2, _ := align.Extract(ali, 2, nil)
	if err := tm.SetData(stats2, ali.Names, -1); err == nil {
		tst.Error("Expected tuple size error")
	}
	stats, _ := align.Extract(ali, 1, nil)
	if err := tm.SetData(stats, []string{"a", "b", "c", "x"}, -1); err == nil {
		tst.Error("Expected missing leaf error")
	}
}
