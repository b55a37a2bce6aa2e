package tmodel

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrrlab/phylofit/submod"
)

func TestModelRoundTrip(tst *testing.T) {
	tm, ali := getModel(tst, submod.HKY85, tree4, names4, seqs4)
	if err := tm.SetRateVariation(4, 0.7, nil); err != nil {
		tst.Fatal(err)
	}
	tm.RateParams[0] = 3.3
	if err := tm.AddAltModel("a,c:kappa"); err != nil {
		tst.Fatal(err)
	}
	tm.Alt[0].Params[0] = 1.7
	if err := Evaluate(tm); err != nil {
		tst.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteModel(&buf, tm); err != nil {
		tst.Fatal(err)
	}
	tst.Log(buf.String())
	if !strings.Contains(buf.String(), "SUBST_MOD: HKY85") {
		tst.Error("Model kind is missing")
	}

	tm2, err := ReadModel(&buf)
	if err != nil {
		tst.Fatal(err)
	}
	if err := tm2.SetData(tm.Stats(), ali.Names, -1); err != nil {
		tst.Fatal(err)
	}
	L, err := tm2.LogLikelihood()
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(L-tm.LnL) > smallDiff || math.Abs(tm2.LnL-tm.LnL) > smallDiff {
		tst.Error("Round trip changed likelihood:", tm.LnL, tm2.LnL, L)
	}
	if tm2.NRateCats != 4 || tm2.Alpha != 0.7 || len(tm2.Alt) != 1 {
		tst.Error("Wrong rate variation or alternate models:", tm2.NRateCats, tm2.Alpha, len(tm2.Alt))
	}
}

func TestModelFile(tst *testing.T) {
	tm, _ := getModel(tst, submod.REV, tree4, names4, seqs4)
	if err := tm.SetRateVariation(3, 1, []float64{0.5, 1, 2}); err != nil {
		tst.Fatal(err)
	}
	if err := Evaluate(tm); err != nil {
		tst.Fatal(err)
	}
	fn := filepath.Join(tst.TempDir(), "test.mod")
	if err := SaveModel(fn, tm); err != nil {
		tst.Fatal(err)
	}
	tm2, err := LoadModel(fn)
	if err != nil {
		tst.Fatal(err)
	}
	if len(tm2.RateConsts) != 3 || tm2.RateConsts[2] != 2 {
		tst.Error("Rate constants were not read:", tm2.RateConsts)
	}
	if tm2.Tree.NLeaves() != 4 {
		tst.Error("Wrong tree:", tm2.Tree)
	}
}

func TestReadModelErrors(tst *testing.T) {
	for _, s := range []string{
		"ALPHABET: A C G T\nTREE: (a,b);\n",
		"ALPHABET: A C G T\nSUBST_MOD: XYZ\nTREE: (a,b);\n",
		"ALPHABET: A C G T\nSUBST_MOD: HKY85\nTREE: (a,b);\nSUBST_PARAMS: rate=1\n",
		"ALPHABET: A C G T\nSUBST_MOD: HKY85\nORDER: 1\nTREE: (a,b);\n",
	} {
		if _, err := ReadModel(strings.NewReader(s)); err == nil {
			tst.Error("Expected error for", s)
		}
	}
}
