package align

import (
	"testing"

	"github.com/mrrlab/phylofit/bio"
)

func TestExtract(tst *testing.T) {
	ali := testAlignment(tst)
	s, err := Extract(ali, 1, nil)
	if err != nil {
		tst.Fatal(err)
	}
	if s.Total(-1) != float64(ali.Length()) {
		tst.Error("Total count differs from alignment length:", s.Total(-1))
	}
	// columns 1 and 7 are AAA
	if s.NTuples() != 7 {
		tst.Error("Expected 7 distinct tuples, got", s.NTuples(), s.Tuples)
	}
	if s.Tuples[s.TupleIdx[0]] != "AAA" || s.Counts[s.TupleIdx[0]] != 2 {
		tst.Error("Wrong tuple for the first column")
	}
	if ali.Stats() != s {
		tst.Error("Statistics were not attached")
	}
}

func TestExtractOrder(tst *testing.T) {
	ali := testAlignment(tst)
	s, err := Extract(ali, 2, nil)
	if err != nil {
		tst.Fatal(err)
	}
	t := s.TupleIdx[0]
	if s.Symbol(t, 0, 0) != bio.Missing || s.Symbol(t, 0, 1) != 'A' {
		tst.Error("Position before start is not missing:", s.Tuples[t])
	}
	t = s.TupleIdx[1]
	if s.Tuples[t] != "ACACAT" {
		tst.Error("Wrong tuple layout:", s.Tuples[t])
	}
}

func TestExtractCategories(tst *testing.T) {
	ali := testAlignment(tst)
	ali.SetPeriodicCategories(2)
	s, err := Extract(ali, 1, []int{1})
	if err != nil {
		tst.Fatal(err)
	}
	if s.Total(-1) != 4 || s.Total(1) != 4 || s.Total(2) != 0 {
		tst.Error("Wrong category totals:", s.Total(-1), s.Total(1), s.Total(2))
	}
	if s.TupleIdx[1] != -1 {
		tst.Error("Excluded column is indexed")
	}
}

func TestCompact(tst *testing.T) {
	ali, err := New([]string{"a", "b"}, []string{"ANR-A", "AAA-A"}, bio.DNA)
	if err != nil {
		tst.Fatal(err)
	}
	s, _ := Extract(ali, 1, nil)
	before := s.NTuples()
	s.Compact(bio.DNA, false)
	if s.NTuples() != 3 || before != 4 {
		tst.Error("Wrong number of tuples after compaction:", before, s.Tuples)
	}
	if s.Tuples[s.TupleIdx[1]] != "*A" {
		tst.Error("Ambiguous symbol was not replaced:", s.Tuples[s.TupleIdx[1]])
	}
	if s.Total(-1) != 5 {
		tst.Error("Compaction changed total count")
	}

	s, _ = Extract(ali, 1, nil)
	s.Compact(bio.DNA, true)
	if s.NTuples() != 3 || s.Tuples[s.TupleIdx[3]] != "**" {
		tst.Error("Gaps were not treated as missing:", s.Tuples)
	}
}

func TestInformative(tst *testing.T) {
	ali := testAlignment(tst)
	s, _ := Extract(ali, 1, nil)
	// column 6 has a single observed base
	if n := s.Informative(bio.DNA, -1); n != 7 {
		tst.Error("Expected 7 informative sites, got", n)
	}
}

func TestWindow(tst *testing.T) {
	ali := testAlignment(tst)
	s, _ := Extract(ali, 1, nil)
	w, err := s.Window(2, 4)
	if err != nil {
		tst.Fatal(err)
	}
	if w.Total(-1) != 3 {
		tst.Error("Wrong window total:", w.Total(-1))
	}
	if _, err := s.Window(5, 20); err == nil {
		tst.Error("Expected error for window outside of the alignment")
	}
	f := w.Frequencies(bio.DNA, -1)
	if f[0] != 0 || f[1] != 2.0/8 || f[2] != 3.0/8 || f[3] != 3.0/8 {
		tst.Error("Wrong frequencies:", f)
	}
}
