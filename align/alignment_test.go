package align

import (
	"strings"
	"testing"

	"github.com/mrrlab/phylofit/bio"
)

func testAlignment(tst *testing.T) *Alignment {
	ali, err := New([]string{"a", "b", "c"}, []string{
		"AC-GTNAC",
		"ACTGT-AC",
		"ATTGCAAC",
	}, bio.DNA)
	if err != nil {
		tst.Fatal(err)
	}
	return ali
}

func TestNew(tst *testing.T) {
	if _, err := New([]string{"a", "b"}, []string{"AC", "A"}, bio.DNA); err == nil {
		tst.Error("Expected error for different lengths")
	}
	if _, err := New([]string{"a", "a"}, []string{"AC", "AG"}, bio.DNA); err == nil {
		tst.Error("Expected error for duplicate names")
	}
	seqs, _ := bio.ParseFasta(strings.NewReader(">x\nac\n>y\nag\n"))
	ali, err := FromSequences(seqs, bio.DNA)
	if err != nil || ali.NSeqs() != 2 || ali.Length() != 2 || ali.Index("y") != 1 {
		tst.Error("Error creating alignment from sequences:", err)
	}
}

func TestRefToAlign(tst *testing.T) {
	ali := testAlignment(tst)
	if ali.RefLength() != 7 {
		tst.Error("Wrong reference length:", ali.RefLength())
	}
	for pos, exp := range map[int]int{1: 1, 2: 2, 3: 4, 7: 8, 8: -1, 0: -1} {
		if got := ali.RefToAlign(pos); got != exp {
			tst.Errorf("RefToAlign(%d)=%d, expected %d", pos, got, exp)
		}
	}
}

func TestPeriodicCategories(tst *testing.T) {
	ali := testAlignment(tst)
	if err := ali.SetPeriodicCategories(3); err != nil {
		tst.Fatal(err)
	}
	cats := ali.Categories()
	if cats[0] != 1 || cats[2] != 3 || cats[3] != 1 || ali.MaxCategory() != 3 {
		tst.Error("Wrong periodic categories:", cats)
	}
}
