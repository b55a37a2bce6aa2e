package tree

import (
	"math"
	"testing"
)

func TestPruneCollapse(tst *testing.T) {
	t, err := ParseNewickString("((a:1,b:2):3,(c:1,d:4):2);")
	if err != nil {
		tst.Fatal(err)
	}
	removed, err := t.PruneToNames([]string{"a", "c", "d"})
	if err != nil {
		tst.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "b" {
		tst.Error("Wrong removed leaves:", removed)
	}
	if t.NNodes() != 5 {
		tst.Error("Expected 5 nodes after pruning, got", t.NNodes())
	}
	a := t.NodeByName("a")
	if a == None || t.Node(a).Parent != t.Root() {
		tst.Fatal("Degree-1 node was not collapsed:", t.FullString())
	}
	if t.Node(a).BranchLength != 4 {
		tst.Error("Collapsed branch length is wrong:", t.Node(a).BranchLength)
	}
	for i := 0; i < t.NNodes(); i++ {
		if t.Node(i).ID != i {
			tst.Error("Node ids are not dense")
		}
	}
	if t.String() != "(a:4,(c:1,d:4):2);" {
		tst.Error("Unexpected tree:", t)
	}
}

func TestPruneRoot(tst *testing.T) {
	t, err := ParseNewickString("((a:1,b:2):3,c:1);")
	if err != nil {
		tst.Fatal(err)
	}
	if _, err := t.PruneToNames([]string{"a", "b"}); err != nil {
		tst.Fatal(err)
	}
	if t.String() != "(a:1,b:2);" {
		tst.Error("Root with a single child was not replaced:", t)
	}
	if math.Abs(t.TotalLength()-3) > 1e-12 {
		tst.Error("Wrong total length", t.TotalLength())
	}
}

func TestPruneIdempotent(tst *testing.T) {
	t, err := ParseNewickString(tree1)
	if err != nil {
		tst.Fatal(err)
	}
	names := []string{"a001", "a004", "a007", "a010", "a011", "a012"}
	removed, err := t.PruneToNames(names)
	if err != nil {
		tst.Fatal(err)
	}
	if len(removed) != 6 {
		tst.Error("Expected 6 removed leaves, got", removed)
	}
	s := t.String()
	removed, err = t.PruneToNames(names)
	if err != nil || len(removed) != 0 {
		tst.Error("Second pruning removed leaves:", removed, err)
	}
	if t.String() != s {
		tst.Error("Second pruning changed the tree")
	}
}

func TestPruneAll(tst *testing.T) {
	t, err := ParseNewickString("((a,b),c);")
	if err != nil {
		tst.Fatal(err)
	}
	removed, err := t.PruneToNames([]string{"x"})
	if err != ErrAllPruned || len(removed) != 3 {
		tst.Error("Expected all leaves pruned:", removed, err)
	}
	if t.NLeaves() != 3 {
		tst.Error("Tree changed after failed pruning")
	}
}
