package tree

import "errors"

// ErrAllPruned is returned when pruning would remove every leaf.
var ErrAllPruned = errors.New("all the leaves were pruned")

// Prune removes leaves for which keep returns false and collapses
// internal nodes left with a single child; the branch of a collapsed
// node is added to its surviving child. A root with one child is
// replaced by the child. Surviving nodes are renumbered densely
// keeping their relative order. Names of removed leaves are returned
// in the order of the original ids. If no leaf survives the tree is
// left unchanged and ErrAllPruned is returned.
func (t *Tree) Prune(keep func(name string) bool) (removed []string, err error) {
	n := len(t.nodes)
	rep := make([]int, n)
	kids := make([][]int, n)
	extra := make([]float64, n)

	for _, id := range t.Postorder() {
		node := &t.nodes[id]
		if node.IsTerminal() {
			if keep(node.Name) {
				rep[id] = id
			} else {
				rep[id] = None
			}
			continue
		}
		var alive []int
		for _, c := range node.Children {
			if rep[c] != None {
				alive = append(alive, rep[c])
			}
		}
		switch len(alive) {
		case 0:
			rep[id] = None
		case 1:
			rep[id] = alive[0]
			if !node.IsRoot() {
				extra[alive[0]] += node.BranchLength
			}
		default:
			rep[id] = id
			kids[id] = alive
		}
	}

	for i := range t.nodes {
		if t.nodes[i].IsTerminal() && rep[i] == None {
			removed = append(removed, t.nodes[i].Name)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if rep[t.root] == None {
		return removed, ErrAllPruned
	}

	nodes := make([]Node, 0, n)
	var build func(old, parent int) int
	build = func(old, parent int) int {
		id := len(nodes)
		node := t.nodes[old]
		node.ID = id
		node.Parent = parent
		node.Children = nil
		node.BranchLength += extra[old]
		if parent == None {
			node.BranchLength = 0
		}
		nodes = append(nodes, node)
		for _, c := range kids[old] {
			cid := build(c, id)
			nodes[id].Children = append(nodes[id].Children, cid)
		}
		return id
	}
	build(rep[t.root], None)

	t.nodes = nodes
	t.root = 0
	t.ClearCache()
	return removed, nil
}

// PruneToNames prunes the tree keeping only leaves with names in the
// list.
func (t *Tree) PruneToNames(names []string) ([]string, error) {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return t.Prune(func(name string) bool { return set[name] })
}
