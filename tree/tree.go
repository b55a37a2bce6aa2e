// Package tree implements rooted phylogenetic trees stored as an
// arena of nodes. Nodes are addressed by dense integer ids; parent and
// children are stored as ids, so copying a tree is a slice copy.
package tree

import (
	"fmt"
	"strings"
)

// None is the id used for a missing parent.
const None = -1

// Node is a tree node. Node ID always equals its index in the
// tree arena.
type Node struct {
	Name         string
	BranchLength float64
	ID           int
	Parent       int
	Children     []int
	Class        int
}

// IsRoot returns true for the root node.
func (node *Node) IsRoot() bool {
	return node.Parent == None
}

// IsTerminal returns true if the node is a leaf.
func (node *Node) IsTerminal() bool {
	return len(node.Children) == 0
}

// LongString returns a human readable node description.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.IsRoot() {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("ID=%v, BranchLength=%v", node.ID, node.BranchLength)
	if node.Class != 0 {
		s += fmt.Sprintf(", Class=%v", node.Class)
	}
	s += ">"
	return
}

// Tree is a rooted tree.
type Tree struct {
	nodes []Node
	root  int
	// cached traversals
	postorder []int
	leaves    []int
}

// New creates a tree consisting of a single root node.
func New() *Tree {
	return &Tree{
		nodes: []Node{{ID: 0, Parent: None}},
	}
}

// AddNode appends a new node as a child of parent and returns its id.
func (t *Tree) AddNode(parent int, name string, length float64) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Name:         name,
		BranchLength: length,
		ID:           id,
		Parent:       parent,
	})
	if parent != None {
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}
	t.ClearCache()
	return id
}

// ClearCache drops cached traversals. It has to be called after the
// structure of the tree has been changed.
func (t *Tree) ClearCache() {
	t.postorder = nil
	t.leaves = nil
}

// NNodes returns the number of nodes.
func (t *Tree) NNodes() int {
	return len(t.nodes)
}

// Root returns the root id.
func (t *Tree) Root() int {
	return t.root
}

// Node returns node by its id.
func (t *Tree) Node(id int) *Node {
	return &t.nodes[id]
}

// Postorder returns node ids so that every node follows all its
// descendants; the root is the last element.
func (t *Tree) Postorder() []int {
	if t.postorder == nil {
		t.postorder = make([]int, 0, len(t.nodes))
		var visit func(int)
		visit = func(id int) {
			for _, c := range t.nodes[id].Children {
				visit(c)
			}
			t.postorder = append(t.postorder, id)
		}
		visit(t.root)
	}
	return t.postorder
}

// Preorder returns node ids with every parent before its children.
func (t *Tree) Preorder() []int {
	post := t.Postorder()
	pre := make([]int, len(post))
	for i, id := range post {
		pre[len(post)-1-i] = id
	}
	return pre
}

// Leaves returns ids of terminal nodes in postorder.
func (t *Tree) Leaves() []int {
	if t.leaves == nil {
		for _, id := range t.Postorder() {
			if t.nodes[id].IsTerminal() {
				t.leaves = append(t.leaves, id)
			}
		}
	}
	return t.leaves
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	return len(t.Leaves())
}

// NodeByName returns id of the first node with the name, or None.
func (t *Tree) NodeByName(name string) int {
	for i := range t.nodes {
		if t.nodes[i].Name == name {
			return i
		}
	}
	return None
}

// InSubtree tests whether id belongs to the subtree rooted at sub
// (sub itself included).
func (t *Tree) InSubtree(sub, id int) bool {
	for ; id != None; id = t.nodes[id].Parent {
		if id == sub {
			return true
		}
	}
	return false
}

// TotalLength returns the sum of all branch lengths except the root
// branch.
func (t *Tree) TotalLength() (s float64) {
	for i := range t.nodes {
		if i != t.root {
			s += t.nodes[i].BranchLength
		}
	}
	return
}

// Copy creates an independent copy of the tree.
func (t *Tree) Copy() *Tree {
	newTree := &Tree{
		nodes: make([]Node, len(t.nodes)),
		root:  t.root,
	}
	copy(newTree.nodes, t.nodes)
	for i := range newTree.nodes {
		newTree.nodes[i].Children = append([]int(nil), t.nodes[i].Children...)
	}
	return newTree
}

// FullString returns an indented description of all the nodes.
func (t *Tree) FullString() string {
	var b strings.Builder
	var visit func(int, string)
	visit = func(id int, prefix string) {
		b.WriteString(prefix + t.nodes[id].LongString() + "\n")
		for _, c := range t.nodes[id].Children {
			visit(c, prefix+"    ")
		}
	}
	visit(t.root, "")
	return strings.TrimSpace(b.String())
}
