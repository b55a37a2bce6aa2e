package tree

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Newick token modes.
const (
	normal = iota
	length
	class
)

// IsSpecial returns true if rune is a special Newick character.
func IsSpecial(r rune) bool {
	switch r {
	case '(', ')', ',', ';', ':', '#':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc which tokenizes Newick text.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return 0, nil, nil
}

// ParseNewick reads a tree in Newick format. A name following a
// closing bracket names the internal node, "#n" sets the node class.
// Node ids are assigned in preorder, the root gets 0.
func ParseNewick(rd io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(NewickSplit)

	t := New()
	cur := t.root
	mode := normal

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			cur = t.AddNode(cur, "", 0)
		case ",":
			parent := t.nodes[cur].Parent
			if parent == None {
				return nil, errors.New("top level comma mismatch")
			}
			cur = t.AddNode(parent, "", 0)
		case ")":
			parent := t.nodes[cur].Parent
			if parent == None {
				return nil, errors.New("brackets mismatch")
			}
			cur = parent
		case "#":
			mode = class
		case ":":
			mode = length
		case ";":
			return t.checked()
		default:
			switch mode {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				if l < 0 {
					return nil, errors.New("negative branch length")
				}
				t.nodes[cur].BranchLength = l
			case class:
				cl, err := strconv.ParseInt(text, 0, 0)
				if err != nil {
					return nil, err
				}
				t.nodes[cur].Class = int(cl)
			default:
				t.nodes[cur].Name = text
			}
			mode = normal
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t.checked()
}

// ParseNewickString is a shortcut for parsing a tree from a string.
func ParseNewickString(s string) (*Tree, error) {
	return ParseNewick(strings.NewReader(s))
}

func (t *Tree) checked() (*Tree, error) {
	if len(t.nodes) == 1 && t.nodes[0].Name == "" {
		return nil, errors.New("empty tree")
	}
	seen := make(map[string]bool)
	for _, id := range t.Leaves() {
		name := t.nodes[id].Name
		if name == "" {
			return nil, errors.New("unnamed leaf")
		}
		if seen[name] {
			return nil, errors.New("duplicate leaf name: " + name)
		}
		seen[name] = true
	}
	return t, nil
}

// Format returns the Newick representation of the tree. Branch
// lengths use prec digits after the point, -1 means the shortest
// representation preserving the value. Internal node names and
// classes are written.
func (t *Tree) Format(prec int) string {
	var b strings.Builder
	var visit func(int)
	visit = func(id int) {
		node := &t.nodes[id]
		if !node.IsTerminal() {
			b.WriteByte('(')
			for i, c := range node.Children {
				if i > 0 {
					b.WriteByte(',')
				}
				visit(c)
			}
			b.WriteByte(')')
		}
		b.WriteString(node.Name)
		if node.Class != 0 {
			b.WriteString("#" + strconv.Itoa(node.Class))
		}
		if !node.IsRoot() {
			b.WriteString(":" + strconv.FormatFloat(node.BranchLength, 'f', prec, 64))
		}
	}
	visit(t.root)
	b.WriteByte(';')
	return b.String()
}

// String returns Newick representation with full precision.
func (t *Tree) String() string {
	return t.Format(-1)
}
