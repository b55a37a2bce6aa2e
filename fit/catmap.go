package fit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// catRange is a named range of categories.
type catRange struct {
	name   string
	lo, hi int
}

// CategoryMap maps feature names to category ids. Category 0 is the
// background.
type CategoryMap struct {
	NCats  int
	ranges []catRange
	labels []string
}

// ParseCategoryMap reads a category map:
//
//	NCATS = 4
//	CDS     1-3
//	intron  4
//
// Lines starting with '#' are comments.
func ParseCategoryMap(rd io.Reader) (*CategoryMap, error) {
	cm := &CategoryMap{NCats: -1}
	scanner := bufio.NewScanner(rd)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if strings.HasPrefix(line, "NCATS") {
			f := strings.SplitN(line, "=", 2)
			if len(f) != 2 {
				return nil, fmt.Errorf("line %d: malformed NCATS", lineno)
			}
			n, err := strconv.Atoi(strings.TrimSpace(f[1]))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("line %d: malformed NCATS", lineno)
			}
			cm.NCats = n
			continue
		}
		f := strings.Fields(line)
		if len(f) < 2 {
			return nil, fmt.Errorf("line %d: expected name and category", lineno)
		}
		r := catRange{name: f[0]}
		var err error
		if i := strings.IndexByte(f[1], '-'); i > 0 {
			r.lo, err = strconv.Atoi(f[1][:i])
			if err == nil {
				r.hi, err = strconv.Atoi(f[1][i+1:])
			}
		} else {
			r.lo, err = strconv.Atoi(f[1])
			r.hi = r.lo
		}
		if err != nil || r.lo < 0 || r.hi < r.lo {
			return nil, fmt.Errorf("line %d: malformed category range %q", lineno, f[1])
		}
		for _, other := range cm.ranges {
			if other.name == r.name {
				return nil, fmt.Errorf("line %d: duplicate feature %s", lineno, r.name)
			}
		}
		cm.ranges = append(cm.ranges, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cm.NCats < 0 {
		return nil, fmt.Errorf("category map has no NCATS line")
	}
	for _, r := range cm.ranges {
		if r.hi > cm.NCats {
			return nil, fmt.Errorf("category %d of %s exceeds NCATS", r.hi, r.name)
		}
	}
	cm.buildLabels()
	return cm, nil
}

// ReadCategoryMap reads a category map file.
func ReadCategoryMap(fn string) (*CategoryMap, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCategoryMap(f)
}

func (cm *CategoryMap) buildLabels() {
	cm.labels = make([]string, cm.NCats+1)
	cm.labels[0] = "background"
	for _, r := range cm.ranges {
		for c := r.lo; c <= r.hi; c++ {
			if r.hi > r.lo {
				cm.labels[c] = r.name + "-" + strconv.Itoa(c-r.lo+1)
			} else {
				cm.labels[c] = r.name
			}
		}
	}
	for c, l := range cm.labels {
		if l == "" {
			cm.labels[c] = strconv.Itoa(c)
		}
	}
}

// Label returns the unique label of the category.
func (cm *CategoryMap) Label(cat int) string {
	if cat < 0 || cat >= len(cm.labels) {
		return strconv.Itoa(cat)
	}
	return cm.labels[cat]
}

// Resolve converts feature names and category numbers to category
// ids. A name stands for all the categories of its range.
func (cm *CategoryMap) Resolve(items []string) ([]int, error) {
	var cats []int
	seen := make(map[int]bool)
	add := func(c int) {
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	for _, item := range items {
		if c, err := strconv.Atoi(item); err == nil {
			if c < 0 || c > cm.NCats {
				return nil, configError("category %d is out of range", c)
			}
			add(c)
			continue
		}
		if item == "background" {
			add(0)
			continue
		}
		found := false
		for _, r := range cm.ranges {
			if r.name == item {
				for c := r.lo; c <= r.hi; c++ {
					add(c)
				}
				found = true
			}
		}
		if !found {
			return nil, configError("unknown category %q", item)
		}
	}
	return cats, nil
}
