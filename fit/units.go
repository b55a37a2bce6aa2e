package fit

import (
	"strconv"

	"github.com/mrrlab/phylofit/align"
)

// Sentinels for units without categories or windows.
const (
	PoolAll        = -1
	WholeAlignment = -1
)

// Window is a 1-based inclusive column range.
type Window struct {
	Beg, End int
}

// Unit is an independent estimation unit.
type Unit struct {
	Cat int
	// Win is the window index (counting skipped windows) or
	// WholeAlignment.
	Win int
	Window
}

// GenerateWindows returns sliding windows of the given size and
// shift starting at 1: (i, min(i+size-1, length)) while i < length.
func GenerateWindows(size, shift, length int) []Window {
	var ws []Window
	for i := 1; i < length; i += shift {
		end := i + size - 1
		if end > length {
			end = length
		}
		ws = append(ws, Window{i, end})
	}
	return ws
}

// PairWindows converts a flat list of coordinates into windows.
func PairWindows(coords []int) []Window {
	ws := make([]Window, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		ws = append(ws, Window{coords[i], coords[i+1]})
	}
	return ws
}

// MapWindows maps windows from reference sequence coordinates to
// alignment columns. Bounds outside of the reference become -1.
func MapWindows(ali *align.Alignment, ws []Window) []Window {
	mapped := make([]Window, len(ws))
	for i, w := range ws {
		mapped[i] = Window{ali.RefToAlign(w.Beg), ali.RefToAlign(w.End)}
	}
	return mapped
}

// resolveCategories returns the categories to process. Without
// category data all the sites are pooled.
func resolveCategories(ali *align.Alignment, restrict []string, cm *CategoryMap) ([]int, error) {
	if !ali.HasCategories() {
		if len(restrict) > 0 {
			log.Warning("Ignoring category restriction; no category information")
		}
		return []int{PoolAll}, nil
	}
	if len(restrict) == 0 {
		cats := make([]int, ali.MaxCategory()+1)
		for i := range cats {
			cats[i] = i
		}
		return cats, nil
	}
	if cm != nil {
		return cm.Resolve(restrict)
	}
	cats := make([]int, len(restrict))
	for i, s := range restrict {
		c, err := strconv.Atoi(s)
		if err != nil || c < 0 {
			return nil, configError("category %q is not a number and there is no category map", s)
		}
		cats[i] = c
	}
	return cats, nil
}

// BuildUnits enumerates units window-major, category-minor. Windows
// with a negative bound are skipped; nil windows mean the whole
// alignment.
func BuildUnits(cats []int, windows []Window) []Unit {
	if windows == nil {
		units := make([]Unit, len(cats))
		for i, c := range cats {
			units[i] = Unit{Cat: c, Win: WholeAlignment}
		}
		return units
	}
	var units []Unit
	for w, win := range windows {
		if win.Beg < 0 || win.End < 0 {
			log.Debugf("Skipping window %d, it is out of the reference sequence", w+1)
			continue
		}
		for _, c := range cats {
			units = append(units, Unit{Cat: c, Win: w, Window: win})
		}
	}
	return units
}
