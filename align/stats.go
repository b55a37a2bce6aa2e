package align

import (
	"errors"
	"strings"

	"github.com/gonum/floats"

	"github.com/mrrlab/phylofit/bio"
)

// LargeAlignment is the length above which raw sequences are dropped
// after the statistics are extracted.
const LargeAlignment = 1000000

// Stats stores sufficient statistics: distinct tuples and their
// counts. A tuple covers TupleSize consecutive columns of every
// sequence, symbol k of sequence s is stored at s*TupleSize+k; the last
// symbol belongs to the column itself.
type Stats struct {
	TupleSize int
	NSeqs     int
	Tuples    []string
	Counts    []float64
	// CatCounts[c][t] is the count of tuple t in category c, nil
	// without categories.
	CatCounts [][]float64
	// TupleIdx maps 0-based columns to tuples, -1 for columns
	// excluded from the statistics; nil if unknown.
	TupleIdx  []int
	Compacted bool
	cats      []int
}

// Extract computes sufficient statistics of the alignment for tuples
// of the given size. If cats is not nil, only columns with categories
// from the list are counted. Positions before the alignment start are
// filled with the missing symbol.
func Extract(ali *Alignment, tupleSize int, cats []int) (*Stats, error) {
	if !ali.HasSequences() {
		return nil, errors.New("raw sequences are not available")
	}
	if tupleSize < 1 {
		return nil, errors.New("tuple size has to be positive")
	}
	var allowed map[int]bool
	if cats != nil {
		if !ali.HasCategories() {
			return nil, errors.New("category restriction without category data")
		}
		allowed = make(map[int]bool, len(cats))
		for _, c := range cats {
			allowed[c] = true
		}
	}
	s := &Stats{
		TupleSize: tupleSize,
		NSeqs:     ali.NSeqs(),
		TupleIdx:  make([]int, ali.Length()),
	}
	index := make(map[string]int)
	buf := make([]byte, tupleSize*s.NSeqs)
	for col := 0; col < ali.Length(); col++ {
		if allowed != nil && !allowed[ali.cats[col]] {
			s.TupleIdx[col] = -1
			continue
		}
		for i := 0; i < s.NSeqs; i++ {
			seq := ali.seqs[i]
			for k := 0; k < tupleSize; k++ {
				pos := col - tupleSize + 1 + k
				if pos < 0 {
					buf[i*tupleSize+k] = bio.Missing
				} else {
					buf[i*tupleSize+k] = seq[pos]
				}
			}
		}
		key := string(buf)
		t, ok := index[key]
		if !ok {
			t = len(s.Tuples)
			index[key] = t
			s.Tuples = append(s.Tuples, key)
			s.Counts = append(s.Counts, 0)
		}
		s.Counts[t]++
		s.TupleIdx[col] = t
	}
	if ali.HasCategories() {
		s.setCategories(ali.cats, ali.ncats)
	}
	log.Debugf("Extracted %d distinct tuples of size %d", len(s.Tuples), tupleSize)
	ali.stats = s
	if ali.Length() > LargeAlignment {
		log.Infof("Alignment is large (%d columns), dropping raw sequences", ali.Length())
		ali.DropSequences()
	}
	return s, nil
}

// setCategories recomputes per category counts.
func (s *Stats) setCategories(cats []int, maxCat int) {
	s.cats = cats
	s.CatCounts = make([][]float64, maxCat+1)
	for c := range s.CatCounts {
		s.CatCounts[c] = make([]float64, len(s.Tuples))
	}
	for col, t := range s.TupleIdx {
		if t >= 0 {
			s.CatCounts[cats[col]][t]++
		}
	}
}

// Categories returns per column categories or nil.
func (s *Stats) Categories() []int {
	return s.cats
}

// NTuples returns the number of distinct tuples.
func (s *Stats) NTuples() int {
	return len(s.Tuples)
}

// Symbol returns symbol k of sequence seq in tuple t.
func (s *Stats) Symbol(t, seq, k int) byte {
	return s.Tuples[t][seq*s.TupleSize+k]
}

// CountsFor returns tuple counts for the category, cat < 0 means all
// the columns.
func (s *Stats) CountsFor(cat int) []float64 {
	if cat < 0 {
		return s.Counts
	}
	if s.CatCounts == nil || cat >= len(s.CatCounts) {
		return make([]float64, len(s.Tuples))
	}
	return s.CatCounts[cat]
}

// Total returns the total count for the category.
func (s *Stats) Total(cat int) (t float64) {
	for _, c := range s.CountsFor(cat) {
		t += c
	}
	return
}

// Compact canonicalizes every symbol not in the alphabet (and the gap
// if gapsAsMissing is set) to the missing symbol and merges tuples
// which become equal. Compaction is irreversible.
func (s *Stats) Compact(alphabet string, gapsAsMissing bool) {
	if s.Compacted {
		return
	}
	canon := func(r rune) rune {
		if r == bio.Gap && !gapsAsMissing {
			return r
		}
		if strings.ContainsRune(alphabet, r) {
			return r
		}
		return bio.Missing
	}
	index := make(map[string]int)
	remap := make([]int, len(s.Tuples))
	var tuples []string
	var counts []float64
	for t, tuple := range s.Tuples {
		key := strings.Map(canon, tuple)
		nt, ok := index[key]
		if !ok {
			nt = len(tuples)
			index[key] = nt
			tuples = append(tuples, key)
			counts = append(counts, 0)
		}
		counts[nt] += s.Counts[t]
		remap[t] = nt
	}
	if s.CatCounts != nil {
		for c, cc := range s.CatCounts {
			ncc := make([]float64, len(tuples))
			for t, v := range cc {
				ncc[remap[t]] += v
			}
			s.CatCounts[c] = ncc
		}
	}
	for col, t := range s.TupleIdx {
		if t >= 0 {
			s.TupleIdx[col] = remap[t]
		}
	}
	log.Debugf("Compacted %d tuples into %d", len(s.Tuples), len(tuples))
	s.Tuples = tuples
	s.Counts = counts
	s.Compacted = true
}

// Informative counts columns of the category (cat < 0 means all) in
// which at least two sequences carry an alphabet symbol.
func (s *Stats) Informative(alphabet string, cat int) (n float64) {
	counts := s.CountsFor(cat)
	for t, c := range counts {
		if c == 0 {
			continue
		}
		nobs := 0
		for i := 0; i < s.NSeqs; i++ {
			if strings.IndexByte(alphabet, s.Symbol(t, i, s.TupleSize-1)) >= 0 {
				nobs++
			}
		}
		if nobs >= 2 {
			n += c
		}
	}
	return
}

// Window returns statistics restricted to the 1-based inclusive column
// range. Tuples are shared with the receiver, counts are recomputed.
func (s *Stats) Window(beg, end int) (*Stats, error) {
	if s.TupleIdx == nil {
		return nil, errors.New("column index is not available")
	}
	if beg < 1 || end > len(s.TupleIdx) || beg > end {
		return nil, errors.New("window is out of the alignment")
	}
	w := &Stats{
		TupleSize: s.TupleSize,
		NSeqs:     s.NSeqs,
		Tuples:    s.Tuples,
		Counts:    make([]float64, len(s.Tuples)),
		TupleIdx:  make([]int, len(s.TupleIdx)),
		Compacted: s.Compacted,
	}
	for col := range w.TupleIdx {
		w.TupleIdx[col] = -1
	}
	for col := beg - 1; col < end; col++ {
		t := s.TupleIdx[col]
		w.TupleIdx[col] = t
		if t >= 0 {
			w.Counts[t]++
		}
	}
	if s.cats != nil {
		maxCat := len(s.CatCounts) - 1
		w.setCategories(s.cats, maxCat)
	}
	return w, nil
}

// Frequencies returns frequencies of alphabet symbols at the last
// tuple position over the category (cat < 0 for all).
func (s *Stats) Frequencies(alphabet string, cat int) []float64 {
	freqs := make([]float64, len(alphabet))
	for t, c := range s.CountsFor(cat) {
		if c == 0 {
			continue
		}
		for i := 0; i < s.NSeqs; i++ {
			k := strings.IndexByte(alphabet, s.Symbol(t, i, s.TupleSize-1))
			if k >= 0 {
				freqs[k] += c
			}
		}
	}
	if total := floats.Sum(freqs); total > 0 {
		floats.Scale(1/total, freqs)
	} else {
		for i := range freqs {
			freqs[i] = 1 / float64(len(freqs))
		}
	}
	return freqs
}
