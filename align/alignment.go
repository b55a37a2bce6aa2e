// Package align holds multiple sequence alignments and their
// sufficient statistics.
package align

import (
	"errors"
	"fmt"
	"strings"

	"github.com/op/go-logging"

	"github.com/mrrlab/phylofit/bio"
)

var log = logging.MustGetLogger("align")

// Alignment is a multiple sequence alignment. Columns are numbered
// from 1 in the public API.
type Alignment struct {
	Names    []string
	Alphabet string
	seqs     []string
	length   int
	cats     []int
	ncats    int
	refMap   []int
	stats    *Stats
}

// New creates an alignment. All sequences must have the same length.
func New(names, seqs []string, alphabet string) (*Alignment, error) {
	if len(names) != len(seqs) {
		return nil, errors.New("number of names and sequences differ")
	}
	if len(seqs) == 0 {
		return nil, errors.New("empty alignment")
	}
	seen := make(map[string]bool, len(names))
	for i, seq := range seqs {
		if len(seq) != len(seqs[0]) {
			return nil, fmt.Errorf("sequence %s has length %d, expected %d", names[i], len(seq), len(seqs[0]))
		}
		if seen[names[i]] {
			return nil, fmt.Errorf("duplicate sequence name %s", names[i])
		}
		seen[names[i]] = true
	}
	ali := &Alignment{
		Names:    append([]string(nil), names...),
		Alphabet: alphabet,
		seqs:     append([]string(nil), seqs...),
		length:   len(seqs[0]),
	}
	ali.buildRefMap()
	return ali, nil
}

// FromSequences creates an alignment from parsed FASTA sequences.
func FromSequences(seqs bio.Sequences, alphabet string) (*Alignment, error) {
	names := make([]string, len(seqs))
	raw := make([]string, len(seqs))
	for i, seq := range seqs {
		names[i] = seq.Name
		raw[i] = strings.ToUpper(seq.Sequence)
	}
	return New(names, raw, alphabet)
}

func (ali *Alignment) buildRefMap() {
	ali.refMap = ali.refMap[:0]
	for i := 0; i < len(ali.seqs[0]); i++ {
		if ali.seqs[0][i] != bio.Gap {
			ali.refMap = append(ali.refMap, i+1)
		}
	}
}

// NSeqs returns the number of sequences.
func (ali *Alignment) NSeqs() int {
	return len(ali.Names)
}

// Length returns the number of columns.
func (ali *Alignment) Length() int {
	return ali.length
}

// HasSequences tests whether raw sequences are still available.
func (ali *Alignment) HasSequences() bool {
	return ali.seqs != nil
}

// Seq returns the raw sequence i.
func (ali *Alignment) Seq(i int) string {
	return ali.seqs[i]
}

// Index returns the index of the sequence with the name or -1.
func (ali *Alignment) Index(name string) int {
	for i, n := range ali.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// DropSequences releases raw sequence data. Only the statistics can
// be used afterwards.
func (ali *Alignment) DropSequences() {
	ali.seqs = nil
}

// SetCategories sets per-column category labels (len == Length()).
func (ali *Alignment) SetCategories(cats []int) error {
	if len(cats) != ali.length {
		return fmt.Errorf("got %d category labels for %d columns", len(cats), ali.length)
	}
	ali.cats = cats
	ali.ncats = 0
	for _, c := range cats {
		if c < 0 {
			return errors.New("negative category label")
		}
		if c > ali.ncats {
			ali.ncats = c
		}
	}
	if ali.stats != nil {
		ali.stats.setCategories(cats, ali.ncats)
	}
	return nil
}

// SetPeriodicCategories labels column i (0-based) with
// (i mod period) + 1.
func (ali *Alignment) SetPeriodicCategories(period int) error {
	cats := make([]int, ali.length)
	for i := range cats {
		cats[i] = i%period + 1
	}
	return ali.SetCategories(cats)
}

// HasCategories tests whether column categories are known.
func (ali *Alignment) HasCategories() bool {
	return ali.cats != nil
}

// Categories returns column categories or nil.
func (ali *Alignment) Categories() []int {
	return ali.cats
}

// MaxCategory returns the largest category label.
func (ali *Alignment) MaxCategory() int {
	return ali.ncats
}

// RefToAlign maps a 1-based position of the first sequence to the
// 1-based alignment column. Positions outside of the sequence give -1.
func (ali *Alignment) RefToAlign(pos int) int {
	if pos < 1 || pos > len(ali.refMap) {
		return -1
	}
	return ali.refMap[pos-1]
}

// RefLength returns the ungapped length of the first sequence.
func (ali *Alignment) RefLength() int {
	return len(ali.refMap)
}

// Stats returns sufficient statistics or nil if they were not
// extracted yet.
func (ali *Alignment) Stats() *Stats {
	return ali.stats
}

// SetStats attaches precomputed statistics.
func (ali *Alignment) SetStats(s *Stats) {
	ali.stats = s
}
