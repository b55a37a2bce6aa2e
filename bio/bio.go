// Package bio provides a minimal FASTA reader and nucleotide helpers.
package bio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Special alignment characters.
const (
	Gap     = '-'
	Missing = '*'
)

// DNA is the default nucleotide alphabet.
const DNA = "ACGT"

var complements = map[byte]byte{
	'A': 'T', 'T': 'A', 'C': 'G', 'G': 'C', 'U': 'A',
}

// Complement returns the complementary nucleotide or zero if there is
// none.
func Complement(b byte) byte {
	return complements[b]
}

// IsGC tests if the nucleotide is G or C.
func IsGC(b byte) bool {
	return b == 'G' || b == 'C'
}

// IsTransition returns true for purine-purine or
// pyrimidine-pyrimidine changes.
func IsTransition(a, b byte) bool {
	purine := func(c byte) bool { return c == 'A' || c == 'G' }
	pyrimidine := func(c byte) bool { return c == 'C' || c == 'T' || c == 'U' }
	return a != b && ((purine(a) && purine(b)) || (pyrimidine(a) && pyrimidine(b)))
}

// Sequence is a type which is intended for storing nucleotide
// sequence with it's name.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences. E.g. a sequence alignment.
type Sequences []Sequence

// ParseFasta parses FASTA sequences from a reader. Sequences are
// converted to the upper case, spaces are removed.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			name := strings.TrimSpace(line[1:])
			if fields := strings.Fields(name); len(fields) > 0 {
				name = fields[0]
			}
			seqs = append(seqs, Sequence{Name: name})
			continue
		}
		if len(seqs) == 0 {
			return nil, errors.New("sequence w/o prefix")
		}
		line = strings.ToUpper(strings.Replace(line, " ", "", -1))
		seqs[len(seqs)-1].Sequence += line
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, errors.New("no sequences found")
	}
	return seqs, nil
}

// ReadFasta reads a FASTA file.
func ReadFasta(fn string) (Sequences, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seqs, err := ParseFasta(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fn, err)
	}
	return seqs, nil
}

// Names returns sequence names.
func (seqs Sequences) Names() []string {
	names := make([]string, len(seqs))
	for i, seq := range seqs {
		names[i] = seq.Name
	}
	return names
}

// Wrap inputs a string and wraps it so string length is n characters
// or less.
func Wrap(seq string, n int) string {
	var b strings.Builder
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		b.WriteString(seq[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

// String returns a sequence in FASTA format.
func (seq Sequence) String() string {
	return ">" + seq.Name + "\n" + Wrap(seq.Sequence, 80)
}

// String returns sequences in FASTA format.
func (seqs Sequences) String() string {
	var b strings.Builder
	for _, seq := range seqs {
		b.WriteString(seq.String())
	}
	return strings.TrimSuffix(b.String(), "\n")
}
