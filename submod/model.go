package submod

import (
	"errors"
	"fmt"

	"github.com/gonum/matrix/mat64"

	"github.com/mrrlab/phylofit/bio"
)

// Special pair classes.
const (
	noChange = -1 // pair differs in more than one position
	fixedOne = -2 // rate fixed to one
)

// Model is a substitution model kind bound to an alphabet.
type Model struct {
	Kind     Kind
	Alphabet string
	States   []string
	index    map[string]int
	// class[i*n+j] is the parameter index of the i->j rate.
	class  []int
	names  []string
	trans  []bool
	nstate int
}

// States enumerates all the tuples of length order+1 over the
// alphabet in lexicographic order.
func States(alphabet string, order int) []string {
	states := []string{""}
	for k := 0; k <= order; k++ {
		next := make([]string, 0, len(states)*len(alphabet))
		for _, s := range states {
			for i := 0; i < len(alphabet); i++ {
				next = append(next, s+alphabet[i:i+1])
			}
		}
		states = next
	}
	return states
}

func complement(b byte) byte {
	if c := bio.Complement(b); c != 0 {
		return c
	}
	return b
}

// New binds the model kind to the alphabet.
func New(kind Kind, alphabet string) (*Model, error) {
	if kind < 0 || int(kind) >= len(capabilities) {
		return nil, fmt.Errorf("unknown model kind %d", int(kind))
	}
	if len(alphabet) < 2 {
		return nil, errors.New("alphabet is too small")
	}
	gaps := false
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == bio.Gap {
			gaps = true
		}
	}
	if gaps && !kind.SupportsGapsAsBases() {
		return nil, fmt.Errorf("model %v does not support gaps as bases", kind)
	}
	capab := kind.Capability()
	m := &Model{
		Kind:     kind,
		Alphabet: alphabet,
		States:   States(alphabet, capab.Order),
		index:    make(map[string]int),
	}
	n := len(m.States)
	m.nstate = n
	for i, s := range m.States {
		m.index[s] = i
	}
	m.class = make([]int, n*n)
	m.trans = make([]bool, n*n)
	classes := make(map[string]int)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.class[i*n+j] = noChange
			if i == j {
				continue
			}
			pos, ok := singleDiff(m.States[i], m.States[j])
			if !ok {
				continue
			}
			m.trans[i*n+j] = bio.IsTransition(m.States[i][pos], m.States[j][pos])
			var key string
			switch capab.exchange {
			case equalRates:
				m.class[i*n+j] = fixedOne
				continue
			case kappaRates:
				if m.trans[i*n+j] {
					key = "kappa"
				} else {
					m.class[i*n+j] = fixedOne
					continue
				}
			case symRates:
				key = pairKey(m.States[i], m.States[j], false)
			case strandRates:
				key = pairKey(m.States[i], m.States[j], false)
				ckey := pairKey(string(complement(m.States[i][0])), string(complement(m.States[j][0])), false)
				if ckey < key {
					key = ckey
				}
			case freeRates:
				key = pairKey(m.States[i], m.States[j], true)
			}
			c, ok := classes[key]
			if !ok {
				c = len(m.names)
				classes[key] = c
				m.names = append(m.names, key)
			}
			m.class[i*n+j] = c
		}
	}
	// the last exchangeability is fixed to one, the scale is set by
	// normalization
	if capab.exchange != kappaRates && len(m.names) > 0 {
		last := len(m.names) - 1
		for i, c := range m.class {
			if c == last {
				m.class[i] = fixedOne
			}
		}
		m.names = m.names[:last]
	}
	return m, nil
}

func singleDiff(a, b string) (pos int, ok bool) {
	pos = -1
	for k := 0; k < len(a); k++ {
		if a[k] != b[k] {
			if pos >= 0 {
				return -1, false
			}
			pos = k
		}
	}
	return pos, pos >= 0
}

func pairKey(a, b string, ordered bool) string {
	if !ordered && b < a {
		a, b = b, a
	}
	return "rate." + a + "." + b
}

// NStates returns the number of states.
func (m *Model) NStates() int {
	return m.nstate
}

// StateIndex returns index of the state or -1.
func (m *Model) StateIndex(s string) int {
	if i, ok := m.index[s]; ok {
		return i
	}
	return -1
}

// NParams returns the number of rate matrix parameters.
func (m *Model) NParams() int {
	return len(m.names)
}

// ParamNames returns rate matrix parameter names.
func (m *Model) ParamNames() []string {
	return append([]string(nil), m.names...)
}

// IsTransitionParam tests whether parameter p governs only
// transitions.
func (m *Model) IsTransitionParam(p int) bool {
	found := false
	for i, c := range m.class {
		if c == p {
			if !m.trans[i] {
				return false
			}
			found = true
		}
	}
	return found
}

// DefaultParams returns the default starting point: 5 for
// transition rates and 1 otherwise.
func (m *Model) DefaultParams() []float64 {
	params := make([]float64, len(m.names))
	for p := range params {
		if m.IsTransitionParam(p) {
			params[p] = 5
		} else {
			params[p] = 1
		}
	}
	return params
}

// UniformFreqs returns uniform state frequencies.
func (m *Model) UniformFreqs() []float64 {
	pi := make([]float64, m.nstate)
	for i := range pi {
		pi[i] = 1 / float64(m.nstate)
	}
	return pi
}

// RateMatrix fills q with the rate matrix for the parameters and the
// background frequencies pi. The matrix is normalized to one expected
// substitution per unit of time under pi.
func (m *Model) RateMatrix(params, pi []float64, q *mat64.Dense) error {
	n := m.nstate
	if len(params) != len(m.names) {
		return fmt.Errorf("%v: expected %d parameters, got %d", m.Kind, len(m.names), len(params))
	}
	if len(pi) != n {
		return fmt.Errorf("%v: expected %d frequencies, got %d", m.Kind, n, len(pi))
	}
	capab := m.Kind.Capability()
	if capab.UniformFreqs {
		pi = m.UniformFreqs()
	}
	scale := 0.0
	for i := 0; i < n; i++ {
		row := q.RawRowView(i)
		sum := 0.0
		for j := 0; j < n; j++ {
			row[j] = 0
			c := m.class[i*n+j]
			if i == j || c == noChange {
				continue
			}
			r := 1.0
			if c >= 0 {
				r = params[c]
			}
			if capab.UsesFreqs {
				r *= pi[j]
			}
			row[j] = r
			sum += r
		}
		row[i] = -sum
		scale += pi[i] * sum
	}
	if scale <= 0 {
		return errors.New("rate matrix has zero expected rate")
	}
	q.Scale(1/scale, q)
	return nil
}

// NewRateMatrix allocates and fills a rate matrix.
func (m *Model) NewRateMatrix(params, pi []float64) (*mat64.Dense, error) {
	q := mat64.NewDense(m.nstate, m.nstate, nil)
	if err := m.RateMatrix(params, pi, q); err != nil {
		return nil, err
	}
	return q, nil
}
