package submod

import (
	"math"
	"testing"

	"github.com/mrrlab/phylofit/bio"
)

var testFreqs = []float64{0.1, 0.2, 0.3, 0.4}

func TestParamCounts(tst *testing.T) {
	for _, settings := range []struct {
		kind    Kind
		nparams int
		nstates int
	}{
		{JC69, 0, 4},
		{F81, 0, 4},
		{HKY85, 1, 4},
		{REV, 5, 4},
		{SSREV, 3, 4},
		{UNREST, 11, 4},
		{R2, 47, 16},
		{U2, 95, 16},
		{R3, 287, 64},
		{U3, 575, 64},
	} {
		m, err := New(settings.kind, bio.DNA)
		if err != nil {
			tst.Fatal(err)
		}
		if m.NParams() != settings.nparams || m.NStates() != settings.nstates {
			tst.Errorf("%v: got %d parameters and %d states", settings.kind, m.NParams(), m.NStates())
		}
	}
}

func TestGapsAsBases(tst *testing.T) {
	if _, err := New(HKY85, bio.DNA+"-"); err == nil {
		tst.Error("HKY85 should not support gaps as bases")
	}
	m, err := New(REV, bio.DNA+"-")
	if err != nil {
		tst.Fatal(err)
	}
	if m.NStates() != 5 || m.NParams() != 9 {
		tst.Error("Wrong REV with gaps:", m.NStates(), m.NParams())
	}
}

func checkNormalized(tst *testing.T, m *Model, pi []float64) {
	q, err := m.NewRateMatrix(m.DefaultParams(), pi)
	if err != nil {
		tst.Fatal(err)
	}
	if m.Kind.Capability().UniformFreqs {
		pi = m.UniformFreqs()
	}
	rate := 0.0
	for i := 0; i < m.NStates(); i++ {
		s := 0.0
		for j := 0; j < m.NStates(); j++ {
			s += q.At(i, j)
			if i != j && q.At(i, j) < 0 {
				tst.Errorf("%v: negative rate", m.Kind)
			}
		}
		if math.Abs(s) > 1e-12 {
			tst.Errorf("%v: row %d sums to %v", m.Kind, i, s)
		}
		rate -= pi[i] * q.At(i, i)
	}
	if math.Abs(rate-1) > 1e-12 {
		tst.Errorf("%v: expected rate is %v", m.Kind, rate)
	}
}

func TestRateMatrix(tst *testing.T) {
	for _, kind := range []Kind{JC69, F81, HKY85, REV, SSREV, UNREST} {
		m, _ := New(kind, bio.DNA)
		checkNormalized(tst, m, testFreqs)
	}
	m, _ := New(R2, bio.DNA)
	checkNormalized(tst, m, m.UniformFreqs())
}

func TestReversible(tst *testing.T) {
	m, _ := New(REV, bio.DNA)
	params := []float64{1.5, 4, 0.7, 1.2, 3}
	q, err := m.NewRateMatrix(params, testFreqs)
	if err != nil {
		tst.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(testFreqs[i]*q.At(i, j)-testFreqs[j]*q.At(j, i)) > 1e-12 {
				tst.Error("Detailed balance does not hold for", i, j)
			}
		}
	}
}

func TestHKY(tst *testing.T) {
	m, _ := New(HKY85, bio.DNA)
	if m.ParamNames()[0] != "kappa" || m.DefaultParams()[0] != 5 {
		tst.Error("Wrong HKY85 parameters:", m.ParamNames(), m.DefaultParams())
	}
	q, _ := m.NewRateMatrix([]float64{3}, m.UniformFreqs())
	a, c, g := m.StateIndex("A"), m.StateIndex("C"), m.StateIndex("G")
	if math.Abs(q.At(a, g)/q.At(a, c)-3) > 1e-12 {
		tst.Error("Wrong transition/transversion ratio")
	}
}

func TestDinucleotide(tst *testing.T) {
	m, _ := New(U2, bio.DNA)
	q, _ := m.NewRateMatrix(m.DefaultParams(), m.UniformFreqs())
	if q.At(m.StateIndex("AA"), m.StateIndex("CC")) != 0 {
		tst.Error("Double substitution has non-zero rate")
	}
	if q.At(m.StateIndex("AA"), m.StateIndex("AC")) <= 0 {
		tst.Error("Single substitution has zero rate")
	}
}

func TestParseKind(tst *testing.T) {
	for _, kind := range Kinds() {
		k, err := ParseKind(kind.String())
		if err != nil || k != kind {
			tst.Error("Error parsing", kind, err)
		}
	}
	if _, err := ParseKind("GTR+I"); err == nil {
		tst.Error("Expected error for unknown model")
	}
}
