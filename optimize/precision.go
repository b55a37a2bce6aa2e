package optimize

import (
	"fmt"
	"strings"
)

// Precision is an optimization precision tier.
type Precision int

// Precision tiers.
const (
	Low Precision = iota
	Med
	High
	VeryHigh
)

var precisionNames = []string{"LOW", "MED", "HIGH", "VERY_HIGH"}

func (p Precision) String() string {
	if p < Low || p > VeryHigh {
		return fmt.Sprintf("Precision(%d)", int(p))
	}
	return precisionNames[p]
}

// ParsePrecision converts a tier name to Precision.
func ParsePrecision(s string) (Precision, error) {
	for i, name := range precisionNames {
		if strings.EqualFold(s, name) {
			return Precision(i), nil
		}
	}
	return 0, fmt.Errorf("unknown precision %q", s)
}

// Tolerances are the settings of a precision tier.
type Tolerances struct {
	// FTol is the relative function tolerance.
	FTol float64
	// GTol is the projected gradient tolerance.
	GTol float64
	// MaxEvals is the evaluation budget in units of n+1 likelihood
	// calls for n free parameters.
	MaxEvals int
	// EMTol is the minimal EM log-likelihood improvement.
	EMTol float64
	// EMIter is the EM iteration cap.
	EMIter int
}

var tolerances = [...]Tolerances{
	Low:      {FTol: 1e-4, GTol: 1e-3, MaxEvals: 200, EMTol: 0.1, EMIter: 50},
	Med:      {FTol: 1e-6, GTol: 1e-4, MaxEvals: 500, EMTol: 0.01, EMIter: 100},
	High:     {FTol: 1e-8, GTol: 1e-5, MaxEvals: 1000, EMTol: 1e-3, EMIter: 250},
	VeryHigh: {FTol: 1e-10, GTol: 1e-6, MaxEvals: 2000, EMTol: 1e-4, EMIter: 500},
}

// Tolerances returns settings for the tier.
func (p Precision) Tolerances() Tolerances {
	if p < Low || p > VeryHigh {
		p = High
	}
	return tolerances[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Precision) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Precision) UnmarshalText(text []byte) error {
	v, err := ParsePrecision(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
