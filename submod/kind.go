// Package submod is the catalog of substitution models: a closed set
// of model kinds with their capabilities and rate matrix builders.
package submod

import (
	"fmt"
	"strings"
)

// Kind is a substitution model kind.
type Kind int

// Supported model kinds.
const (
	JC69 Kind = iota
	F81
	HKY85
	REV
	SSREV
	UNREST
	R2
	U2
	R3
	U3
)

// exchange describes how off-diagonal rates are parameterized.
type exchange int

const (
	equalRates exchange = iota // all rates equal
	kappaRates                 // transition/transversion ratio
	symRates                   // one rate per unordered pair
	strandRates                // unordered pairs tied with complements
	freeRates                  // one rate per ordered pair
)

// Capability is the row of the capability table.
type Capability struct {
	Name        string
	Order       int
	Reversible  bool
	GapsAsBases bool
	// UsesFreqs is set if rates are proportional to the target
	// state frequency.
	UsesFreqs bool
	// UniformFreqs is set if background frequencies are fixed to
	// uniform.
	UniformFreqs bool
	exchange     exchange
}

var capabilities = [...]Capability{
	JC69:   {Name: "JC69", Reversible: true, GapsAsBases: true, UniformFreqs: true, exchange: equalRates},
	F81:    {Name: "F81", Reversible: true, GapsAsBases: true, UsesFreqs: true, exchange: equalRates},
	HKY85:  {Name: "HKY85", Reversible: true, UsesFreqs: true, exchange: kappaRates},
	REV:    {Name: "REV", Reversible: true, GapsAsBases: true, UsesFreqs: true, exchange: symRates},
	SSREV:  {Name: "SSREV", Reversible: true, GapsAsBases: true, UsesFreqs: true, exchange: strandRates},
	UNREST: {Name: "UNREST", GapsAsBases: true, exchange: freeRates},
	R2:     {Name: "R2", Order: 1, Reversible: true, UsesFreqs: true, exchange: symRates},
	U2:     {Name: "U2", Order: 1, exchange: freeRates},
	R3:     {Name: "R3", Order: 2, Reversible: true, UsesFreqs: true, exchange: symRates},
	U3:     {Name: "U3", Order: 2, exchange: freeRates},
}

// Kinds returns all the supported kinds.
func Kinds() []Kind {
	kinds := make([]Kind, len(capabilities))
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind returns kind by its name (case insensitive).
func ParseKind(s string) (Kind, error) {
	for i, c := range capabilities {
		if strings.EqualFold(c.Name, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown substitution model %q", s)
}

// Capability returns the capability table row.
func (k Kind) Capability() Capability {
	return capabilities[k]
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(capabilities) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return capabilities[k].Name
}

// Order returns the context order of the model.
func (k Kind) Order() int {
	return capabilities[k].Order
}

// Reversible tests if the model is time reversible.
func (k Kind) Reversible() bool {
	return capabilities[k].Reversible
}

// SupportsGapsAsBases tests if gap can be used as a fifth base.
func (k Kind) SupportsGapsAsBases() bool {
	return capabilities[k].GapsAsBases
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
