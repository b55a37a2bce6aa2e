package optimize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Default limits used for randomization of unbounded parameters.
const (
	MIN = -10
	MAX = +10
)

// FloatParameter is a real valued model parameter with box
// constraints.
type FloatParameter interface {
	Name() string
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetStartRange(lo, hi float64)
	StartRange() (lo, hi float64)
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
}

// FloatParameters is an ordered parameter vector.
type FloatParameters []FloatParameter

// Append adds a parameter to the end of the vector.
func (p *FloatParameters) Append(par FloatParameter) {
	*p = append(*p, par)
}

// Names returns parameter names, is is reused if not nil.
func (p *FloatParameters) Names(is []string) (s []string) {
	if is == nil {
		s = make([]string, len(*p))
	} else {
		s = is
	}
	for i, par := range *p {
		s[i] = par.Name()
	}
	return
}

// ByName returns parameter with the name or nil.
func (p *FloatParameters) ByName(name string) FloatParameter {
	for _, par := range *p {
		if par.Name() == name {
			return par
		}
	}
	return nil
}

// Values returns parameter values, iv is reused if not nil.
func (p *FloatParameters) Values(iv []float64) (v []float64) {
	if iv == nil {
		v = make([]float64, len(*p))
	} else {
		v = iv
	}
	for i, par := range *p {
		v[i] = par.Get()
	}
	return
}

// ValuesInRange tests if the values are within parameter bounds.
func (p *FloatParameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(*p) {
		panic("Incorrect number of parameters")
	}
	for i, par := range *p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

// SetValues sets all the parameter values.
func (p *FloatParameters) SetValues(v []float64) error {
	if len(v) != len(*p) {
		return errors.New("incorrect number of parameters")
	}
	for i, par := range *p {
		par.Set(v[i])
	}
	return nil
}

// Map returns parameter values keyed by name.
func (p *FloatParameters) Map() map[string]float64 {
	m := make(map[string]float64, len(*p))
	for _, par := range *p {
		m[par.Name()] = par.Get()
	}
	return m
}

// SetMap sets values from a map; every parameter has to be present.
func (p *FloatParameters) SetMap(m map[string]float64) error {
	for _, par := range *p {
		v, ok := m[par.Name()]
		if !ok {
			return fmt.Errorf("parameter %s is missing", par.Name())
		}
		par.Set(v)
	}
	return nil
}

// Randomize sets every parameter to a uniform value from its start
// range.
func (p *FloatParameters) Randomize(rng *rand.Rand) {
	for _, par := range *p {
		min, max := par.StartRange()
		par.Set(min + rng.Float64()*(max-min))
	}
}

// InRange tests if all the parameters are within bounds.
func (p *FloatParameters) InRange() bool {
	for _, par := range *p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// NamesString returns tab-separated parameter names.
func (p *FloatParameters) NamesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

// ValuesString returns tab-separated parameter values.
func (p *FloatParameters) ValuesString() (s string) {
	for i, par := range *p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

// MarshalJSON encodes parameters as an object preserving the order.
func (p FloatParameters) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, par := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(par.Name())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(par.Get())
		if err != nil {
			return nil, err
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON sets parameter values from an object.
func (p *FloatParameters) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return p.SetMap(m)
}

// BasicFloatParameter is a parameter stored in a float64 variable.
type BasicFloatParameter struct {
	*float64
	name     string
	min      float64
	max      float64
	startMin float64
	startMax float64
}

// NewBasicFloatParameter creates an unbounded parameter.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64:  par,
		name:     name,
		min:      math.Inf(-1),
		max:      math.Inf(+1),
		startMin: math.NaN(),
		startMax: math.NaN(),
	}
}

// SetMin sets the lower bound.
func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

// SetMax sets the upper bound.
func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

// SetStartRange sets the range used for random starting values.
func (p *BasicFloatParameter) SetStartRange(lo, hi float64) {
	p.startMin, p.startMax = lo, hi
}

// StartRange returns the random start range; without an explicit
// range the bounds clipped to [MIN, MAX] are used.
func (p *BasicFloatParameter) StartRange() (float64, float64) {
	if math.IsNaN(p.startMin) {
		return math.Max(MIN, p.min), math.Min(MAX, p.max)
	}
	return p.startMin, p.startMax
}

// Get returns the value.
func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

// Set changes the value.
func (p *BasicFloatParameter) Set(v float64) {
	*p.float64 = v
}

// GetMin returns the lower bound.
func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

// GetMax returns the upper bound.
func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

// ValueInRange tests if v is within bounds.
func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	return v >= p.min && v <= p.max
}

// InRange tests if the current value is within bounds.
func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

// Name returns parameter name.
func (p *BasicFloatParameter) Name() string {
	return p.name
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}
