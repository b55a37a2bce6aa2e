package tmodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseBound parses a bound of the form "name[lb,ub]". Either limit can
// be empty, in which case the default limit of the parameter is kept.
func ParseBound(s string) (string, Bound, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '[')
	if i <= 0 || !strings.HasSuffix(s, "]") {
		return "", Bound{}, fmt.Errorf("malformed bound %q, expected name[lb,ub]", s)
	}
	limits := strings.Split(s[i+1:len(s)-1], ",")
	if len(limits) != 2 {
		return "", Bound{}, fmt.Errorf("malformed bound %q, expected name[lb,ub]", s)
	}
	b := Bound{Min: math.NaN(), Max: math.NaN()}
	for k, ptr := range []*float64{&b.Min, &b.Max} {
		l := strings.TrimSpace(limits[k])
		if l == "" {
			continue
		}
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			return "", Bound{}, fmt.Errorf("bound %q: %v", s, err)
		}
		*ptr = v
	}
	if b.Min > b.Max {
		return "", Bound{}, fmt.Errorf("bound %q: lower limit exceeds upper limit", s)
	}
	return strings.TrimSpace(s[:i]), b, nil
}

// ParseBounds parses a list of bounds into a map.
func ParseBounds(specs []string) (map[string]Bound, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	bounds := make(map[string]Bound, len(specs))
	for _, s := range specs {
		name, b, err := ParseBound(s)
		if err != nil {
			return nil, err
		}
		bounds[name] = b
	}
	return bounds, nil
}
