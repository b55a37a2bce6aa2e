package tmodel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tree"
)

// AltModel is a lineage-specific substitution model applied to a set
// of branches. It either has its own model kind over the same state
// space, or copies selected parameters of the main model keeping the
// rest linked.
type AltModel struct {
	Nodes []int
	// Sub is the own substitution model, nil if the main model kind
	// is shared.
	Sub      *submod.Model
	Params   []float64
	Separate []bool
}

// AddAltModel parses and attaches an alternate model. The spec has
// the form "nodes:KIND" or "nodes:param[,param]", where nodes is a
// comma separated list of node names or ids.
func (tm *TreeModel) AddAltModel(spec string) error {
	i := strings.IndexByte(spec, ':')
	if i <= 0 || i == len(spec)-1 {
		return fmt.Errorf("malformed alternate model %q", spec)
	}
	alt := &AltModel{}
	for _, name := range strings.Split(spec[:i], ",") {
		name = strings.TrimSpace(name)
		id := tm.nodeByLabel(name)
		if id == tree.None || id == tm.Tree.Root() {
			return fmt.Errorf("alternate model %q: unknown branch %s", spec, name)
		}
		alt.Nodes = append(alt.Nodes, id)
	}
	rest := spec[i+1:]
	if kind, err := submod.ParseKind(rest); err == nil {
		sub, err := submod.New(kind, tm.Sub.Alphabet)
		if err != nil {
			return err
		}
		if sub.NStates() != tm.NStates() {
			return fmt.Errorf("alternate model %v has %d states, main model has %d",
				kind, sub.NStates(), tm.NStates())
		}
		alt.Sub = sub
		alt.Params = sub.DefaultParams()
	} else {
		names := tm.Sub.ParamNames()
		alt.Params = append([]float64(nil), tm.RateParams...)
		alt.Separate = make([]bool, len(names))
		for _, p := range strings.Split(rest, ",") {
			p = strings.TrimSpace(p)
			found := false
			for j, name := range names {
				if name == p {
					alt.Separate[j] = true
					found = true
				}
			}
			if !found {
				return fmt.Errorf("alternate model %q: unknown parameter %s", spec, p)
			}
		}
	}
	tm.Alt = append(tm.Alt, alt)
	tm.prepared = false
	return nil
}

// model returns the substitution model used by the alternate model.
func (alt *AltModel) model(tm *TreeModel) *submod.Model {
	if alt.Sub != nil {
		return alt.Sub
	}
	return tm.Sub
}

func (alt *AltModel) addParams(tm *TreeModel, k int) {
	prefix := "alt" + strconv.Itoa(k) + "."
	for j, name := range alt.model(tm).ParamNames() {
		if alt.Sub == nil && !alt.Separate[j] {
			continue
		}
		tm.addParam(paramSpec{&alt.Params[j], prefix + name, GroupRateMatrix,
			tm.EstimateRates, 0, 1000, 0.5, 5})
	}
}

// link copies linked parameters from the main model.
func (alt *AltModel) link(tm *TreeModel) {
	if alt.Sub != nil {
		return
	}
	for j, sep := range alt.Separate {
		if !sep {
			alt.Params[j] = tm.RateParams[j]
		}
	}
}

// spec returns the textual description of the alternate model.
func (alt *AltModel) spec(tm *TreeModel) string {
	labels := make([]string, len(alt.Nodes))
	for i, id := range alt.Nodes {
		labels[i] = tm.nodeLabel(id)
	}
	if alt.Sub != nil {
		return strings.Join(labels, ",") + ":" + alt.Sub.Kind.String()
	}
	var sep []string
	for j, name := range tm.Sub.ParamNames() {
		if alt.Separate[j] {
			sep = append(sep, name)
		}
	}
	return strings.Join(labels, ",") + ":" + strings.Join(sep, ",")
}

func (alt *AltModel) copy() *AltModel {
	return &AltModel{
		Nodes:    append([]int(nil), alt.Nodes...),
		Sub:      alt.Sub,
		Params:   append([]float64(nil), alt.Params...),
		Separate: append([]bool(nil), alt.Separate...),
	}
}

// branchModel returns the substitution model and its parameters for
// the branch above node v.
func (tm *TreeModel) branchModel(v int) (*submod.Model, []float64, int) {
	for k := len(tm.Alt) - 1; k >= 0; k-- {
		for _, id := range tm.Alt[k].Nodes {
			if id == v {
				return tm.Alt[k].model(tm), tm.Alt[k].Params, k + 1
			}
		}
	}
	return tm.Sub, tm.RateParams, 0
}
