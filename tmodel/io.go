package tmodel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tree"
)

func formatFloats(v []float64) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(s, " ")
}

func formatParams(names []string, values []float64) string {
	s := make([]string, len(names))
	for i, name := range names {
		s[i] = name + "=" + strconv.FormatFloat(values[i], 'g', -1, 64)
	}
	return strings.Join(s, " ")
}

// WriteModel writes the model description. Parameters are written
// with full precision so a model read back reproduces the likelihood.
func WriteModel(w io.Writer, tm *TreeModel) error {
	if tm.prepared {
		tm.update()
	}
	freqs := tm.Freqs
	if freqs == nil {
		freqs = tm.Sub.UniformFreqs()
	}
	bw := bufio.NewWriter(w)
	symbols := strings.Split(tm.Sub.Alphabet, "")
	fmt.Fprintf(bw, "ALPHABET: %s\n", strings.Join(symbols, " "))
	fmt.Fprintf(bw, "ORDER: %d\n", tm.Order())
	fmt.Fprintf(bw, "SUBST_MOD: %v\n", tm.Kind())
	fmt.Fprintf(bw, "NRATECATS: %d\n", tm.NRateCats)
	if tm.NRateCats > 1 {
		fmt.Fprintf(bw, "ALPHA: %s\n", strconv.FormatFloat(tm.Alpha, 'g', -1, 64))
		if tm.RateConsts != nil {
			fmt.Fprintf(bw, "RATE_CONSTS: %s\n", formatFloats(tm.RateConsts))
		}
		fmt.Fprintf(bw, "RATE_WEIGHTS: %s\n", formatFloats(tm.RateWeights))
	}
	fmt.Fprintf(bw, "TRAINING_LNL: %s\n", strconv.FormatFloat(tm.LnL, 'g', -1, 64))
	fmt.Fprintf(bw, "BACKGROUND: %s\n", formatFloats(freqs))
	q, err := tm.Sub.NewRateMatrix(tm.RateParams, freqs)
	if err != nil {
		return err
	}
	fmt.Fprintln(bw, "RATE_MAT:")
	n := tm.NStates()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fmt.Fprintf(bw, "  %12.6f", q.At(i, j))
		}
		fmt.Fprintln(bw)
	}
	if tm.Sub.NParams() > 0 {
		fmt.Fprintf(bw, "SUBST_PARAMS: %s\n", formatParams(tm.Sub.ParamNames(), tm.RateParams))
	}
	for _, alt := range tm.Alt {
		fmt.Fprintf(bw, "ALT_MODEL: %s %s\n", alt.spec(tm),
			formatParams(alt.model(tm).ParamNames(), alt.Params))
	}
	fmt.Fprintf(bw, "TREE: %s\n", tm.Tree.String())
	return bw.Flush()
}

// SaveModel writes the model into a file.
func SaveModel(fn string, tm *TreeModel) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := WriteModel(f, tm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseParams(s string) (map[string]float64, error) {
	m := make(map[string]float64)
	for _, field := range strings.Fields(s) {
		i := strings.LastIndexByte(field, '=')
		if i <= 0 {
			return nil, fmt.Errorf("malformed parameter %q", field)
		}
		v, err := strconv.ParseFloat(field[i+1:], 64)
		if err != nil {
			return nil, err
		}
		m[field[:i]] = v
	}
	return m, nil
}

func setByName(dst []float64, names []string, m map[string]float64) error {
	for i, name := range names {
		v, ok := m[name]
		if !ok {
			return fmt.Errorf("parameter %s is missing", name)
		}
		dst[i] = v
	}
	return nil
}

// ReadModel reads a model written by WriteModel.
func ReadModel(r io.Reader) (*TreeModel, error) {
	fields := make(map[string]string)
	var alts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		i := strings.Index(line, ":")
		if i <= 0 || line[0] == ' ' {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key == "ALT_MODEL" {
			alts = append(alts, value)
			continue
		}
		fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for _, key := range []string{"ALPHABET", "SUBST_MOD", "TREE"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("model file has no %s", key)
		}
	}
	kind, err := submod.ParseKind(fields["SUBST_MOD"])
	if err != nil {
		return nil, err
	}
	sub, err := submod.New(kind, strings.Join(strings.Fields(fields["ALPHABET"]), ""))
	if err != nil {
		return nil, err
	}
	if o, ok := fields["ORDER"]; ok && o != strconv.Itoa(kind.Order()) {
		return nil, fmt.Errorf("order %s does not match model %v", o, kind)
	}
	t, err := tree.ParseNewickString(fields["TREE"])
	if err != nil {
		return nil, err
	}
	tm := New(t, sub)

	if s, ok := fields["SUBST_PARAMS"]; ok {
		m, err := parseParams(s)
		if err != nil {
			return nil, err
		}
		if err := setByName(tm.RateParams, sub.ParamNames(), m); err != nil {
			return nil, err
		}
	}
	if s, ok := fields["BACKGROUND"]; ok {
		freqs, err := optimize.ReadFloats(s)
		if err != nil {
			return nil, err
		}
		if len(freqs) != sub.NStates() {
			return nil, errors.New("wrong number of background frequencies")
		}
		tm.Freqs = freqs
	}
	nratecats := 1
	if s, ok := fields["NRATECATS"]; ok {
		if nratecats, err = strconv.Atoi(s); err != nil {
			return nil, err
		}
	}
	alpha := 1.0
	if s, ok := fields["ALPHA"]; ok {
		if alpha, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, err
		}
	}
	var consts []float64
	if s, ok := fields["RATE_CONSTS"]; ok {
		if consts, err = optimize.ReadFloats(s); err != nil {
			return nil, err
		}
	}
	if err := tm.SetRateVariation(nratecats, alpha, consts); err != nil {
		return nil, err
	}
	if s, ok := fields["RATE_WEIGHTS"]; ok {
		w, err := optimize.ReadFloats(s)
		if err != nil {
			return nil, err
		}
		if len(w) != nratecats {
			return nil, errors.New("wrong number of rate weights")
		}
		tm.RateWeights = w
	}
	if s, ok := fields["TRAINING_LNL"]; ok {
		if tm.LnL, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, err
		}
	}
	for _, s := range alts {
		f := strings.Fields(s)
		if len(f) == 0 {
			return nil, errors.New("empty alternate model")
		}
		if err := tm.AddAltModel(f[0]); err != nil {
			return nil, err
		}
		m, err := parseParams(strings.Join(f[1:], " "))
		if err != nil {
			return nil, err
		}
		alt := tm.Alt[len(tm.Alt)-1]
		if err := setByName(alt.Params, alt.model(tm).ParamNames(), m); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

// LoadModel reads a model from a file.
func LoadModel(fn string) (*TreeModel, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tm, err := ReadModel(f)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", fn, err)
	}
	return tm, nil
}
