// Package fit runs phylogenetic model fitting over estimation units
// (category and window combinations) of an alignment and writes the
// results.
package fit

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/op/go-logging"
	"gopkg.in/yaml.v3"

	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/submod"
	"github.com/mrrlab/phylofit/tmodel"
)

var log = logging.MustGetLogger("fit")

// ErrConfig is wrapped by all the fatal configuration errors.
var ErrConfig = errors.New("configuration error")

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Defaults.
const (
	DefaultAlpha          = 1.0
	DefaultMinInformative = 50
	DefaultBranchLength   = 0.1
	DefaultKappa          = 5.0
	DefaultOutRoot        = "phyloFit"
)

// Config is the fitting configuration. It is not changed after
// validation; working state lives in the session.
type Config struct {
	// input files, used by LoadInputs
	Alignment string `yaml:"msa"`
	Tree      string `yaml:"tree"`
	InitModel string `yaml:"init_model"`
	CatMap    string `yaml:"catmap"`
	SiteCats  string `yaml:"site_cats"`

	// Subst is the substitution model name, empty means REV or the
	// model of the initial model.
	Subst     string             `yaml:"subst_mod"`
	Precision optimize.Precision `yaml:"precision"`
	EM        bool               `yaml:"em"`
	Simplex   bool               `yaml:"simplex"`

	NRateCats int `yaml:"nrates"`
	// Alpha is the gamma shape, zero means default.
	Alpha      float64   `yaml:"alpha"`
	RateConsts []float64 `yaml:"rate_consts"`

	GapsAsBases    bool     `yaml:"gaps_as_bases"`
	NoOpt          []string `yaml:"no_opt"`
	Bounds         []string `yaml:"bounds"`
	SymFreqs       bool     `yaml:"sym_freqs"`
	Conditional    bool     `yaml:"markov"`
	ScaleOnly      bool     `yaml:"scale_only"`
	ScaleSubtree   string   `yaml:"scale_subtree"`
	Clock          bool     `yaml:"clock"`
	NoBranchLens   bool     `yaml:"no_branchlens"`
	NoRates        bool     `yaml:"no_rates"`
	NoFreqs        bool     `yaml:"no_freqs"`
	EstimateFreqs  bool     `yaml:"estimate_freqs"`
	IgnoreBranches []string `yaml:"ignore_branches"`
	AltModels      []string `yaml:"alt_models"`
	Ancestor       string   `yaml:"ancestor"`

	DoCats          []string `yaml:"do_cats"`
	NonOverlapping  bool     `yaml:"non_overlapping"`
	WindowSize      int      `yaml:"window_size"`
	WindowShift     int      `yaml:"window_shift"`
	WindowsExplicit []int    `yaml:"windows_explicit"`
	MinInformative  int      `yaml:"min_informative"`

	// Seed initializes the random generator, negative means time
	// based.
	Seed          int64 `yaml:"seed"`
	InitRandom    bool  `yaml:"init_random"`
	InitParsimony bool  `yaml:"init_parsimony"`
	ParsimonyOnly bool  `yaml:"parsimony_only"`

	LikelihoodOnly bool `yaml:"lnl"`
	ColumnProbs    bool `yaml:"column_probs"`
	PostProbs      bool `yaml:"post_probs"`
	ExpSubs        bool `yaml:"expected_subs"`
	ExpTotSubs     bool `yaml:"expected_total_subs"`

	OutRoot       string `yaml:"out_root"`
	Trace         string `yaml:"log"`
	TraceEvery    int    `yaml:"log_every"`
	ErrorFile     string `yaml:"error"`
	ParsimonyCost string `yaml:"parsimony_cost"`
	Checkpoint    string `yaml:"checkpoint"`
	Summary       string `yaml:"json"`
	Plot          string `yaml:"plot"`

	// Signals interrupt the optimization keeping the best point.
	Signals []os.Signal `yaml:"-"`
}

// DefaultConfig returns the configuration with default values.
func DefaultConfig() Config {
	return Config{
		Precision:      optimize.High,
		NRateCats:      1,
		MinInformative: DefaultMinInformative,
		Seed:           -1,
		OutRoot:        DefaultOutRoot,
	}
}

// ReadConfig reads a YAML configuration file on top of cfg.
func ReadConfig(fn string, cfg *Config) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("reading config %s: %w", fn, err)
	}
	return nil
}

// AlphaValue returns the gamma shape parameter.
func (cfg *Config) AlphaValue() float64 {
	if cfg.Alpha == 0 {
		return DefaultAlpha
	}
	return cfg.Alpha
}

// AlphaSet tests whether alpha was set explicitly.
func (cfg *Config) AlphaSet() bool {
	return cfg.Alpha != 0
}

// Kind returns the substitution model kind. The model of the initial
// model is used if none was specified.
func (cfg *Config) Kind(input *tmodel.TreeModel) (submod.Kind, error) {
	if cfg.Subst == "" {
		if input != nil {
			return input.Kind(), nil
		}
		return submod.REV, nil
	}
	kind, err := submod.ParseKind(cfg.Subst)
	if err != nil {
		return kind, configError("%v", err)
	}
	return kind, nil
}

// Posteriors tests whether any posterior output was requested.
func (cfg *Config) Posteriors() bool {
	return cfg.PostProbs || cfg.ExpSubs || cfg.ExpTotSubs
}

// Validate checks the option combinations. All the errors wrap
// ErrConfig.
func (cfg *Config) Validate() error {
	if cfg.Conditional && cfg.EM {
		return configError("EM cannot be used with conditional probabilities")
	}
	if cfg.LikelihoodOnly && cfg.InitModel == "" {
		return configError("likelihood-only mode requires an initial model")
	}
	if cfg.InitModel != "" && cfg.Tree != "" {
		return configError("a tree is not allowed with an initial model")
	}
	if (cfg.NoFreqs || cfg.NoRates) && cfg.InitModel == "" {
		return configError("an initial model is required to keep frequencies or rates")
	}
	if cfg.NoFreqs && cfg.EstimateFreqs {
		return configError("frequencies cannot be both kept and estimated")
	}
	kind := submod.REV
	if cfg.Subst != "" {
		var err error
		if kind, err = submod.ParseKind(cfg.Subst); err != nil {
			return configError("%v", err)
		}
	}
	if cfg.GapsAsBases && cfg.Subst != "" && !kind.SupportsGapsAsBases() {
		return configError("gaps as bases are not supported with %v", kind)
	}
	if cfg.NRateCats < 1 {
		return configError("number of rate categories has to be positive")
	}
	if cfg.Alpha < 0 {
		return configError("alpha has to be positive")
	}
	if cfg.RateConsts != nil {
		if err := tmodel.ValidateRateConsts(cfg.RateConsts, cfg.NRateCats); err != nil {
			return configError("%v", err)
		}
	}
	if cfg.NonOverlapping && len(cfg.DoCats) > 0 {
		return configError("category restriction cannot be used with non-overlapping tuples")
	}
	if cfg.WindowSize != 0 && cfg.WindowsExplicit != nil {
		return configError("both window size and explicit windows are given")
	}
	if cfg.WindowSize < 0 || (cfg.WindowSize > 0 && cfg.WindowShift <= 0) {
		return configError("window size and shift have to be positive")
	}
	if len(cfg.WindowsExplicit)%2 != 0 {
		return configError("explicit windows have to be pairs of coordinates")
	}
	if (cfg.WindowSize > 0 || cfg.WindowsExplicit != nil) && cfg.OutRoot == "" {
		return configError("windows require an output root")
	}
	if cfg.ColumnProbs && (!cfg.LikelihoodOnly || cfg.OutRoot == "") {
		return configError("column probabilities require likelihood-only mode and an output root")
	}
	if cfg.Posteriors() && cfg.NRateCats > 1 {
		return configError("posterior statistics are not supported with rate variation")
	}
	if cfg.ParsimonyOnly && !cfg.InitParsimony {
		return configError("parsimony-only mode requires parsimony initialization")
	}
	if cfg.TraceEvery < 0 {
		return configError("trace period cannot be negative")
	}
	if cfg.Ancestor != "" && cfg.Subst != "" && kind.Reversible() {
		return configError("ancestor requires a non-reversible model")
	}
	if cfg.ScaleSubtree != "" {
		if _, _, err := parseSubtree(cfg.ScaleSubtree); err != nil {
			return err
		}
	}
	if _, err := tmodel.ParseBounds(cfg.Bounds); err != nil {
		return configError("%v", err)
	}
	if cfg.MinInformative < 0 {
		return configError("informative sites threshold has to be non-negative")
	}
	return nil
}

// parseSubtree parses "name[:loss|:gain]".
func parseSubtree(s string) (string, tmodel.Direction, error) {
	name, suffix := s, ""
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		name, suffix = s[:i], s[i+1:]
	}
	if name == "" {
		return "", tmodel.NoDirection, configError("empty subtree name")
	}
	switch suffix {
	case "":
		return name, tmodel.NoDirection, nil
	case "loss":
		return name, tmodel.Loss, nil
	case "gain":
		return name, tmodel.Gain, nil
	}
	return "", tmodel.NoDirection, configError("unrecognized subtree suffix %q", suffix)
}
