package fit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrrlab/phylofit/optimize"
	"github.com/mrrlab/phylofit/tmodel"
)

func TestValidate(tst *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		tst.Fatal("default configuration is invalid:", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"em+conditional", func(c *Config) { c.EM = true; c.Conditional = true }},
		{"lnl without model", func(c *Config) { c.LikelihoodOnly = true }},
		{"tree and model", func(c *Config) { c.Tree = "t.nwk"; c.InitModel = "m.mod" }},
		{"no-freqs without model", func(c *Config) { c.NoFreqs = true }},
		{"gaps with HKY85", func(c *Config) { c.GapsAsBases = true; c.Subst = "HKY85" }},
		{"unknown model", func(c *Config) { c.Subst = "K80" }},
		{"rate consts count", func(c *Config) { c.NRateCats = 2; c.RateConsts = []float64{0.5, 1, 2} }},
		{"single rate const", func(c *Config) { c.NRateCats = 1; c.RateConsts = []float64{1} }},
		{"both window specs", func(c *Config) {
			c.WindowSize = 100
			c.WindowShift = 50
			c.WindowsExplicit = []int{1, 100}
		}},
		{"zero shift", func(c *Config) { c.WindowSize = 100 }},
		{"odd windows", func(c *Config) { c.WindowsExplicit = []int{1, 100, 200} }},
		{"windows without root", func(c *Config) { c.WindowsExplicit = []int{1, 100}; c.OutRoot = "" }},
		{"colprobs without lnl", func(c *Config) { c.ColumnProbs = true }},
		{"posteriors with rates", func(c *Config) { c.PostProbs = true; c.NRateCats = 4 }},
		{"parsimony only", func(c *Config) { c.ParsimonyOnly = true }},
		{"non-overlapping with cats", func(c *Config) { c.NonOverlapping = true; c.DoCats = []string{"1"} }},
		{"ancestor with REV", func(c *Config) { c.Ancestor = "a"; c.Subst = "REV" }},
		{"bad subtree", func(c *Config) { c.ScaleSubtree = "a:up" }},
		{"bad bound", func(c *Config) { c.Bounds = []string{"kappa[2,1]"} }},
		{"negative trace period", func(c *Config) { c.TraceEvery = -1 }},
	}
	for _, t := range tests {
		cfg := DefaultConfig()
		t.modify(&cfg)
		err := cfg.Validate()
		if err == nil {
			tst.Errorf("%s: expected an error", t.name)
			continue
		}
		if !errors.Is(err, ErrConfig) {
			tst.Errorf("%s: error does not wrap ErrConfig: %v", t.name, err)
		}
	}

	cfg = DefaultConfig()
	cfg.NRateCats = 3
	cfg.RateConsts = []float64{0.5, 1, 2}
	if err := cfg.Validate(); err != nil {
		tst.Error("valid rate constants were rejected:", err)
	}
}

func TestParseSubtree(tst *testing.T) {
	tests := []struct {
		s    string
		name string
		dir  tmodel.Direction
	}{
		{"hominoid", "hominoid", tmodel.NoDirection},
		{"hominoid:loss", "hominoid", tmodel.Loss},
		{"hominoid:gain", "hominoid", tmodel.Gain},
	}
	for _, t := range tests {
		name, dir, err := parseSubtree(t.s)
		if err != nil {
			tst.Errorf("%s: %v", t.s, err)
			continue
		}
		if name != t.name || dir != t.dir {
			tst.Errorf("%s: got %s %v", t.s, name, dir)
		}
	}
	if _, _, err := parseSubtree(":loss"); err == nil {
		tst.Error("expected an error for an empty name")
	}
}

func TestReadConfig(tst *testing.T) {
	fn := filepath.Join(tst.TempDir(), "config.yaml")
	data := `
subst_mod: HKY85
precision: med
nrates: 4
alpha: 0.5
do_cats: [CDS, intron]
window_size: 1000
window_shift: 500
`
	if err := os.WriteFile(fn, []byte(data), 0666); err != nil {
		tst.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := ReadConfig(fn, &cfg); err != nil {
		tst.Fatal(err)
	}
	if cfg.Subst != "HKY85" || cfg.Precision != optimize.Med || cfg.NRateCats != 4 {
		tst.Error("wrong configuration:", cfg)
	}
	if !cfg.AlphaSet() || cfg.AlphaValue() != 0.5 {
		tst.Error("alpha was not read:", cfg.Alpha)
	}
	if len(cfg.DoCats) != 2 || cfg.WindowShift != 500 {
		tst.Error("wrong configuration:", cfg)
	}
	if cfg.MinInformative != DefaultMinInformative {
		tst.Error("defaults were overwritten")
	}

	if err := os.WriteFile(fn, []byte("no_such_option: 1\n"), 0666); err != nil {
		tst.Fatal(err)
	}
	cfg = DefaultConfig()
	if err := ReadConfig(fn, &cfg); err == nil {
		tst.Error("expected an error for an unknown field")
	}
}
