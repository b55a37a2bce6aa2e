package fit

// UnitResult stores the outcome of a single unit.
type UnitResult struct {
	// Name is the output name of the unit (root[.win-k][.label]).
	Name string `json:"name"`
	Cat  int    `json:"category"`
	Win  int    `json:"window"`
	// Beg and End are window bounds in alignment columns, zero for
	// the whole alignment.
	Beg int `json:"beg,omitempty"`
	End int `json:"end,omitempty"`
	// Skipped is set if the unit had too few informative sites.
	Skipped     bool `json:"skipped,omitempty"`
	Informative int  `json:"informative"`
	// LnL is the natural log-likelihood.
	LnL           float64            `json:"lnL"`
	ParsimonyCost float64            `json:"parsimonyCost,omitempty"`
	GC            float64            `json:"gc"`
	TotalLength   float64            `json:"totalLength"`
	Tree          string             `json:"tree,omitempty"`
	Parameters    map[string]float64 `json:"parameters,omitempty"`
	// Resumed is set if the fit was restored from a final
	// checkpoint.
	Resumed bool `json:"resumed,omitempty"`
	// Time is the unit processing time in seconds.
	Time float64 `json:"time"`
}

// RunSummary is the summary of a fitting run.
type RunSummary struct {
	// Version stores the program version.
	Version string `json:"version,omitempty"`
	// CommandLine is the binary name and all command-line parameters.
	CommandLine []string `json:"commandLine,omitempty"`
	// Seed is the seed used for random initialization.
	Seed int64 `json:"seed"`
	// Model is the substitution model name.
	Model string `json:"model"`
	// TotalTime is the computations time in seconds.
	TotalTime float64      `json:"time"`
	Units     []UnitResult `json:"units"`
}
