package fit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/mrrlab/phylofit/align"
	"github.com/mrrlab/phylofit/bio"
	"github.com/mrrlab/phylofit/tmodel"
)

// Output file suffixes.
const (
	ModSuffix       = ".mod"
	PostProbSuffix  = ".postprob"
	ExpSubSuffix    = ".expsub"
	ExpTotSubSuffix = ".exptotsub"
	WinSumSuffix    = ".win-sum"
	ColProbSuffix   = ".colprobs"
)

// unitName returns root[.win-k][.label]. The category label is
// omitted for pooled units and in non-overlapping mode.
func (s *session) unitName(u Unit) string {
	var parts []string
	if s.cfg.OutRoot != "" {
		parts = append(parts, s.cfg.OutRoot)
	}
	if u.Win != WholeAlignment {
		parts = append(parts, "win-"+strconv.Itoa(u.Win+1))
	}
	if u.Cat != PoolAll && !s.cfg.NonOverlapping {
		if s.cm != nil {
			parts = append(parts, s.cm.Label(u.Cat))
		} else {
			parts = append(parts, strconv.Itoa(u.Cat))
		}
	}
	return strings.Join(parts, ".")
}

// unitDescription is a human readable unit name for log messages.
func unitDescription(u Unit) string {
	var parts []string
	if u.Cat != PoolAll {
		parts = append(parts, "category "+strconv.Itoa(u.Cat))
	}
	if u.Win != WholeAlignment {
		parts = append(parts, "window "+strconv.Itoa(u.Win+1))
	}
	if len(parts) == 0 {
		return "alignment"
	}
	return "alignment (" + strings.Join(parts, ", ") + ")"
}

// createFile creates a file and passes a buffered writer to write.
func createFile(fn string, write func(w io.Writer) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tupleString returns the tuple with one group per tuple position.
func tupleString(stats *align.Stats, t int) string {
	groups := make([]string, stats.TupleSize)
	b := make([]byte, stats.NSeqs)
	for k := range groups {
		for i := 0; i < stats.NSeqs; i++ {
			b[i] = stats.Symbol(t, i, k)
		}
		groups[k] = string(b)
	}
	return strings.Join(groups, " ")
}

// writePostProbs writes marginal state probabilities of the internal
// nodes, one row per tuple present in the category.
func writePostProbs(w io.Writer, tm *tmodel.TreeModel, post *tmodel.Posteriors) error {
	t := tm.Tree
	stats := tm.Stats()
	var internal []int
	for v := 0; v < t.NNodes(); v++ {
		if !t.Node(v).IsTerminal() {
			internal = append(internal, v)
		}
	}
	fmt.Fprintf(w, "%-6s %*s", "#", stats.NSeqs*stats.TupleSize+stats.TupleSize-1, "")
	for _, v := range internal {
		for i := range tm.Sub.States {
			if i == len(tm.Sub.States)/2 {
				fmt.Fprintf(w, " %-7s", "node "+strconv.Itoa(v))
			} else {
				fmt.Fprintf(w, " %7s", "")
			}
		}
	}
	fmt.Fprintf(w, "\n%-6s %*s", "#", stats.NSeqs*stats.TupleSize+stats.TupleSize-1, "tuple")
	for range internal {
		for _, st := range tm.Sub.States {
			fmt.Fprintf(w, " %7s", st)
		}
	}
	fmt.Fprintln(w)
	for tup, c := range stats.CountsFor(tm.Category()) {
		if c == 0 {
			continue
		}
		fmt.Fprintf(w, "%-6d %s", tup, tupleString(stats, tup))
		for _, v := range internal {
			for _, p := range post.Nodes[tup][v] {
				fmt.Fprintf(w, " %7.4f", p)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

// writeExpSubs writes expected numbers of substitutions per tuple and
// branch, branches in postorder.
func writeExpSubs(w io.Writer, tm *tmodel.TreeModel, post *tmodel.Posteriors) error {
	t := tm.Tree
	stats := tm.Stats()
	fmt.Fprintf(w, "%-3s %10s %7s", "#", "tuple", "count")
	for _, v := range t.Postorder() {
		if v != t.Root() {
			fmt.Fprintf(w, " %7s", "node_"+strconv.Itoa(v))
		}
	}
	fmt.Fprintf(w, " %8s\n", "total")
	for tup, c := range stats.CountsFor(tm.Category()) {
		if c == 0 {
			continue
		}
		fmt.Fprintf(w, "%-3d %10s %7.0f", tup, tupleString(stats, tup), c)
		total := 0.0
		for _, v := range t.Postorder() {
			if v == t.Root() {
				continue
			}
			fmt.Fprintf(w, " %7.4f", post.Subst[tup][v])
			total += post.Subst[tup][v]
		}
		fmt.Fprintf(w, " %8.4f\n", total)
	}
	return nil
}

const expTotSubHeader = `
A separate matrix of expected numbers of substitutions is shown for each
branch of the tree. Nodes of the tree are visited in a postorder traversal,
and each node is taken to be representative of the branch between itself and
its parent. Starting states appear on the vertical axis of each matrix, and
destination states on the horizontal axis.

`

// writeExpTotSubs writes per branch matrices of expected transition
// counts over all the data.
func writeExpTotSubs(w io.Writer, tm *tmodel.TreeModel, post *tmodel.Posteriors) error {
	t := tm.Tree
	n := post.NStates
	states := tm.Sub.States
	io.WriteString(w, expTotSubHeader)
	for _, v := range t.Postorder() {
		if v == t.Root() {
			continue
		}
		fmt.Fprintf(w, "Branch above node %d", v)
		if name := t.Node(v).Name; name != "" {
			fmt.Fprintf(w, " (labeled '%s')", name)
		}
		fmt.Fprintf(w, ":\n\n%-4s", "")
		for _, st := range states {
			fmt.Fprintf(w, " %12s", st)
		}
		fmt.Fprintln(w)
		for i, st := range states {
			fmt.Fprintf(w, "%-4s", st)
			for j := 0; j < n; j++ {
				fmt.Fprintf(w, " %12.2f", post.Total[v][i*n+j])
			}
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, "\n\n")
	}
	return nil
}

// writeWindowHeader writes the header of the window summary.
func writeWindowHeader(w io.Writer) {
	fmt.Fprintln(w, "# CpG is not computed and reported as NA")
	fmt.Fprintf(w, "%5s %8s %8s %4s %6s %8s %7s %7s\n",
		"win", "beg", "end", "cat", "GC", "CpG", "ninf", "t")
}

// writeWindowRow writes a line of the window summary.
func writeWindowRow(w io.Writer, r UnitResult) {
	fmt.Fprintf(w, "%5d %8d %8d %4d %6.4f %8s %7d %7.4f\n",
		r.Win+1, r.Beg, r.End, r.Cat, r.GC, "NA", r.Informative, r.TotalLength)
}

// backgroundGC returns the GC content of the last tuple position under
// the background frequencies.
func backgroundGC(tm *tmodel.TreeModel) float64 {
	gc := 0.0
	for i, st := range tm.Sub.States {
		if bio.IsGC(st[len(st)-1]) {
			gc += tm.Freqs[i]
		}
	}
	return gc
}

// writeColProbs writes 0-based column index and log-probability.
// Columns outside of the unit are omitted.
func writeColProbs(w io.Writer, probs []float64) error {
	for j, p := range probs {
		if math.IsNaN(p) {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d\t%.6f\n", j, p); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary writes the run summary in JSON format.
func WriteSummary(fn string, summary *RunSummary) error {
	j, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return createFile(fn, func(w io.Writer) error {
		_, err := w.Write(append(j, '\n'))
		return err
	})
}

// plotWindows plots the total branch length along the windows, one
// line per category. The format is chosen by the file extension.
func plotWindows(fn string, results []UnitResult) error {
	p := plot.New()
	p.Title.Text = "Total branch length"
	p.X.Label.Text = "window center"
	p.Y.Label.Text = "t"

	byCat := make(map[int]plotter.XYs)
	var cats []int
	for _, r := range results {
		if r.Win == WholeAlignment || r.Skipped {
			continue
		}
		if _, ok := byCat[r.Cat]; !ok {
			cats = append(cats, r.Cat)
		}
		byCat[r.Cat] = append(byCat[r.Cat], plotter.XY{
			X: float64(r.Beg+r.End) / 2,
			Y: r.TotalLength,
		})
	}
	var lines []interface{}
	for _, c := range cats {
		name := "all"
		if c != PoolAll {
			name = "cat " + strconv.Itoa(c)
		}
		lines = append(lines, name, byCat[c])
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, fn)
}
