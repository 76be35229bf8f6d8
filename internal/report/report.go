// Package report renders bootstrap results as Markdown and HTML.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"bootfit/internal/bootstrap"
	"bootfit/internal/profiling"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Meta describes the run a report is about.
type Meta struct {
	ModelName string
	CreatedAt time.Time
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.6g", v)
}

// Markdown renders the parameter summary table.
func Markdown(r *bootstrap.Result, meta Meta) []byte {
	var b strings.Builder
	title := "Bootstrap report"
	if meta.ModelName != "" {
		title += ": " + meta.ModelName
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if r.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", r.RunID)
	}
	if !meta.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Created:** %s\n", meta.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- **Accepted iterations:** %d\n", r.NumIteration)
	fmt.Fprintf(&b, "- **Refit failures:** %d\n", r.BootstrapErrorCount)
	fmt.Fprintf(&b, "- **Rejected refits:** %d\n", r.RejectedCount)
	if r.FailedWorkers > 0 {
		fmt.Fprintf(&b, "- **Failed workers:** %d\n", r.FailedWorkers)
	}
	if r.Partial {
		b.WriteString("\n> Partial result: fewer iterations were accepted than requested.\n")
	}

	b.WriteString("\n## Parameters\n\n| Parameter | Mean | Std | CV |")
	for _, p := range r.Percentiles {
		fmt.Fprintf(&b, " p%g |", p)
	}
	b.WriteString("\n|---|---:|---:|---:|")
	for range r.Percentiles {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for _, name := range r.Parameters {
		mean, std := r.MeanDct[name], r.StdDct[name]
		cv := math.NaN()
		if mean != 0 {
			cv = std / math.Abs(mean)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |", name, num(mean), num(std), num(cv))
		for i := range r.Percentiles {
			v := math.NaN()
			if i < len(r.PercentileDct[name]) {
				v = r.PercentileDct[name][i]
			}
			fmt.Fprintf(&b, " %s |", num(v))
		}
		b.WriteString("\n")
	}

	if r.NumIteration > 0 {
		b.WriteString("\n## Distribution shape\n\n| Parameter | Min | Median | Max | Skewness | Excess kurtosis | Outliers | Normal |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|---:|---|\n")
		for _, name := range r.Parameters {
			shape, err := profiling.Describe(r.ParameterDct[name])
			if err != nil {
				continue
			}
			normal := "n/a"
			if !math.IsNaN(shape.NormalityP) {
				normal = fmt.Sprintf("%t (p=%.3g)", shape.IsNormal, shape.NormalityP)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %d | %s |\n", name, num(shape.Min), num(shape.Median),
				num(shape.Max), num(shape.Skewness), num(shape.ExcessKurtosis), shape.Outliers, normal)
		}
	}

	if r.FittedStatistic != nil && r.FittedStatistic.Count() > 0 {
		cols := r.FittedStatistic.Columns()
		fmt.Fprintf(&b, "\n## Fitted trajectories\n\n%d accepted trajectories over %d time points for %s.\n",
			r.FittedStatistic.Count(), len(r.FittedStatistic.Times()), strings.Join(cols, ", "))
	}
	return []byte(b.String())
}

// HTML renders the Markdown report as a complete HTML page.
func HTML(r *bootstrap.Result, meta Meta) []byte {
	md := Markdown(r, meta)
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Bootstrap report",
	})
	return markdown.ToHTML(md, p, renderer)
}
