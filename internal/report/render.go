package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

const (
	rateBorder  = "+----------------------+--------------------+--------------------+--------------------+"
	totalBorder = "+----------------------+---------------------------------------------------+"
)

// Renderer formats a Report as the fixed text table written to the sink.
type Renderer struct {
	header *color.Color
	border *color.Color
	label  *color.Color
	value  *color.Color
}

// NewRenderer creates a renderer. Colors are emitted only when useColor is
// set, regardless of the global fatih/color setting.
func NewRenderer(useColor bool) *Renderer {
	r := &Renderer{
		header: color.New(color.FgCyan, color.Bold),
		border: color.New(color.FgHiBlack),
		label:  color.New(color.FgYellow),
		value:  color.New(color.FgWhite, color.Bold),
	}
	for _, c := range []*color.Color{r.header, r.border, r.label, r.value} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Render returns the report block. The block starts with a blank line so
// consecutive reports stay visually separated from raw lines.
func (r *Renderer) Render(rep *Report) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(r.header.Sprintf("[STATS @ %6.1fs]", rep.Elapsed.Seconds()))
	b.WriteString("\n")

	r.line(&b, rateBorder)
	fmt.Fprintf(&b, "| %-20s |", "Section")
	for _, w := range rep.Rates {
		fmt.Fprintf(&b, " %18s |", w.Window+" window")
	}
	b.WriteString("\n")
	r.line(&b, rateBorder)

	rows := []struct {
		label string
		value func(WindowRates) float64
	}{
		{"Msgs total/s", func(w WindowRates) float64 { return w.TotalMessages }},
		{"Msgs live/s", func(w WindowRates) float64 { return w.LiveMessages }},
		{"Msgs snapshot/s", func(w WindowRates) float64 { return w.SnapshotMessages }},
		{"Inst live/s", func(w WindowRates) float64 { return w.LiveInstruments }},
		{"Inst snapshot/s", func(w WindowRates) float64 { return w.SnapshotInstruments }},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s |", r.label.Sprintf("%-20s", row.label))
		for _, w := range rep.Rates {
			fmt.Fprintf(&b, " %s |", r.value.Sprintf("%15.1f /s", row.value(w)))
		}
		b.WriteString("\n")
	}
	r.line(&b, rateBorder)

	r.line(&b, totalBorder)
	r.totalRow(&b, "Totals/Coverage", "Values")
	r.line(&b, totalBorder)

	c := rep.Counts
	r.totalRow(&b, "Total messages", fmt.Sprintf("%s (live: %s, snap: %s)",
		humanize.Comma(int64(c.TotalMessages)),
		humanize.Comma(int64(c.LiveMessages)),
		humanize.Comma(int64(c.SnapshotMessages))))
	r.totalRow(&b, "Instruments (live)", coverageCell(c.LiveInstruments, rep.Universe, rep.Coverage.Live))
	r.totalRow(&b, "Instruments (snap)", coverageCell(c.SnapshotInstruments, rep.Universe, rep.Coverage.Snapshot))
	r.totalRow(&b, "Instruments (union)", coverageCell(c.UnionInstruments, rep.Universe, rep.Coverage.Union))
	r.totalRow(&b, "Print buffer", fmt.Sprintf("remaining %s / cap %s",
		humanize.Comma(int64(rep.SinkRemaining)),
		humanize.Comma(int64(rep.SinkCapacity))))
	r.totalRow(&b, "Message gap", gapCell(rep))
	b.WriteString(r.border.Sprint(totalBorder))

	return b.String()
}

func (r *Renderer) line(b *strings.Builder, s string) {
	b.WriteString(r.border.Sprint(s))
	b.WriteString("\n")
}

func (r *Renderer) totalRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "| %s | %-49s |\n", r.label.Sprintf("%-20s", label), value)
}

func coverageCell(n, universe int, pct float64) string {
	return fmt.Sprintf("%5s/%-5s %6.2f%%", humanize.Comma(int64(n)), humanize.Comma(int64(universe)), pct)
}

func gapCell(rep *Report) string {
	g := rep.Gaps
	if g.Count == 0 {
		return "n/a"
	}
	return fmt.Sprintf("p50 %s  p99 %s  max %s",
		roundGap(g.P50), roundGap(g.P99), roundGap(g.Max))
}

func roundGap(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.String()
	}
}
