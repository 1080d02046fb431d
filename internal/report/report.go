// Package report renders console summaries of ingestion runs and bias coverage.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

const (
	labelWidth = 12
	barGlyph   = "█"
)

// Row is one bias label's share.
type Row struct {
	Label   domain.BiasLabel
	Count   int
	Percent float64
}

// Distribution is the share of articles per bias label, ordered left to right.
type Distribution struct {
	Rows  []Row
	Total int
}

// BiasDistribution orders counts left to right and computes percentages rounded to one decimal.
// Labels outside the fixed set are ignored.
func BiasDistribution(counts map[domain.BiasLabel]int) Distribution {
	var d Distribution
	for _, label := range domain.BiasLabels {
		d.Total += counts[label]
	}
	for _, label := range domain.BiasLabels {
		row := Row{Label: label, Count: counts[label]}
		if d.Total > 0 {
			row.Percent = math.Round(float64(row.Count)/float64(d.Total)*1000) / 10
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// Write prints one line per label with a bar of one glyph per two percent.
func (d Distribution) Write(w io.Writer) error {
	for _, row := range d.Rows {
		bar := strings.Repeat(barGlyph, int(row.Percent/2))
		line := fmt.Sprintf("   %s %3d%% %s (%d)\n",
			runewidth.FillRight(DisplayLabel(row.Label), labelWidth), int(row.Percent), bar, row.Count)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// DisplayLabel turns "lean-left" into "Lean left".
func DisplayLabel(label domain.BiasLabel) string {
	s := strings.ReplaceAll(string(label), "-", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SourceCounts counts sources per bias label.
func SourceCounts(sources []domain.Source) map[domain.BiasLabel]int {
	out := make(map[domain.BiasLabel]int, len(domain.BiasLabels))
	for _, s := range sources {
		out[s.Bias]++
	}
	return out
}

// WriteSourceCounts prints how many sources each label has.
func WriteSourceCounts(w io.Writer, counts map[domain.BiasLabel]int) error {
	for _, label := range domain.BiasLabels {
		line := fmt.Sprintf("   %s %d sources\n", runewidth.FillRight(DisplayLabel(label)+":", labelWidth), counts[label])
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable prints rows of cells padded to the widest cell of each column, measured in
// display width so wide runes in source names stay aligned.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
		}
	}

	writeRow := func(cells []string) error {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(widths)-1 {
				parts[i] = cell
			} else {
				parts[i] = runewidth.FillRight(cell, widths[i])
			}
		}
		_, err := io.WriteString(w, strings.TrimRight(strings.Join(parts, "  "), " ")+"\n")
		return err
	}

	if err := writeRow(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRow(row); err != nil {
			return err
		}
	}
	return nil
}
