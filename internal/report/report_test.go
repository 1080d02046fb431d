package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

func TestBiasDistribution(t *testing.T) {
	d := BiasDistribution(map[domain.BiasLabel]int{
		domain.BiasLeft:   1,
		domain.BiasCenter: 2,
		"sideways":        7,
	})

	assert.Equal(t, 3, d.Total)
	require.Len(t, d.Rows, 5)
	assert.Equal(t, domain.BiasLeft, d.Rows[0].Label)
	assert.Equal(t, 33.3, d.Rows[0].Percent)
	assert.Equal(t, 66.7, d.Rows[2].Percent)
	assert.Equal(t, 0.0, d.Rows[4].Percent)
}

func TestDistribution_Write(t *testing.T) {
	d := BiasDistribution(map[domain.BiasLabel]int{domain.BiasLeanLeft: 1, domain.BiasRight: 3})

	var b strings.Builder
	require.NoError(t, d.Write(&b))
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "   Left           0%  (0)", lines[0])
	assert.Equal(t, "   Lean left     25% "+strings.Repeat("█", 12)+" (1)", lines[1])
	assert.Equal(t, "   Right         75% "+strings.Repeat("█", 37)+" (3)", lines[4])
}

func TestDistribution_EmptyHasNoDivision(t *testing.T) {
	d := BiasDistribution(nil)
	assert.Equal(t, 0, d.Total)
	for _, row := range d.Rows {
		assert.Zero(t, row.Percent)
	}
}

func TestWriteSourceCounts(t *testing.T) {
	counts := SourceCounts([]domain.Source{{Bias: domain.BiasCenter}, {Bias: domain.BiasCenter}, {Bias: domain.BiasLeft}})

	var b strings.Builder
	require.NoError(t, WriteSourceCounts(&b, counts))
	assert.Contains(t, b.String(), "   Center:      2 sources\n")
	assert.Contains(t, b.String(), "   Left:        1 sources\n")
	assert.Contains(t, b.String(), "   Lean right:  0 sources\n")
}

func TestWriteTable_WideRunes(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteTable(&b, []string{"SLUG", "NAME"}, [][]string{
		{"ab", "x"},
		{"日本", "y"},
	}))
	assert.Equal(t, "SLUG  NAME\nab    x\n日本  y\n", b.String())
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "Lean right", DisplayLabel(domain.BiasLeanRight))
	assert.Equal(t, "Center", DisplayLabel(domain.BiasCenter))
}
