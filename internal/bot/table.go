package bot

import "strings"

type tableAlign int

const (
	alignLeft tableAlign = iota
	alignRight
)

// tableBuilder renders a monospace table for code-block embeds.
type tableBuilder struct {
	header []string
	align  []tableAlign
	rows   [][]string
}

func newTableBuilder(header []string, align []tableAlign) *tableBuilder {
	return &tableBuilder{header: header, align: align}
}

func (b *tableBuilder) addRow(cells ...string) *tableBuilder {
	b.rows = append(b.rows, cells)
	return b
}

func (b *tableBuilder) build() string {
	width := make([]int, len(b.header))
	for i, h := range b.header {
		width[i] = len([]rune(h))
	}
	for _, row := range b.rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > width[i] {
				width[i] = n
			}
		}
	}

	var lines []string
	lines = append(lines, b.formatRow(b.header, width))

	rules := make([]string, len(width))
	for i, w := range width {
		rules[i] = strings.Repeat("-", w)
	}
	lines = append(lines, strings.Join(rules, " "))

	for _, row := range b.rows {
		lines = append(lines, b.formatRow(row, width))
	}
	return strings.Join(lines, "\n")
}

func (b *tableBuilder) formatRow(row []string, width []int) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		pad := strings.Repeat(" ", width[i]-len([]rune(cell)))
		if b.align[i] == alignRight {
			cells[i] = pad + cell
		} else {
			cells[i] = cell + pad
		}
	}
	return strings.Join(cells, " ")
}
