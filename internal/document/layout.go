package document

// Layout is the page geometry, in points, used when flattening text into pages.
type Layout struct {
	Width      float64
	Height     float64
	Margin     float64
	LineHeight float64
}

// DefaultLayout is an A4 page with a 50pt margin and 20pt lines.
func DefaultLayout() Layout {
	return Layout{Width: 595.27, Height: 841.89, Margin: 50, LineHeight: 20}
}

// Paginate lays lines out top-down starting at the top margin and starts a
// new page whenever the next line would cross Height-Margin.
// Every page holds at least one line, so oversized layouts still make progress.
func (l Layout) Paginate(lines []string) [][]string {
	if len(lines) == 0 {
		return nil
	}

	var pages [][]string
	var cur []string
	y := l.Margin
	for _, line := range lines {
		if len(cur) > 0 && y+l.LineHeight > l.Height-l.Margin {
			pages = append(pages, cur)
			cur = nil
			y = l.Margin
		}
		cur = append(cur, line)
		y += l.LineHeight
	}
	return append(pages, cur)
}

// LinesPerPage returns how many lines fit on one page.
func (l Layout) LinesPerPage() int {
	if l.LineHeight <= 0 {
		return 1
	}
	n := int((l.Height - 2*l.Margin) / l.LineHeight)
	if n < 1 {
		return 1
	}
	return n
}
