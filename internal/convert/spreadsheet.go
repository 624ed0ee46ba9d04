package convert

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/docparse/internal/document"
)

// Spreadsheet renders each sheet as a "Worksheet: <name>" label followed by
// one " | "-joined line per row, paginated by Layout. It reads OOXML
// workbooks only; legacy BIFF .xls files are not supported.
type Spreadsheet struct {
	Layout document.Layout
}

func (c Spreadsheet) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	var lines []string
	for _, sheet := range f.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines = append(lines, "Worksheet: "+sheet.Name)
		for _, row := range sheet.Rows {
			lines = append(lines, rowLine(row))
		}
	}

	doc := document.New("xlsx")
	for _, page := range c.Layout.Paginate(lines) {
		doc.Add(document.NewTextPage(c.Layout, page...))
	}
	if doc.NumPages() == 0 {
		// A workbook with no sheets still yields one blank page.
		doc.Add(document.NewTextPage(c.Layout))
	}
	return doc, nil
}

func rowLine(row *xlsx.Row) string {
	if row == nil {
		return ""
	}
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		if cell != nil {
			cells[i] = cell.String()
		}
	}
	return strings.Join(cells, " | ")
}
