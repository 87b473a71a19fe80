package processor

import (
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

type docxBody struct {
	paragraphs []string
	tables     [][][]string
}

// readDocx collects the top-level paragraphs and tables of a Word file.
// Nested tables fold into the text of their cell.
func readDocx(path string) (docxBody, error) {
	var body docxBody

	f, err := os.Open(path)
	if err != nil {
		return body, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return body, err
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return body, err
	}

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if text := it.String(); strings.TrimSpace(text) != "" {
				body.paragraphs = append(body.paragraphs, text)
			}
		case *docx.Table:
			if rows := tableRows(it); len(rows) > 0 {
				body.tables = append(body.tables, rows)
			}
		}
	}
	return body, nil
}

func tableRows(t *docx.Table) [][]string {
	rows := make([][]string, 0, len(t.TableRows))
	for _, tr := range t.TableRows {
		row := make([]string, 0, len(tr.TableCells))
		for _, tc := range tr.TableCells {
			row = append(row, cellText(tc))
		}
		rows = append(rows, row)
	}
	return rows
}

func cellText(tc *docx.WTableCell) string {
	var lines []string
	for _, p := range tc.Paragraphs {
		if text := p.String(); text != "" {
			lines = append(lines, text)
		}
	}
	for _, nested := range tc.Tables {
		for _, row := range tableRows(nested) {
			lines = append(lines, strings.Join(row, " | "))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
