package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/internal/table"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var extractors = map[string]func(p *Processor, ctx context.Context, path string, doc *models.Document) error{
	"pdf":      (*Processor).extractPDF,
	"docx":     (*Processor).extractWord,
	"xlsx":     (*Processor).extractExcel,
	"xlsm":     (*Processor).extractExcel,
	"csv":      (*Processor).extractCSV,
	"txt":      (*Processor).extractText,
	"md":       (*Processor).extractText,
	"markdown": (*Processor).extractText,
	"html":     (*Processor).extractHTML,
	"htm":      (*Processor).extractHTML,
}

// Extension returns the lower-cased extension of name without the leading dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Supported reports whether the processor can extract text from files with this extension.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

func (p *Processor) allowed(ext string) bool {
	if len(p.config.AllowedExtensions) == 0 {
		return true
	}
	for _, a := range p.config.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// Extract reads the file at path and returns its text with per-type metadata.
func (p *Processor) Extract(ctx context.Context, path string) (models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("file not found: %s: %w", path, err)
	}

	ext := Extension(path)
	extract, ok := extractors[ext]
	if !ok || !p.allowed(ext) {
		if ext == "doc" || ext == "xls" {
			return models.Document{}, fmt.Errorf("%w: .%s (legacy binary format, save as .%sx)", ErrUnsupportedType, ext, ext)
		}
		return models.Document{}, fmt.Errorf("%w: .%s", ErrUnsupportedType, ext)
	}

	doc := models.Document{
		Filename: filepath.Base(path),
		Title:    filepath.Base(path),
		Size:     info.Size(),
		Metadata: map[string]interface{}{},
	}
	if err := extract(p, ctx, path, &doc); err != nil {
		return models.Document{}, fmt.Errorf("extract %s: %w", doc.Filename, err)
	}

	p.logger.Debug("extracted document",
		zap.String("filename", doc.Filename),
		zap.String("type", string(doc.Type)),
		zap.Int("characters", utf8.RuneCountInString(doc.Content)))
	return doc, nil
}

func (p *Processor) extractPDF(ctx context.Context, path string, doc *models.Document) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pages, err := documentloaders.NewPDF(f, doc.Size).Load(ctx)
	if err != nil {
		return err
	}

	var parts []string
	for i, page := range pages {
		text := strings.TrimSpace(page.PageContent)
		if text == "" {
			continue
		}
		number := i + 1
		if n, ok := page.Metadata["page"].(int); ok {
			number = n
		}
		parts = append(parts, fmt.Sprintf("Page %d:\n%s", number, text))
	}

	doc.Type = models.TypePDF
	doc.Content = strings.Join(parts, "\n\n")
	doc.Metadata[models.MetaPages] = len(pages)
	return nil
}

func (p *Processor) extractWord(_ context.Context, path string, doc *models.Document) error {
	body, err := readDocx(path)
	if err != nil {
		return err
	}

	content := strings.Join(body.paragraphs, "\n\n")
	if len(body.tables) > 0 {
		rendered := make([]string, 0, len(body.tables))
		for _, t := range body.tables {
			rows := make([]string, 0, len(t))
			for _, row := range t {
				rows = append(rows, strings.Join(row, " | "))
			}
			rendered = append(rendered, strings.Join(rows, "\n"))
		}
		content += "\n\nTables:\n" + strings.Join(rendered, "\n\n")
	}

	doc.Type = models.TypeWord
	doc.Content = content
	doc.Metadata["paragraphs"] = len(body.paragraphs)
	doc.Metadata["tables"] = len(body.tables)
	return nil
}

type sheetSummary struct {
	Name           string `json:"name"`
	Rows           int    `json:"rows"`
	Columns        int    `json:"columns"`
	NumericColumns int    `json:"numeric_columns"`
}

type workbookSummary struct {
	Sheets       []sheetSummary `json:"sheets"`
	TotalRows    int            `json:"total_rows"`
	TotalColumns int            `json:"total_columns"`
}

func (p *Processor) extractExcel(_ context.Context, path string, doc *models.Document) error {
	tables, err := table.ReadExcel(path)
	if err != nil {
		return err
	}

	summary := workbookSummary{Sheets: []sheetSummary{}}
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		var b strings.Builder
		fmt.Fprintf(&b, "Sheet: %s\n", t.Name)
		numeric := p.describeTable(&b, t, "Sample Data:")
		parts = append(parts, b.String())

		rows, cols := t.Shape()
		summary.Sheets = append(summary.Sheets, sheetSummary{Name: t.Name, Rows: rows, Columns: cols, NumericColumns: numeric})
		summary.TotalRows += rows
		summary.TotalColumns += cols
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	doc.Type = models.TypeExcel
	doc.Content = strings.Join(parts, "\n\n"+strings.Repeat("=", 50)+"\n\n")
	doc.Metadata["summary"] = summary
	doc.Metadata[models.MetaExcelSummary] = string(encoded)
	return nil
}

func (p *Processor) extractCSV(_ context.Context, path string, doc *models.Document) error {
	t, err := table.ReadCSV(path)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CSV File: %s\n", doc.Filename)
	numeric := p.describeTable(&b, t, fmt.Sprintf("Sample Data (first %d rows):", p.config.SampleRows))

	rows, cols := t.Shape()
	doc.Type = models.TypeCSV
	doc.Content = b.String()
	doc.Metadata["rows"] = rows
	doc.Metadata["columns"] = cols
	doc.Metadata["numeric_columns"] = numeric
	return nil
}

// describeTable writes columns, shape, sample rows and numeric statistics; it returns
// the number of numeric columns.
func (p *Processor) describeTable(b *strings.Builder, t *table.Table, sampleLabel string) int {
	rows, cols := t.Shape()
	fmt.Fprintf(b, "Columns: %s\n", strings.Join(t.Columns, ", "))
	fmt.Fprintf(b, "Shape: %d rows × %d columns\n\n", rows, cols)
	b.WriteString(sampleLabel + "\n")
	t.WriteSample(b, p.config.SampleRows)

	numeric := t.NumericColumns()
	if len(numeric) > 0 {
		b.WriteString("\nNumeric Summary:\n")
		t.WriteSummary(b, numeric)
	}
	return len(numeric)
}

func (p *Processor) extractText(_ context.Context, path string, doc *models.Document) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	content := string(data)
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return err
		}
		content = string(decoded)
		doc.Metadata["encoding"] = "latin-1"
	}

	doc.Type = models.TypeText
	doc.Content = content
	doc.Metadata["lines"] = countLines(content)
	doc.Metadata["characters"] = utf8.RuneCountInString(content)
	return nil
}

func (p *Processor) extractHTML(ctx context.Context, path string, doc *models.Document) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	docs, err := documentloaders.NewHTML(f).Load(ctx)
	if err != nil {
		return err
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.Join(strings.Fields(d.PageContent), " "); text != "" {
			parts = append(parts, text)
		}
	}

	doc.Type = models.TypeHTML
	doc.Content = strings.Join(parts, "\n\n")
	return nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
