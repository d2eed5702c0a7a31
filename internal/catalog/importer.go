package catalog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/xuri/excelize/v2"
)

// ImportSheet is the worksheet read by the importer.
const ImportSheet = "products"

// ImportColumns is the header row of the import layout.
var ImportColumns = []string{
	"name", "description", "amount", "article", "price",
	"discount", "visible", "categories", "image_url", "url",
}

// ImportRow is one parsed spreadsheet row.
type ImportRow struct {
	Line       int
	Input      ProductInput
	Categories []string
	ImageURL   string
}

// ParseImport reads the products sheet of an .xlsx/.xls upload. The header
// row is skipped, as are fully empty rows.
func ParseImport(filename string, r io.Reader) ([]ImportRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
	default:
		return nil, ErrUnsupportedFormat
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadLayout, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(ImportSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadLayout, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]ImportRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		line := i + 2
		if blank(cells) {
			continue
		}
		row, err := parseRow(line, pad(cells, len(ImportColumns)))
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func parseRow(line int, cells []string) (ImportRow, error) {
	in := ProductInput{
		Name:        strings.TrimSpace(cells[0]),
		Description: strings.TrimSpace(cells[1]),
		Article:     strings.TrimSpace(cells[3]),
		Price:       strings.TrimSpace(cells[4]),
		URL:         strings.TrimSpace(cells[9]),
	}
	if in.Name == "" || in.Article == "" {
		return ImportRow{}, fmt.Errorf("row %d: %w", line, ErrRequiredField)
	}

	amount, err := parseInt(cells[2])
	if err != nil {
		return ImportRow{}, fmt.Errorf("row %d: amount: %w", line, ErrBadLayout)
	}
	in.Amount = amount

	discount, err := parseInt(cells[5])
	if err != nil {
		return ImportRow{}, fmt.Errorf("row %d: discount: %w", line, ErrBadLayout)
	}
	in.Discount = discount

	visible := parseVisible(cells[6])
	in.Visible = &visible

	if _, err := in.Validate(); err != nil {
		return ImportRow{}, fmt.Errorf("row %d: %w", line, err)
	}

	var categories []string
	for _, name := range strings.Split(cells[7], ",") {
		if name = strings.TrimSpace(name); name != "" {
			categories = append(categories, name)
		}
	}

	return ImportRow{
		Line:       line,
		Input:      in,
		Categories: categories,
		ImageURL:   strings.TrimSpace(cells[8]),
	}, nil
}

// Import creates every row's product with its main photo. Categories are
// matched by exact name within the bot. Run it inside a transaction: the
// first failing row aborts the whole file.
func (s *Store) Import(ctx context.Context, q database.Querier, botID string, rows []ImportRow) (int, error) {
	categories, err := s.ListCategories(ctx, q, botID)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(categories))
	for _, c := range categories {
		byName[c.Name] = c.ID
	}

	for _, row := range rows {
		in := row.Input
		in.CategoryIDs = nil
		for _, name := range row.Categories {
			id, ok := byName[name]
			if !ok {
				return 0, fmt.Errorf("row %d: %q: %w", row.Line, name, ErrUnknownCategory)
			}
			in.CategoryIDs = append(in.CategoryIDs, id)
		}

		p, err := s.CreateProduct(ctx, q, botID, in)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", row.Line, err)
		}
		if _, err := s.AddPhoto(ctx, q, p.ID, row.ImageURL, true); err != nil {
			return 0, fmt.Errorf("row %d: %w", row.Line, err)
		}
	}
	return len(rows), nil
}

// WriteImportTemplate writes an empty .xlsx file with the import header.
func WriteImportTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ImportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	header := make([]any, len(ImportColumns))
	for i, c := range ImportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(ImportSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing template: %w", err)
	}
	return nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Spreadsheets often store whole numbers as "3.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func parseVisible(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "no", "ні", "hidden":
		return false
	}
	return true
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func pad(cells []string, n int) []string {
	for len(cells) < n {
		cells = append(cells, "")
	}
	return cells
}
