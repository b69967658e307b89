package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

// Supported formats, selected by file extension.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// SheetName is the worksheet written to XLSX output.
const SheetName = "listings"

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatCSV, FormatXLSX, FormatJSON:
		return ext, nil
	default:
		return "", eris.Errorf("export: unsupported output format %q", filepath.Ext(path))
	}
}

// Write stores listings at path in the format implied by its extension. The
// file is written to a temporary sibling and renamed into place, so a failed
// run never leaves a partial table behind.
func Write(path string, listings []model.Listing) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	switch format {
	case FormatCSV:
		err = WriteCSV(tmp, listings)
	case FormatXLSX:
		err = WriteXLSX(tmp, listings)
	case FormatJSON:
		err = WriteJSON(tmp, listings)
	}
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "export: chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "export: rename into place")
	}

	zap.L().Info("export: table written",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("rows", len(listings)),
	)
	return nil
}

// WriteCSV writes the header and one row per listing.
func WriteCSV(w io.Writer, listings []model.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range listings {
		if err := cw.Write(Row(l)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single "listings" sheet.
func WriteXLSX(w io.Writer, listings []model.Listing) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow := func(cells []string) {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	addRow(Columns)
	for _, l := range listings {
		addRow(Row(l))
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// WriteJSON writes an indented array of listings.
func WriteJSON(w io.Writer, listings []model.Listing) error {
	if listings == nil {
		listings = []model.Listing{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(listings); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}
