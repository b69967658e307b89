package export

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/fetcher"
	"github.com/sells-group/listings-cli/internal/model"
)

// Read loads a table previously produced by Write.
func Read(ctx context.Context, path string) ([]model.Listing, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXLSX:
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: SheetName})
		if err != nil {
			return nil, eris.Wrap(err, "export: read xlsx")
		}
		return fromRows(rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if format == FormatJSON {
		return ReadJSON(f)
	}
	return ReadCSV(ctx, f)
}

// ReadCSV parses a table with a header row.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.Listing, error) {
	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	all := [][]string{}
	for row := range rows {
		all = append(all, row)
	}
	for err := range errs {
		if err != nil {
			return nil, eris.Wrap(err, "export: read csv")
		}
	}

	select {
	case h := <-headerCh:
		return fromRows(append([][]string{h}, all...))
	default:
		return nil, eris.New("export: csv has no header")
	}
}

// ReadJSON parses an array written by WriteJSON.
func ReadJSON(r io.Reader) ([]model.Listing, error) {
	var out []model.Listing
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "export: decode json")
	}
	return out, nil
}

func fromRows(rows [][]string) ([]model.Listing, error) {
	if len(rows) == 0 {
		return nil, eris.New("export: table has no header")
	}
	h, err := newHeader(rows[0])
	if err != nil {
		return nil, err
	}

	out := make([]model.Listing, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		l, err := h.parse(row)
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d", i+2)
		}
		out = append(out, l)
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
