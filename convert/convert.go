// Package convert turns uploaded spreadsheets into CSV.
//
// Usage:
//
//	h := convert.NewHandler(maxBody)
//	h.RegisterHTTP(r)   // POST /convert/base64
//	h.RegisterMCP(srv)  // convert_spreadsheet
package convert

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable is returned when the bytes are not a workbook excelize can
// open. Legacy BIFF .xls files land here.
var ErrUnreadable = errors.New("convert: unreadable workbook")

// ToCSV renders the first sheet of an xlsx workbook as CSV. Rows are padded
// to the widest row so every record has the same number of fields. The
// result has no trailing newline; an empty sheet yields "".
func ToCSV(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: no sheets", ErrUnreadable)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("convert: read sheet %q: %w", sheets[0], err)
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if len(row) < width {
			row = append(row, make([]string, width-len(row))...)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("convert: write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("convert: write csv: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
