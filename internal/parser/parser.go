// Package parser turns uploaded CSV and Excel files into ordered header -> value rows.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/ledgerflow/internal/domain"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// Row is one data row keyed by header.
type Row struct {
	// Number is the 1-based line (CSV) or sheet row (Excel) the row started on.
	Number int
	Values map[string]string
}

// RowReader yields rows one at a time. Next returns io.EOF after the last row and a
// *domain.ParseError when the file is malformed.
type RowReader interface {
	Headers() []string
	Next() (Row, error)
	Close() error
}

// Open starts reading r in the given format. A zip payload is read as Excel whatever the
// declared format, since xlsx uploads are often labelled as CSV.
func Open(r io.Reader, format domain.FileFormat) (RowReader, error) {
	buffered := bufio.NewReader(r)
	if magic, err := buffered.Peek(len(zipMagic)); err == nil && bytes.Equal(magic, zipMagic) {
		format = domain.FileFormatExcel
	}

	switch format {
	case domain.FileFormatExcel:
		return newExcelReader(buffered)
	case domain.FileFormatCSV, "":
		return newCSVReader(buffered)
	default:
		return nil, domain.NewParseError(fmt.Sprintf("unsupported file format %q", format), nil)
	}
}

// ResolveFormat picks the format declared by the template, falling back to the file extension.
func ResolveFormat(declared domain.FileFormat, fileName string) domain.FileFormat {
	if declared != "" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xls":
		return domain.FileFormatExcel
	default:
		return domain.FileFormatCSV
	}
}

// ReadChunk reads up to size rows. It returns io.EOF only when no row was read.
func ReadChunk(reader RowReader, size int) ([]Row, error) {
	if size <= 0 {
		size = 1
	}
	rows := make([]Row, 0, size)
	for len(rows) < size {
		row, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(rows) == 0 {
					return nil, io.EOF
				}
				return rows, nil
			}
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadAll drains reader.
func ReadAll(reader RowReader) ([]Row, error) {
	var rows []Row
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// sanitizeHeaders trims header cells, names blank ones and suffixes duplicates.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		base := strings.TrimSpace(strings.TrimPrefix(h, string(utf8BOM)))
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}

// looksLikeHeader rejects candidates whose cells are all numbers or dates.
func looksLikeHeader(cells []string) bool {
	for _, cell := range cells {
		value := strings.TrimSpace(cell)
		if value == "" {
			continue
		}
		if !isDataLike(value) {
			return true
		}
	}
	return false
}

func isDataLike(value string) bool {
	stripped := strings.NewReplacer(",", "", "/", "", "-", "", ".", "", ":", "", " ", "").Replace(value)
	if stripped == "" {
		return true
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// rowValues pads short records and drops cells beyond the header.
func rowValues(headers, cells []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(cells) {
			values[h] = strings.TrimSpace(cells[i])
		} else {
			values[h] = ""
		}
	}
	return values
}
