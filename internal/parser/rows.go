package parser

import (
	"io"
	"sort"

	"github.com/rpattn/ledgerflow/internal/domain"
)

type sliceReader struct {
	headers []string
	rows    []map[string]string
	next    int
}

// FromRows wraps rows that were already parsed by the caller (JSON uploads). Row numbers
// start at 2 as if a header line preceded them.
func FromRows(rows []map[string]string) (RowReader, error) {
	if len(rows) == 0 {
		return nil, domain.NewParseError("file is empty", nil)
	}

	seen := make(map[string]bool)
	var headers []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			headers = append(headers, k)
		}
	}
	if len(headers) == 0 {
		return nil, domain.NewParseError("no recognizable header row", nil)
	}
	return &sliceReader{headers: headers, rows: rows}, nil
}

func (r *sliceReader) Headers() []string {
	return append([]string(nil), r.headers...)
}

func (r *sliceReader) Next() (Row, error) {
	if r.next >= len(r.rows) {
		return Row{}, io.EOF
	}
	source := r.rows[r.next]
	r.next++

	values := make(map[string]string, len(r.headers))
	for _, h := range r.headers {
		values[h] = source[h]
	}
	return Row{Number: r.next + 1, Values: values}, nil
}

func (r *sliceReader) Close() error {
	return nil
}
