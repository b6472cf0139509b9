package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"

	"github.com/rpattn/ledgerflow/internal/domain"
)

type csvReader struct {
	reader  *csv.Reader
	headers []string
}

func newCSVReader(buffered *bufio.Reader) (RowReader, error) {
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		if _, err := buffered.Discard(len(utf8BOM)); err != nil {
			return nil, domain.NewParseError("failed to strip byte order mark", err)
		}
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = false

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, domain.NewParseError("file is empty", nil)
		}
		if err != nil {
			return nil, domain.NewParseError("malformed csv header", err)
		}
		if isBlank(record) {
			continue
		}
		if !looksLikeHeader(record) {
			return nil, domain.NewParseError("no recognizable header row", nil)
		}
		return &csvReader{reader: reader, headers: sanitizeHeaders(record)}, nil
	}
}

func (r *csvReader) Headers() []string {
	return append([]string(nil), r.headers...)
}

func (r *csvReader) Next() (Row, error) {
	for {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, domain.NewParseError("malformed csv", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := r.reader.FieldPos(0)
		return Row{Number: line, Values: rowValues(r.headers, record)}, nil
	}
}

func (r *csvReader) Close() error {
	return nil
}
