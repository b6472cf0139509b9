package parser

import (
	"errors"
	"io"

	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/xuri/excelize/v2"
)

// excelReader walks the first sheet with excelize's row iterator. The workbook itself
// is opened from memory since xlsx is a zip archive.
type excelReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
	line    int
}

func newExcelReader(r io.Reader) (RowReader, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewParseError("failed to open workbook", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		_ = file.Close()
		return nil, domain.NewParseError("workbook has no sheets", nil)
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		_ = file.Close()
		return nil, domain.NewParseError("failed to read sheet", err)
	}

	reader := &excelReader{file: file, rows: rows}
	for {
		cells, err := reader.nextCells()
		if errors.Is(err, io.EOF) {
			_ = reader.Close()
			return nil, domain.NewParseError("file is empty", nil)
		}
		if err != nil {
			_ = reader.Close()
			return nil, err
		}
		if isBlank(cells) {
			continue
		}
		if !looksLikeHeader(cells) {
			_ = reader.Close()
			return nil, domain.NewParseError("no recognizable header row", nil)
		}
		reader.headers = sanitizeHeaders(cells)
		return reader, nil
	}
}

func (r *excelReader) Headers() []string {
	return append([]string(nil), r.headers...)
}

func (r *excelReader) Next() (Row, error) {
	for {
		cells, err := r.nextCells()
		if err != nil {
			return Row{}, err
		}
		if isBlank(cells) {
			continue
		}
		return Row{Number: r.line, Values: rowValues(r.headers, cells)}, nil
	}
}

func (r *excelReader) nextCells() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, domain.NewParseError("malformed sheet", err)
		}
		return nil, io.EOF
	}
	r.line++
	cells, err := r.rows.Columns()
	if err != nil {
		return nil, domain.NewParseError("malformed sheet row", err)
	}
	return cells, nil
}

func (r *excelReader) Close() error {
	var rowsErr error
	if r.rows != nil {
		rowsErr = r.rows.Close()
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
