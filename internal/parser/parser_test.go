package parser

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCSV_BOMQuotesAndLineNumbers(t *testing.T) {
	input := "\ufeffDate,Description,Amount\r\n" +
		"2024-01-01,\"Rent, January\",100\r\n" +
		"\r\n" +
		"2024-01-02,\"Multi\nline memo\",200\r\n" +
		"2024-01-03,Short\r\n"

	reader, err := Open(strings.NewReader(input), domain.FileFormatCSV)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"Date", "Description", "Amount"}, reader.Headers())

	rows, err := ReadAll(reader)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "Rent, January", rows[0].Values["Description"])

	assert.Equal(t, 4, rows[1].Number)
	assert.Equal(t, "Multi\nline memo", rows[1].Values["Description"])

	assert.Equal(t, 6, rows[2].Number)
	assert.Equal(t, "", rows[2].Values["Amount"], "short rows are padded")
}

func TestCSV_DuplicateAndBlankHeaders(t *testing.T) {
	reader, err := Open(strings.NewReader("Amount,,Amount\n1,2,3\n"), domain.FileFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"Amount", "column_2", "Amount_2"}, reader.Headers())
	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "3", row.Values["Amount_2"])

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSV_SuffixedHeaderAlreadyTaken(t *testing.T) {
	reader, err := Open(strings.NewReader("Amount,Amount,Amount_2,column_4,\n1,2,3,4,5\n"), domain.FileFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"Amount", "Amount_2", "Amount_2_2", "column_4", "column_5"}, reader.Headers())
	row, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", row.Values["Amount"])
	assert.Equal(t, "2", row.Values["Amount_2"])
	assert.Equal(t, "3", row.Values["Amount_2_2"])
	assert.Equal(t, "5", row.Values["column_5"])
}

func TestCSV_ParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"only blanks":   "\n\n   \n",
		"numeric first": "2024-01-01,100.00,4000\n2024-01-02,50,4000\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(strings.NewReader(input), domain.FileFormatCSV)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrParse))

			var parseErr *domain.ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestCSV_MalformedBodyIsParseError(t *testing.T) {
	reader, err := Open(strings.NewReader("Date,Amount\n2024-01-01,\"unterminated\n"), domain.FileFormatCSV)
	require.NoError(t, err)

	_, err = ReadAll(reader)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExcel_ReadsFirstSheet(t *testing.T) {
	payload := buildWorkbook(t, [][]any{
		{"Date", "Amount", "Account"},
		{"2024-01-15", "5000", "4000"},
		{},
		{"2024-01-16", "-250.5", "6300"},
	})

	reader, err := Open(bytes.NewReader(payload), domain.FileFormatExcel)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"Date", "Amount", "Account"}, reader.Headers())
	rows, err := ReadAll(reader)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "5000", rows[0].Values["Amount"])
	assert.Equal(t, 4, rows[1].Number)
	assert.Equal(t, "6300", rows[1].Values["Account"])
}

func TestExcel_SniffedFromZipMagic(t *testing.T) {
	payload := buildWorkbook(t, [][]any{{"Date", "Amount"}, {"2024-01-15", "1"}})

	reader, err := Open(bytes.NewReader(payload), domain.FileFormatCSV)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, []string{"Date", "Amount"}, reader.Headers())
}

func TestExcel_GarbageIsParseError(t *testing.T) {
	_, err := Open(strings.NewReader("PK\x03\x04 definitely not a workbook"), domain.FileFormatExcel)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestFromRows(t *testing.T) {
	reader, err := FromRows([]map[string]string{
		{"Date": "2024-01-01", "Amount": "10"},
		{"Date": "2024-01-02", "Amount": "20", "Memo": "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Amount", "Date", "Memo"}, reader.Headers())
	rows, err := ReadAll(reader)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "", rows[0].Values["Memo"])
	assert.Equal(t, 3, rows[1].Number)

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestReadChunk(t *testing.T) {
	reader, err := FromRows([]map[string]string{{"a": "1"}, {"a": "2"}, {"a": "3"}})
	require.NoError(t, err)

	first, err := ReadChunk(reader, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := ReadChunk(reader, 2)
	require.NoError(t, err)
	assert.Len(t, second, 1)

	_, err = ReadChunk(reader, 2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, domain.FileFormatExcel, ResolveFormat("", "export.XLSX"))
	assert.Equal(t, domain.FileFormatCSV, ResolveFormat("", "export.csv"))
	assert.Equal(t, domain.FileFormatExcel, ResolveFormat(domain.FileFormatExcel, "export.csv"))
}
