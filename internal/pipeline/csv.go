package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV splits a CSV file into records of trimmed fields, one record per
// line. Record 0 is the header and record i is data row i.
//
// Quoted fields may contain commas and doubled quotes ("") for a literal
// quote, but never a line break. Rows may have differing field counts.
// Empty lines are dropped. A line that cannot be read (an unterminated
// quoted field, say) leaves a nil record in its slot and a RowIssue, so
// the rows after it are still read.
func ReadCSV(data []byte) ([][]string, []RowIssue) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var (
		records [][]string
		issues  []RowIssue
	)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := readLine(line)
		if err != nil {
			// An unreadable header is left for the parser to reject.
			if len(records) > 0 {
				issues = append(issues, RowIssue{
					Row:    len(records),
					Reason: fmt.Sprintf("unreadable line: %v", err),
				})
			}
			records = append(records, nil)
			continue
		}
		records = append(records, rec)
	}
	return records, issues
}

// readLine reads one line strictly and retries with lazy quoting only for
// a bare quote inside an unquoted field, as in `12" PIZZA`.
func readLine(line string) ([]string, error) {
	rec, err := readRecord(line, false)
	if errors.Is(err, csv.ErrBareQuote) {
		rec, err = readRecord(line, true)
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.Err
		}
		return nil, err
	}
	return rec, nil
}

func readRecord(line string, lazy bool) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = lazy
	r.TrimLeadingSpace = true

	rec, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	return rec, nil
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
