package calendar

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ReadRows parses a CSV export into positional rows. Records the CSV parser
// cannot make sense of are counted in bad and otherwise ignored.
func ReadRows(r io.Reader) (rows []Row, bad int, err error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				bad++
				continue
			}
			return nil, bad, fmt.Errorf("read export: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{Line: line, Fields: record})
	}
	return rows, bad, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	return br
}
