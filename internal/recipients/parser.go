// Package recipients extracts candidate recipient identifiers from uploaded
// tabular (CSV) files.
package recipients

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"wablast/internal/domain"
)

// Reader yields recipients lazily, in file order. The first row names the
// columns and is not a data row; every later row contributes the value of
// its first column, trimmed, and only when non-empty. Rows the CSV layer
// cannot parse are skipped: inconsistent exports are the norm, not the
// exception.
type Reader struct {
	cr         *csv.Reader
	headerRead bool
}

func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &Reader{cr: cr}
}

// Next returns the next recipient, or io.EOF when the file is exhausted.
func (r *Reader) Next() (string, error) {
	for {
		row, err := r.cr.Read()
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue // malformed row, skip
			}
			return "", err
		}
		if !r.headerRead {
			r.headerRead = true
			continue
		}
		if len(row) == 0 {
			continue
		}
		rcpt := strings.TrimSpace(row[0])
		if rcpt == "" {
			continue
		}
		return rcpt, nil
	}
}

// ReadAll materializes the whole sequence. It returns domain.ErrParse when
// the file is unreadable or yields no recipients at all.
func ReadAll(src io.Reader) ([]string, error) {
	r := NewReader(src)
	var out []string
	for {
		rcpt, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.ErrParse
		}
		out = append(out, rcpt)
	}
	if len(out) == 0 {
		return nil, domain.ErrParse
	}
	return out, nil
}
