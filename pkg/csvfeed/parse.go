package csvfeed

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row maps header names to the cell values of one data line.
type Row map[string]string

// Parse reads a CSV document whose first line holds the field names and
// returns one Row per data line. Blank lines and rows whose cells are all
// empty are skipped. Short rows simply lack the missing keys; cells past the
// last header column are ignored.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	names := CleanHeader(header)

	var out []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if blank(rec) {
			continue
		}

		row := make(Row, len(names))
		for i, cell := range rec {
			if i >= len(names) {
				break
			}
			if names[i] == "" {
				continue
			}
			if _, dup := row[names[i]]; dup {
				continue // first column with a given name wins
			}
			row[names[i]] = cell
		}
		out = append(out, row)
	}
	return out, nil
}

// CleanHeader strips a UTF-8 byte order mark and surrounding whitespace
// from header names.
func CleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
