package csvstore

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// sheet reads a header-first CSV table whose rows may carry a leading,
// unnamed index column (as written by pandas' DataFrame.to_csv).
type sheet struct {
	reader  *csv.Reader
	header  []string
	cols    map[string]int
	indexed bool
	pending []string
	empty   bool
}

func openSheet(r io.Reader) (*sheet, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	s := &sheet{reader: reader, cols: map[string]int{}}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		s.empty = true
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")

	if first := strings.TrimSpace(header[0]); first == "" || first == "Unnamed: 0" {
		header = header[1:]
		s.indexed = true
	} else {
		row, err := s.read()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if row != nil && len(row) == len(header)+1 {
			s.indexed = true
		}
		s.pending = row
	}

	s.header = header
	for i, col := range header {
		col = strings.TrimSpace(col)
		header[i] = col
		if _, dup := s.cols[col]; !dup {
			s.cols[col] = i
		}
	}
	return s, nil
}

// read returns the next raw row, skipping rows the parser rejects.
func (s *sheet) read() ([]string, error) {
	for {
		row, err := s.reader.Read()
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		return row, err
	}
}

// next returns the next data row with any index column stripped.
func (s *sheet) next() ([]string, error) {
	if s.empty {
		return nil, io.EOF
	}
	row := s.pending
	s.pending = nil
	if row == nil {
		var err error
		if row, err = s.read(); err != nil {
			return nil, err
		}
	}
	if s.indexed && len(row) > 0 {
		row = row[1:]
	}
	return row, nil
}

func (s *sheet) missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if _, ok := s.cols[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *sheet) field(row []string, col string) string {
	idx, ok := s.cols[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
