package parsedoc

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads a headered CSV document into the generic tree model: a
// sequence node with one mapping per data row, keyed by the lower-cased,
// trimmed header names. Short rows are padded; blank rows are dropped.
func ParseCSV(r io.Reader) (*Node, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}

	rows := Sequence()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		row := Mapping()
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if value != "" {
				empty = false
			}
			row.Set(header, Scalar(value))
		}
		if !empty {
			rows.items = append(rows.items, row)
		}
	}
	return rows, nil
}
