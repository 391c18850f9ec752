package datapackage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported data formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Rows returns all records of r, keyed by the original field names. Inline data takes precedence
// over paths. Values are returned as read: strings for CSV, decoded values for JSON. Values listed
// in the schema's missingValues (default: the empty string) become nil.
func (p *Package) Rows(ctx context.Context, r *Resource) ([]Row, error) {
	missing := r.Schema.MissingValues
	if missing == nil {
		missing = []string{""}
	}

	if r.Data != nil {
		rows, err := recordsToRows(r.Data)
		if err != nil {
			return nil, fmt.Errorf("resource %q inline data: %w", r.Name, err)
		}
		return markMissing(rows, missing), nil
	}

	if len(r.Path) == 0 {
		return nil, fmt.Errorf("%w: resource %q has neither data nor path", ErrInvalidDescriptor, r.Name)
	}

	var rows []Row
	for _, loc := range r.Path {
		part, err := p.readPath(ctx, r, loc)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", r.Name, err)
		}
		rows = append(rows, part...)
	}
	return markMissing(rows, missing), nil
}

func (p *Package) readPath(ctx context.Context, r *Resource, loc string) ([]Row, error) {
	rc, err := p.fetcher.open(ctx, p.resolve(loc))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader, err := decodeReader(rc, r.Encoding)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(r.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(path.Ext(loc)), ".")
	}

	switch format {
	case FormatJSON:
		var records []any
		dec := json.NewDecoder(reader)
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", loc, err)
		}
		return recordsToRows(records)
	case FormatCSV, "", "txt", "tsv":
		delimiter := ','
		if format == "tsv" {
			delimiter = '\t'
		}
		return readCSV(reader, delimiter)
	}
	return nil, fmt.Errorf("unsupported format %q for %s", format, loc)
}

// decodeReader converts the stream to UTF-8 and strips a byte order mark.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return transform.NewReader(r, unicode.BOMOverride(transform.Nop)), nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

func readCSV(r io.Reader, delimiter rune) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = nil
			}
		}
		rows = append(rows, row)
	}
}

// recordsToRows accepts a list of objects, or a list of arrays whose first entry is the header.
func recordsToRows(records []any) ([]Row, error) {
	if len(records) == 0 {
		return nil, nil
	}

	if header, ok := records[0].([]any); ok {
		names := make([]string, len(header))
		for i, h := range header {
			names[i] = fmt.Sprint(h)
		}
		rows := make([]Row, 0, len(records)-1)
		for i, rec := range records[1:] {
			values, ok := rec.([]any)
			if !ok {
				return nil, fmt.Errorf("row %d: expected an array, got %T", i+1, rec)
			}
			row := make(Row, len(names))
			for j, name := range names {
				if j < len(values) {
					row[name] = values[j]
				} else {
					row[name] = nil
				}
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d: expected an object, got %T", i, rec)
		}
		row := make(Row, len(obj))
		for k, v := range obj {
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func markMissing(rows []Row, missing []string) []Row {
	if len(missing) == 0 {
		return rows
	}
	set := make(map[string]bool, len(missing))
	for _, m := range missing {
		set[m] = true
	}
	for _, row := range rows {
		for k, v := range row {
			if s, ok := v.(string); ok && set[s] {
				row[k] = nil
			}
		}
	}
	return rows
}
