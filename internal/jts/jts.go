// Package jts converts time-series batches into the destination store's JSON
// Time Series wire format.
package jts

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

// SchemaError reports a batch field with no entry in the supplied name or
// unit mapping.
type SchemaError struct {
	Field     string
	Mapping   string // "names" or "units"
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("field %q not found in %s mapping, available keys: %v", e.Field, e.Mapping, e.Available)
}

// Column describes one series in the JTS header.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Units    string `json:"units"`
}

// Header carries the column schema, keyed by zero-based column index.
type Header struct {
	Columns map[string]Column `json:"columns"`
}

// Value wraps a single numeric sample.
type Value struct {
	V float64 `json:"v"`
}

// Row is one timestamped record, with values keyed by column index.
type Row struct {
	TS     string           `json:"ts"`
	Fields map[string]Value `json:"f"`
}

// Document is a complete JSON Time Series payload.
type Document struct {
	DocType string `json:"docType"`
	Version string `json:"version"`
	Header  Header `json:"header"`
	Data    []Row  `json:"data"`
}

// FromBatch builds a JTS document from a batch. Column order is the first
// record's field order; every record is read by field name, so later records
// may carry their fields in any order but must supply the same field set.
// Record order follows the batch's insertion order and is not re-sorted.
func FromBatch(b *timeseries.Batch, schema timeseries.Schema) (*Document, error) {
	if b.Len() == 0 {
		return nil, timeseries.ErrEmptyBatch
	}

	fields := b.FieldOrder()
	columns := make(map[string]Column, len(fields))
	for i, field := range fields {
		name, ok := schema.Names[field]
		if !ok {
			return nil, &SchemaError{Field: field, Mapping: "names", Available: mappingKeys(schema.Names)}
		}
		unit, ok := schema.Units[field]
		if !ok {
			return nil, &SchemaError{Field: field, Mapping: "units", Available: mappingKeys(schema.Units)}
		}
		columns[strconv.Itoa(i)] = Column{Name: name, DataType: "NUMBER", Units: unit}
	}

	data := make([]Row, 0, b.Len())
	for _, ts := range b.Timestamps() {
		record, _ := b.Get(ts)
		row := Row{TS: ts, Fields: make(map[string]Value, len(fields))}
		for i, field := range fields {
			v, ok := record[field]
			if !ok {
				return nil, fmt.Errorf("record at %s is missing field %q", ts, field)
			}
			row.Fields[strconv.Itoa(i)] = Value{V: v}
		}
		data = append(data, row)
	}

	return &Document{
		DocType: "jts",
		Version: "1.0",
		Header:  Header{Columns: columns},
		Data:    data,
	}, nil
}

func mappingKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
