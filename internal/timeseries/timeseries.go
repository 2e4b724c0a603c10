package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Layout is the timestamp format used by both the upstream sensor API and the
// destination store: UTC, millisecond precision, literal trailing Z.
const Layout = "2006-01-02T15:04:05.000Z"

// ErrEmptyBatch is returned by operations that need at least one record.
var ErrEmptyBatch = errors.New("batch contains no records")

// ParseTime parses a timestamp in the wire layout and returns it in UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatTime renders a time in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Fields holds the named numeric values recorded at a single timestamp.
type Fields map[string]float64

// Schema maps short field keys to the display names and units the destination
// store should use for them.
type Schema struct {
	Names map[string]string
	Units map[string]string
}

// Batch is an insertion-ordered mapping of timestamp -> Fields. It is the
// unit of transfer to the destination store. Timestamps within a batch are
// unique; setting a value for an existing timestamp merges into its fields
// without changing its position.
type Batch struct {
	keys       []string
	rows       map[string]Fields
	fieldOrder []string
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{rows: make(map[string]Fields)}
}

// SetValue records a single field value at a timestamp. Timestamp order and
// field order are both first-seen insertion order.
func (b *Batch) SetValue(ts, field string, v float64) {
	row, ok := b.rows[ts]
	if !ok {
		row = make(Fields)
		b.rows[ts] = row
		b.keys = append(b.keys, ts)
	}
	if _, ok := row[field]; !ok {
		b.noteField(field)
	}
	row[field] = v
}

func (b *Batch) noteField(field string) {
	for _, f := range b.fieldOrder {
		if f == field {
			return
		}
	}
	b.fieldOrder = append(b.fieldOrder, field)
}

// Get returns the fields recorded at a timestamp.
func (b *Batch) Get(ts string) (Fields, bool) {
	row, ok := b.rows[ts]
	return row, ok
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.keys)
}

// Timestamps returns the batch's timestamps in insertion order.
func (b *Batch) Timestamps() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// FieldOrder returns the field keys in first-seen order.
func (b *Batch) FieldOrder() []string {
	out := make([]string, len(b.fieldOrder))
	copy(out, b.fieldOrder)
	return out
}

// Latest returns the maximum timestamp present in the batch.
func (b *Batch) Latest() (time.Time, error) {
	if len(b.keys) == 0 {
		return time.Time{}, ErrEmptyBatch
	}
	var max time.Time
	for _, ts := range b.keys {
		t, err := ParseTime(ts)
		if err != nil {
			return time.Time{}, err
		}
		if t.After(max) {
			max = t
		}
	}
	return max, nil
}

// Slice returns a sub-batch holding the given timestamps, preserving their
// field values. Timestamps absent from the batch are skipped.
func (b *Batch) Slice(timestamps []string) *Batch {
	out := NewBatch()
	for _, ts := range timestamps {
		row, ok := b.rows[ts]
		if !ok {
			continue
		}
		for _, field := range b.fieldOrder {
			if v, ok := row[field]; ok {
				out.SetValue(ts, field, v)
			}
		}
	}
	return out
}

// SortKeys sorts a timestamp key set chronologically. The wire layout is
// fixed-width, so lexicographic order is chronological order.
func SortKeys(keys []string) {
	sort.Strings(keys)
}
