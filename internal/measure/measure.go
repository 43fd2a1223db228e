// Package measure holds the measurement dictionary and the aggregator that
// samples it. The dictionary's insertion order defines the column order of
// every output row and is fixed for the life of one acquisition.
package measure

import (
	"context"
	"fmt"

	"github.com/qtmlab/sweeprig/internal/instrument"
)

// Entry pairs a display label with the quantity it samples.
type Entry struct {
	Label string
	Ref   instrument.Ref
}

// Dictionary is an ordered set of entries. A slice, not a map: Go maps do
// not preserve insertion order and the file format has no column-name
// re-synchronization mechanism.
type Dictionary struct {
	entries []Entry
	byLabel map[string]int
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{byLabel: make(map[string]int)}
}

// Add appends an entry. Labels must be unique.
func (d *Dictionary) Add(label string, ref instrument.Ref) error {
	if _, exists := d.byLabel[label]; exists {
		return fmt.Errorf("measurement label %q declared twice", label)
	}
	d.byLabel[label] = len(d.entries)
	d.entries = append(d.entries, Entry{Label: label, Ref: ref})
	return nil
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Labels returns the column labels in dictionary order.
func (d *Dictionary) Labels() []string {
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Label
	}
	return out
}

// Entries returns the entries in dictionary order.
func (d *Dictionary) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Aggregate reads every entry in dictionary order and returns one value per
// entry. Readings are sequential: values may be taken at slightly different
// instants, but their order always matches the column order.
func Aggregate(ctx context.Context, d *Dictionary) ([]float64, error) {
	data := make([]float64, len(d.entries))
	for i, e := range d.entries {
		v, err := e.Ref.Device.Read(ctx, e.Ref.Quantity)
		if err != nil {
			return nil, fmt.Errorf("measuring %s (%s): %w", e.Label, e.Ref, err)
		}
		data[i] = v
	}
	return data, nil
}
