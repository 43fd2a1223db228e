// Package datafile writes acquisition results in the self-describing
// three-line-header text format shared by all analysis tooling:
//
//	<timestamp>|<markers>
//	<free-text sweep description>
//	<comma-separated column names>
//	<comma-separated values, one line per sample>
//
// The marker string has one character per column, "s" for a setpoint
// column and "g" for a measured column.
package datafile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Descriptor is the immutable metadata written as the file header.
type Descriptor struct {
	Path        string   // requested output path; collisions get _N suffixes
	Description string   // free-text sweep parameters
	Columns     []string // column names, independent label(s) first
	Markers     string   // one 's' or 'g' per column
}

// Writer appends sample rows under a Descriptor header. It flushes after
// every row so partial results survive a mid-run crash.
type Writer struct {
	path string
	f    *os.File
	buf  *bufio.Writer
	cols int
	rows int
}

// Create opens a collision-free variant of d.Path and writes the header.
// Any error here is surfaced before the first motion command.
func Create(d Descriptor, now time.Time) (*Writer, error) {
	if len(d.Markers) != len(d.Columns) {
		return nil, fmt.Errorf("marker string %q has %d markers for %d columns", d.Markers, len(d.Markers), len(d.Columns))
	}
	for _, m := range d.Markers {
		if m != 's' && m != 'g' {
			return nil, fmt.Errorf("marker string %q may contain only 's' and 'g'", d.Markers)
		}
	}

	path, err := allocatePath(d.Path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating data file: %w", err)
	}

	w := &Writer{path: path, f: f, buf: bufio.NewWriter(f), cols: len(d.Columns)}
	fmt.Fprintf(w.buf, "%s|%s\n", now.Format("2006-01-02 15:04:05"), d.Markers)
	fmt.Fprintln(w.buf, d.Description)
	fmt.Fprintln(w.buf, strings.Join(d.Columns, ", "))
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// Path returns the path actually opened after collision resolution.
func (w *Writer) Path() string { return w.path }

// Rows returns the number of sample rows appended so far.
func (w *Writer) Rows() int { return w.rows }

// Append writes one sample row and flushes it to disk.
func (w *Writer) Append(values []float64) error {
	if len(values) != w.cols {
		return fmt.Errorf("row has %d values for %d columns", len(values), w.cols)
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	fmt.Fprintln(w.buf, strings.Join(parts, ", "))
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	w.rows++
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// allocatePath returns path if unused, otherwise the first free variant
// with _N inserted before the extension. Existing files are never
// overwritten.
func allocatePath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

// SplitSuffix inserts a suffix before the extension of path. Used by
// two-file sweep modes to derive the forward/backward leg names.
func SplitSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
