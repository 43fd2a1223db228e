package datafile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SampleID identifies one sample/run: a date prefix plus a free name,
// joined as YYYY-MM-DD_<name>. Acquisition refuses to start without one.
type SampleID struct {
	Date time.Time
	Name string
}

// ParseSampleID validates the YYYY-MM-DD_<name> form.
func ParseSampleID(s string) (SampleID, error) {
	date, name, ok := strings.Cut(s, "_")
	if !ok || name == "" {
		return SampleID{}, fmt.Errorf("sample identifier %q must have the form YYYY-MM-DD_<name>", s)
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return SampleID{}, fmt.Errorf("sample identifier %q must have the form YYYY-MM-DD_<name>: %w", s, err)
	}
	return SampleID{Date: d, Name: name}, nil
}

func (s SampleID) String() string {
	return s.Date.Format("2006-01-02") + "_" + s.Name
}

// Dir returns the per-sample data directory under base, creating it if
// needed.
func (s SampleID) Dir(base string) (string, error) {
	dir := filepath.Join(base, s.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}
