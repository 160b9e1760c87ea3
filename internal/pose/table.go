package pose

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"pose-projector/pkg/tensor"
)

// Table maps image basenames to keypoint strings, as read from a pose CSV
// with at least "name" and "keypoints" columns.
type Table struct {
	rows map[string]string
}

// LoadTable reads a pose table from a CSV file.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose table: %w", err)
	}
	defer f.Close()
	return ReadTable(f)
}

// ReadTable parses a pose table. The first row is the header. When a name
// appears more than once the first row wins.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read pose table header: %w", err)
	}
	nameCol, kpCol := -1, -1
	for i, h := range header {
		switch h {
		case "name":
			nameCol = i
		case "keypoints":
			kpCol = i
		}
	}
	if nameCol < 0 || kpCol < 0 {
		return nil, fmt.Errorf("pose table needs name and keypoints columns, got %v", header)
	}

	t := &Table{rows: make(map[string]string)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pose table: %w", err)
		}
		if nameCol >= len(rec) || kpCol >= len(rec) {
			continue
		}
		if _, dup := t.rows[rec[nameCol]]; !dup {
			t.rows[rec[nameCol]] = rec[kpCol]
		}
	}
	return t, nil
}

// Len returns the number of distinct names.
func (t *Table) Len() int {
	return len(t.rows)
}

// Lookup returns the keypoint string stored for the basename of path.
func (t *Table) Lookup(path string) (string, bool) {
	kp, ok := t.rows[filepath.Base(path)]
	return kp, ok
}

// Heatmap returns the encoded pose for the image at path. A missing row
// yields the all-zero heatmap.
func (t *Table) Heatmap(path string, resolution int) (*tensor.Tensor, error) {
	kp, ok := t.Lookup(path)
	if !ok {
		log.Printf("No pose entry for %s, using empty pose", filepath.Base(path))
		return Zero(), nil
	}
	return FromKeypointString(kp, resolution)
}
