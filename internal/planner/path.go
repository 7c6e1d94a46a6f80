package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadPath reads a recorded path file: a JSON array of steps. Repeated ids
// are fine, a path may visit an element any number of times.
func LoadPath(path string) ([]Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read path file: %w", err)
	}
	var steps []Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("parse path file %s: %w", path, err)
	}
	return steps, nil
}

// SavePath writes the steps as a pretty-printed JSON array, atomically.
func SavePath(path string, steps []Step) error {
	if steps == nil {
		steps = []Step{}
	}
	b, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".path-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
