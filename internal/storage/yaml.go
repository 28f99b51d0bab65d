package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ReadYAML decodes the YAML file at path into dest. A missing file leaves
// dest untouched and reports found=false without an error.
func ReadYAML(path string, dest any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read file: %w", err)
	}

	if err := yaml.Unmarshal(data, dest); err != nil {
		return true, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	return true, nil
}

func WriteYAML(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return WriteFileAtomic(path, out, 0644)
}
