package export

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to dir/name with mode 0600, creating dir if needed,
// and returns the full path. name must be a plain file name.
func WriteFile(dir, name string, data []byte) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || filepath.IsAbs(name) {
		return "", fmt.Errorf("export: invalid file name %q", name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("export: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != name {
		return "", fmt.Errorf("export: %q escapes %s", name, dir)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, nil
}
