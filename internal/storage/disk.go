package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// File is the logical identity of a stored image: a name stem plus an
// extension without the dot.
type File struct {
	Name      string
	Extension string
}

func NewFile(name, extension string) File {
	return File{Name: name, Extension: extension}
}

func (f File) FileName() string {
	return fmt.Sprintf("%s.%s", f.Name, f.Extension)
}

// Disk persists files flat under a base directory: base/name.extension.
type Disk struct {
	base string
}

// NewDisk creates the base directory if needed. An already existing path is
// not an error.
func NewDisk(base string) (*Disk, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path %q: %w", base, err)
	}

	zap.S().Infow("disk storage initialized",
		"path", base,
	)

	return &Disk{base: base}, nil
}

func (d *Disk) Path(file File) string {
	return filepath.Join(d.base, file.FileName())
}

// Add writes data under the file's computed path, overwriting any previous
// content. Returns the full path written.
func (d *Disk) Add(file File, data []byte) (string, error) {
	path := d.Path(file)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}

	zap.S().Debugw("stored file",
		"path", path,
		"bytes", len(data),
	)

	return path, nil
}

func (d *Disk) Read(file File) ([]byte, error) {
	return os.ReadFile(d.Path(file))
}

// Delete removes the file. Deleting a file that does not exist is an error,
// not a no-op.
func (d *Disk) Delete(file File) error {
	return os.Remove(d.Path(file))
}
