package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a download is cancelled cooperatively
var ErrCancelled = errors.New("download cancelled")

// FileExistsError signals that the requested content is already on disk.
// It carries the existing path so callers can surface it instead of
// re-downloading.
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s", e.Path)
}

// IsFileExists checks whether err is a FileExistsError
func IsFileExists(err error) (*FileExistsError, bool) {
	var fe *FileExistsError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
