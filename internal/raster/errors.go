package raster

import (
	"errors"
	"fmt"
)

// Common raster errors
var (
	// ErrSourceUnreadable is returned when a source file cannot be opened or decoded.
	ErrSourceUnreadable = errors.New("source file unreadable")

	// ErrUnsupportedFormat is returned for file extensions without a codec.
	ErrUnsupportedFormat = errors.New("unsupported raster format")

	// ErrRasterizeFailed is returned when PDF rasterization fails or yields no pages.
	ErrRasterizeFailed = errors.New("PDF rasterization failed")

	// ErrWriteFailed is returned when an output raster cannot be written.
	ErrWriteFailed = errors.New("raster write failed")
)

// RasterError wraps errors with the operation and the file involved.
type RasterError struct {
	Op   string
	Path string
	Err  error
}

func (e *RasterError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("raster: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("raster: %s: %v", e.Op, e.Err)
}

func (e *RasterError) Unwrap() error {
	return e.Err
}

func (e *RasterError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func wrap(op, path string, sentinel error, err error) error {
	if err == nil {
		return &RasterError{Op: op, Path: path, Err: sentinel}
	}
	return &RasterError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", sentinel, err)}
}

// WrapRasterError is wrap for Rasterizer implementations in other packages.
func WrapRasterError(op, path string, sentinel error, err error) error {
	return wrap(op, path, sentinel, err)
}
