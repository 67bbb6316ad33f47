// Package errs defines the failure taxonomy shared by every pipeline stage.
package errs

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoDataFound is returned when no decodable input exists or a stage
	// would produce an empty result.
	ErrNoDataFound = errors.New("no data found")

	// ErrNotLoaded is returned when segmentation runs without a volume.
	ErrNotLoaded = errors.New("volume not loaded")

	// ErrNotSegmented is returned when extraction runs without a mask.
	ErrNotSegmented = errors.New("volume not segmented")

	// ErrNotExtracted is returned when post-processing or export runs without a mesh.
	ErrNotExtracted = errors.New("surface not extracted")

	// ErrUnsupportedFormat is returned for unknown export targets.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDecodeFailure marks a single unreadable input file. Loaders log
	// and skip it instead of aborting.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrIOFailure wraps read and write errors on disk.
	ErrIOFailure = errors.New("io failure")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap attaches a sentinel to a cause so that both the sentinel and the
// cause message survive: "<msg>: <cause> (<sentinel>)".
func Wrap(sentinel, cause error, msg string) error {
	if cause == nil {
		return errors.Wrap(sentinel, msg)
	}
	return &wrapped{sentinel: sentinel, cause: errors.Wrap(cause, msg)}
}

type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	return w.cause.Error() + " (" + w.sentinel.Error() + ")"
}

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool { return target == w.sentinel }
