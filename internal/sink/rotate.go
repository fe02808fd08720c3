package sink

import (
	"errors"
	"fmt"
	"os"
)

// rotate closes the live file, shifts path.1..path.N up by one (dropping
// what falls past maxFiles), moves the live file to path.1 and reopens path.
func (f *File) rotate() error {
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrRotateSink, err)
	}
	f.f = nil

	keep := f.maxFiles
	if keep <= 0 {
		keep = 1
	}
	if err := os.Remove(f.rotatedPath(keep)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrRotateSink, err)
	}
	for i := keep - 1; i >= 1; i-- {
		err := os.Rename(f.rotatedPath(i), f.rotatedPath(i+1))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrRotateSink, err)
		}
	}
	if err := os.Rename(f.path, f.rotatedPath(1)); err != nil {
		return fmt.Errorf("%w: %v", ErrRotateSink, err)
	}

	if err := f.open(); err != nil {
		return fmt.Errorf("%w: %v", ErrRotateSink, err)
	}
	return nil
}

func (f *File) rotatedPath(idx int) string {
	return fmt.Sprintf("%s.%d", f.path, idx)
}
