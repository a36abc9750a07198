//go:build !linux && !windows

package proc

// NewSource reports ErrUnsupported where no process table reader exists.
func NewSource() (Source, error) {
	return nil, ErrUnsupported
}
