//go:build !linux && !windows

package proc

// NewTimes has no native implementation on this platform.
func NewTimes() Times {
	return unsupportedTimes{}
}
