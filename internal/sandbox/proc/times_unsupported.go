package proc

type unsupportedTimes struct{}

func (unsupportedTimes) CPUTime(pid int) (float64, error) {
	return 0, ErrUnsupported
}
