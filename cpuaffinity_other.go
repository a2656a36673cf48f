//go:build !linux

package cann

// SetCPUAffinity is not supported on this platform
func SetCPUAffinity(cores []int) error {
	return newError(ErrCodeUnsupported, "SetCPUAffinity", "CPU affinity is only supported on linux")
}

// GetCPUAffinity is not supported on this platform
func GetCPUAffinity() ([]int, error) {
	return nil, newError(ErrCodeUnsupported, "GetCPUAffinity", "CPU affinity is only supported on linux")
}

func setThreadAffinity(cores []int) error {
	return SetCPUAffinity(cores)
}
