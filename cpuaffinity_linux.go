//go:build linux

package cann

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetCPUAffinity sets the CPU affinity of the calling thread to the given
// cores, eg: []int{4,5,6,7}.  The caller should have locked the goroutine to
// its OS thread.
func SetCPUAffinity(cores []int) error {
	return setThreadAffinity(cores)
}

// GetCPUAffinity returns the CPU cores the calling thread may run on
func GetCPUAffinity() ([]int, error) {

	var set unix.CPUSet

	err := unix.SchedGetaffinity(0, &set)

	if err != nil {
		return nil, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	var cores []int

	for i := 0; i < MaxCPUCores; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}

	return cores, nil
}

// setThreadAffinity pins the calling thread to the cores
func setThreadAffinity(cores []int) error {

	var set unix.CPUSet
	set.Zero()

	for _, core := range cores {
		if err := checkCore(core); err != nil {
			return fmt.Errorf("failed to set CPU affinity: %w", err)
		}

		set.Set(core)
	}

	err := unix.SchedSetaffinity(0, &set)

	if err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}
