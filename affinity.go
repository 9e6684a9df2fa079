//go:build linux

package compute

import (
	"golang.org/x/sys/unix"
)

// PinToCPU restricts the calling OS thread to a single CPU. The caller must
// have locked its goroutine to the thread.
func PinToCPU(cpu int) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
