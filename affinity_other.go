//go:build !linux

package compute

// PinToCPU is not available on this platform.
func PinToCPU(cpu int) error {
	return ErrPinUnsupported
}
