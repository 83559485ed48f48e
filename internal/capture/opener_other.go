//go:build !linux
// +build !linux

package capture

func openV4L2(path string) (Device, error) {
	return nil, errNotSupported
}
