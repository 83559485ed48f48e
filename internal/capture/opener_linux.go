//go:build linux
// +build linux

package capture

import "github.com/lanikai/alohacap/internal/v4l2"

func openV4L2(path string) (Device, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
