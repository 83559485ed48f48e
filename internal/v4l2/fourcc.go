package v4l2

import "fmt"

// A FourCC is a V4L2 pixel format code: four ASCII characters packed little
// endian into a 32-bit word.
type FourCC uint32

func NewFourCC(code string) FourCC {
	if len(code) != 4 {
		panic("v4l2: fourcc must be exactly 4 characters: " + code)
	}
	return FourCC(code[0]) | FourCC(code[1])<<8 | FourCC(code[2])<<16 | FourCC(code[3])<<24
}

func (f FourCC) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b)
}

const (
	V4L2_PIX_FMT_YUV420 FourCC = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24 // Planar Y, U, V 4:2:0
	V4L2_PIX_FMT_RGB24  FourCC = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24 // Packed 24-bit
	V4L2_PIX_FMT_RGB32  FourCC = 'R' | 'G'<<8 | 'B'<<16 | '4'<<24 // Packed 32-bit
	V4L2_PIX_FMT_YUYV   FourCC = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24 // Packed Y0 U Y1 V
	V4L2_PIX_FMT_UYVY   FourCC = 'U' | 'Y'<<8 | 'V'<<16 | 'Y'<<24 // Packed U Y0 V Y1
	V4L2_PIX_FMT_NV12   FourCC = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	V4L2_PIX_FMT_MJPEG  FourCC = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	V4L2_PIX_FMT_H264   FourCC = 'H' | '2'<<8 | '6'<<16 | '4'<<24
)
