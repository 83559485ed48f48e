// Copyright 2019 Lanikai Labs. All rights reserved.

package color

import (
	"image"
	imgcolor "image/color"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/v4l2"
)

var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// Convert converts a raw captured frame into a 4:2:0 YCbCr image. stride is
// the length of a source row in bytes; zero means tightly packed.
func Convert(src []byte, format v4l2.FourCC, width, height, stride int) (*image.YCbCr, error) {
	dst := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	if err := ConvertInto(dst, src, format, stride); err != nil {
		return nil, err
	}
	return dst, nil
}

// ConvertInto is Convert with a caller-provided 4:2:0 destination, whose
// bounds give the frame size.
func ConvertInto(dst *image.YCbCr, src []byte, format v4l2.FourCC, stride int) error {
	if dst.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return errors.Errorf("destination subsampling %v, want 4:2:0", dst.SubsampleRatio)
	}
	w, h := dst.Rect.Dx(), dst.Rect.Dy()

	var bpp int
	switch format {
	case v4l2.V4L2_PIX_FMT_YUV420:
		bpp = 1
	case v4l2.V4L2_PIX_FMT_YUYV, v4l2.V4L2_PIX_FMT_UYVY:
		bpp = 2
	case v4l2.V4L2_PIX_FMT_RGB24:
		bpp = 3
	case v4l2.V4L2_PIX_FMT_RGB32:
		bpp = 4
	default:
		return errors.Wrap(ErrUnsupportedFormat, format.String())
	}
	if stride <= 0 {
		stride = bpp * w
	}

	need := stride * h
	if format == v4l2.V4L2_PIX_FMT_YUV420 {
		need += 2 * ((stride + 1) / 2) * ((h + 1) / 2)
	}
	if bpp == 2 && w%2 != 0 {
		return errors.Errorf("%s frame width %d is odd", format, w)
	}
	if len(src) < need {
		return errors.Errorf("%s frame %dx%d: have %d bytes, need %d", format, w, h, len(src), need)
	}

	switch format {
	case v4l2.V4L2_PIX_FMT_YUV420:
		yuv420(dst, src, stride)
	case v4l2.V4L2_PIX_FMT_YUYV:
		packed422(dst, src, stride, 0, 1, 3)
	case v4l2.V4L2_PIX_FMT_UYVY:
		packed422(dst, src, stride, 1, 0, 2)
	default:
		// Drivers deliver these in blue-green-red order.
		bgr(dst, src, stride, bpp)
	}
	return nil
}

// Planar Y, then U and V at half resolution.
func yuv420(dst *image.YCbCr, src []byte, stride int) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	cstride := (stride + 1) / 2

	for y := 0; y < h; y++ {
		copy(dst.Y[y*dst.YStride:y*dst.YStride+w], src[y*stride:])
	}
	u := src[stride*h:]
	v := u[cstride*ch:]
	for y := 0; y < ch; y++ {
		copy(dst.Cb[y*dst.CStride:y*dst.CStride+cw], u[y*cstride:])
		copy(dst.Cr[y*dst.CStride:y*dst.CStride+cw], v[y*cstride:])
	}
}

// Packed 4:2:2: each pixel pair is four bytes, with luma at byte y0 of every
// two. Chroma is taken from the even rows.
func packed422(dst *image.YCbCr, src []byte, stride, y0, cb, cr int) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()

	for y := 0; y < h; y++ {
		row := src[y*stride:]
		for x := 0; x < w; x++ {
			dst.Y[y*dst.YStride+x] = row[2*x+y0]
		}
	}
	for y := 0; y < h; y += 2 {
		row := src[y*stride:]
		for x := 0; x < w; x += 2 {
			i := (y/2)*dst.CStride + x/2
			dst.Cb[i] = row[2*x+cb]
			dst.Cr[i] = row[2*x+cr]
		}
	}
}

// Packed blue-green-red with bpp bytes per pixel. Chroma is computed from the
// average of each 2x2 block.
func bgr(dst *image.YCbCr, src []byte, stride, bpp int) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()

	for y := 0; y < h; y++ {
		row := src[y*stride:]
		for x := 0; x < w; x++ {
			p := row[x*bpp:]
			dst.Y[y*dst.YStride+x], _, _ = imgcolor.RGBToYCbCr(p[2], p[1], p[0])
		}
	}
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			var r, g, b, n int
			for dy := 0; dy < 2 && y+dy < h; dy++ {
				row := src[(y+dy)*stride:]
				for dx := 0; dx < 2 && x+dx < w; dx++ {
					p := row[(x+dx)*bpp:]
					b += int(p[0])
					g += int(p[1])
					r += int(p[2])
					n++
				}
			}
			_, cb, cr := imgcolor.RGBToYCbCr(uint8(r/n), uint8(g/n), uint8(b/n))
			i := (y/2)*dst.CStride + x/2
			dst.Cb[i] = cb
			dst.Cr[i] = cr
		}
	}
}

type YUYV struct {
	Packed []uint8
	Rect   image.Rectangle
	Stride int
}

// NewYUYV allocates and returns a YUYV image
func NewYUYV(r image.Rectangle) *YUYV {
	return &YUYV{
		Packed: make([]byte, 2*r.Dx()*r.Dy()),
		Rect:   r,
		Stride: 2 * r.Dx(),
	}
}

// YUYVToYUV420P converts YUYV (i.e. YUY2) packed to YUV420 planar format
func YUYVToYUV420P(dst *image.YCbCr, src *YUYV) {
	packed422(dst, src.Packed, src.Stride, 0, 1, 3)
}
