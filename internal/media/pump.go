package media

import (
	"bytes"
	"image/jpeg"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lanikai/alohacap/internal/capture"
	"github.com/lanikai/alohacap/internal/color"
)

var encodedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "alohacap",
	Subsystem: "media",
	Name:      "encoded_frames_total",
	Help:      "Frames converted and JPEG-encoded by the pump, by result",
}, []string{"result"})

// FrameSource hands out captured frames. *capture.Engine implements it.
type FrameSource interface {
	// WithFrame calls fn with the latest frame, if any, while the frame's
	// buffer is guaranteed to stay valid.
	WithFrame(fn func(capture.Frame) error) (bool, error)
}

// EncodeJPEG converts a captured frame and JPEG-encodes it into w.
func EncodeJPEG(w io.Writer, f capture.Frame, quality int) error {
	img, err := color.Convert(f.Data, f.Format, f.Width, f.Height, f.Stride)
	if err != nil {
		return err
	}
	return errors.Wrap(jpeg.Encode(w, img, &jpeg.Options{Quality: quality}), "jpeg")
}

// A Pump polls a FrameSource at a fixed rate and writes each new frame, as a
// JPEG image, to a Broadcaster. It runs only while the broadcaster has
// subscribers.
type Pump struct {
	src      FrameSource
	out      *Broadcaster
	interval time.Duration
	quality  int

	loop *singletonLoop
}

// NewPump attaches a pump to out. fps bounds the polling rate; quality is the
// JPEG quality (1-100).
func NewPump(src FrameSource, out *Broadcaster, fps, quality int) *Pump {
	if fps <= 0 {
		fps = 25
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	p := &Pump{
		src:      src,
		out:      out,
		interval: time.Second / time.Duration(fps),
		quality:  quality,
	}
	p.loop = newSingletonLoop("frame pump", p.run)
	out.Start = p.loop.start
	out.Stop = p.loop.stop
	return p
}

func (p *Pump) Running() bool {
	return p.loop.running()
}

func (p *Pump) run(quit <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		buf.Reset()
		ok, err := p.src.WithFrame(func(f capture.Frame) error {
			return EncodeJPEG(&buf, f, p.quality)
		})
		if !ok {
			continue
		}
		if err != nil {
			encodedFrames.WithLabelValues("error").Inc()
			log.Trace(1, "encode frame: %v", err)
			continue
		}
		encodedFrames.WithLabelValues("ok").Inc()

		// Subscribers keep the slice, so hand out a copy.
		p.out.Write(append([]byte(nil), buf.Bytes()...))
	}
}
