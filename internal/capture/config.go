package capture

import "time"

const (
	DefaultPath        = "/dev/video0"
	DefaultWidth       = 320
	DefaultHeight      = 240
	DefaultRetries     = 10
	DefaultWaitTimeout = 5 * time.Second

	// The capture loop double-buffers: one buffer is filled by the hardware
	// while the other holds the latest frame.
	poolSize = 2

	maxInputs    = 16
	maxStandards = 16
	maxFormats   = 32
	maxControls  = 32 // per id range
)

type Config struct {
	Path string // Device path (default: /dev/video0)

	// Driver selectors. Negative means "first available"; values past the
	// end of the enumerated list are clamped to the last entry.
	Input    int
	Standard int
	Format   int

	// Tuner frequency in units of 62.5 kHz. Zero or negative leaves the
	// tuner alone.
	Frequency int

	Width  int // Requested frame width (default: 320)
	Height int // Requested frame height (default: 240)

	// Frame size legality policy and bounds, see NewValidator.
	LegalWidth  func(int) int
	LegalHeight func(int) int
	MinWidth    int
	MaxWidth    int
	MinHeight   int
	MaxHeight   int

	Retries     int           // Automatic open attempts before backing off (default: 10)
	WaitTimeout time.Duration // Capture loop readiness timeout (default: 5s)

	// Don't open the device from PollFrame when closed.
	ManualOpen bool

	// Deliver the latest frame on every poll, even if already delivered.
	RepeatFrames bool

	// Device opener (default: V4L2 device node).
	Open Opener
}

func (cfg Config) withDefaults() Config {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.Open == nil {
		cfg.Open = openV4L2
	}
	return cfg
}
