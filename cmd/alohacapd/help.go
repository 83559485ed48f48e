package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohacap/internal/config"
)

// Populated via -ldflags="-X ...".
var GitRevisionId string
var GitTag string

var opts = config.Defaults()

var (
	flagHelp    bool
	flagVersion bool
)

func init() {
	flag.StringVarP(&opts.Config, "config", "c", "", "Configuration file")
	flag.StringVarP(&opts.Device, "device", "d", opts.Device, "Video capture device")
	flag.IntVarP(&opts.Width, "width", "x", opts.Width, "Frame width")
	flag.IntVarP(&opts.Height, "height", "y", opts.Height, "Frame height")
	flag.IntVar(&opts.Input, "input", opts.Input, "Input index")
	flag.IntVar(&opts.Standard, "standard", opts.Standard, "Standard index")
	flag.IntVar(&opts.Format, "format", opts.Format, "Pixel format index")
	flag.Float64Var(&opts.FrequencyMhz, "frequency-mhz", opts.FrequencyMhz, "Tuner frequency, in MHz")
	flag.IntVar(&opts.Retries, "retries", opts.Retries, "Automatic open attempts")
	flag.BoolVar(&opts.ManualOpen, "manual-open", opts.ManualOpen, "Never open the device automatically")
	flag.BoolVar(&opts.RepeatFrames, "repeat-frames", opts.RepeatFrames, "Deliver frames more than once")
	flag.StringVarP(&opts.Listen, "listen", "l", opts.Listen, "HTTP listen address")
	flag.IntVar(&opts.Fps, "fps", opts.Fps, "Preview frame rate")
	flag.IntVarP(&opts.Quality, "quality", "q", opts.Quality, "Preview JPEG quality")
	flag.IntVar(&opts.MaxClients, "max-clients", opts.MaxClients, "Maximum concurrent HTTP connections")
	flag.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Logging level")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Video capture daemon for connected devices

Usage: alohacapd [OPTION]...

Configuration:
  -c, --config=FILE        TOML configuration file. Settings may also be
                           given as ALOHACAP_* environment variables.

Video source:
  -d, --device=FILE        Video capture device (default: /dev/video0)
  -x, --width=NUM          Frame width (default: 320)
  -y, --height=NUM         Frame height (default: 240)
      --input=NUM          Input index (default: first)
      --standard=NUM       Analog standard index (default: first)
      --format=NUM         Pixel format index (default: first)
      --frequency-mhz=NUM  Tuner frequency, in MHz
      --retries=NUM        Automatic open attempts before giving up (default: 10)
      --manual-open        Only open the device when asked to
      --repeat-frames      Deliver the latest frame even if already delivered

Preview server:
  -l, --listen=ADDR        HTTP listen address (default: :8000)
      --fps=NUM            Preview frame rate (default: 25)
  -q, --quality=NUM        Preview JPEG quality, 1-100 (default: 75)
      --max-clients=NUM    Maximum concurrent HTTP connections (default: unlimited)

Miscellaneous:
      --log-level=LEVEL    error, warn, info, debug or trace (default: info)
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//         _         _
	//   __ _ | |  ___  | |__    __ _   ___  __ _  _ __
	//  / _` || | / _ \ | '_ \  / _` | / __|/ _` || '_ \
	// | (_| || || (_) || | | || (_| || (__| (_| || |_) |
	//  \__,_||_| \___/ |_| |_| \__,_| \___|\__,_|| .__/
	//                                            |_|

	// Line 1
	r.Printf("        ")
	y.Printf(" _ ")
	b.Printf("       ")
	y.Println(" _     ")

	// Line 2
	r.Printf("   __ _ ")
	y.Printf("| |")
	b.Printf("  ___  ")
	y.Printf("| |__  ")
	r.Printf("  __ _ ")
	b.Printf("  ___ ")
	r.Printf(" __ _ ")
	y.Println(" _ __  ")

	// Line 3
	r.Printf("  / _` |")
	y.Printf("| |")
	b.Printf(" / _ \\ ")
	y.Printf("| '_ \\ ")
	r.Printf(" / _` |")
	b.Printf(" / __|")
	r.Printf("/ _` |")
	y.Println("| '_ \\ ")

	// Line 4
	r.Printf(" | (_| |")
	y.Printf("| |")
	b.Printf("| (_) |")
	y.Printf("| | | |")
	r.Printf("| (_| |")
	b.Printf("| (__")
	r.Printf("| (_| |")
	y.Println("| |_) |")

	// Line 5
	r.Printf("  \\__,_|")
	y.Printf("|_|")
	b.Printf(" \\___/ ")
	y.Printf("|_| |_|")
	r.Printf(" \\__,_|")
	b.Printf(" \\___|")
	r.Printf("\\__,_|")
	y.Println("| .__/ ")

	// Line 6
	r.Printf("                                           ")
	y.Println(" |_|    ")

	fmt.Println(helpString)
}

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("alohacapd", GitTag, GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
}
