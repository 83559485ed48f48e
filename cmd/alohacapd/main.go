package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/net/netutil"

	"github.com/lanikai/alohacap/internal/capture"
	"github.com/lanikai/alohacap/internal/config"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/media"
)

var log = logging.DefaultLogger.WithTag("alohacapd")

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	if err := config.Load(&opts, flag.CommandLine); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	logging.SetLevel(level)

	eng := capture.New(engineConfig(opts))
	if !opts.ManualOpen {
		if err := eng.Open(opts.Device); err != nil {
			log.Warn("%v (will retry on demand)", err)
		}
	}

	frames := media.NewBroadcaster()
	media.NewPump(eng, frames, opts.Fps, opts.Quality)

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	if opts.MaxClients > 0 {
		ln = netutil.LimitListener(ln, opts.MaxClients)
	}
	log.Info("listening on %s", ln.Addr())

	srv := &http.Server{Handler: newServer(eng, frames, opts.Quality)}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		frames.Close()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Error("%v", err)
	}
	eng.Close()
}

func engineConfig(o config.Options) capture.Config {
	return capture.Config{
		Path:         o.Device,
		Input:        o.Input,
		Standard:     o.Standard,
		Format:       o.Format,
		Frequency:    int(o.FrequencyMhz * 16),
		Width:        o.Width,
		Height:       o.Height,
		Retries:      o.Retries,
		ManualOpen:   o.ManualOpen,
		RepeatFrames: o.RepeatFrames,
	}
}
