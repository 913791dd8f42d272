package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/config"
	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/pipeline"
	"github.com/lanikai/alohacam/internal/rtp"
	"github.com/lanikai/alohacam/internal/simhw"
	"github.com/lanikai/alohacam/internal/sink"
	"github.com/lanikai/alohacam/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("alohacam")

// Populated via -ldflags="-X ...".
var GitRevisionId string

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("alohacam", GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
	fmt.Println("Visit https://lanikailabs.com for more information")
}

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

	cfg, err := loadConfig()
	if err != nil {
		log.Error("%v", err)
		os.Exit(2)
	}

	sys := simhw.NewSystem()
	capture.RegisterDriver(sys.Cameras)
	cams := v4l2.NewDriver()
	cams.HFlip = flagHorizontalFlip
	cams.VFlip = flagVerticalFlip
	capture.RegisterDriver(cams)

	if flagList {
		listCameras(cfg, sys.Cameras, cams)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, sys); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags the
// user set explicitly.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return nil, err
		}
	}

	set := flag.CommandLine.Changed
	if set("input") {
		cfg.Input = flagInput
	}
	if set("bitrate") {
		cfg.BitRateKiB = flagBitrate
	}
	if set("width") {
		cfg.Width = flagWidth
	}
	if set("height") {
		cfg.Height = flagHeight
	}
	if set("framerate") {
		cfg.FrameRate = flagFrameRate
	}
	if set("surface") {
		cfg.SurfaceEncode = flagSurface
	}
	if set("record") {
		cfg.Record = flagRecord
	}
	if set("listen") {
		cfg.Listen = flagListen
	}
	if set("rtp") {
		cfg.RTP = flagRTP
	}
	if set("sdp") {
		cfg.SDP = flagSDP
	}
	if set("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		if err := logging.SetLevels(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func listCameras(cfg *config.Config, drivers ...capture.Driver) {
	for _, d := range drivers {
		entries, err := capture.Enumerate(d, cfg.SurfaceEncode)
		if err != nil {
			log.Warn("%v", err)
			continue
		}
		for _, e := range entries {
			fmt.Printf("%v\t%s (orientation %d)\n", e.Locator, e.Info.Name, e.Info.Orientation)
			for _, f := range e.Formats {
				fmt.Printf("\t%v\n", f)
			}
		}
	}
}

func run(ctx context.Context, cfg *config.Config, sys *simhw.System) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts, err := cfg.CaptureOptions()
	if err != nil {
		return err
	}
	opts.EGL = sys.EGL
	opts.Renderer = sys.Renderer

	session, err := capture.OpenLocator(cfg.Input, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	format, err := session.NegotiateFormat([]media.Format{cfg.CaptureFormat()})
	if err != nil {
		return err
	}
	stream, err := session.NewStream()
	if err != nil {
		return err
	}

	// The pipeline brings the encoder up once the stream asks for it.
	registry := codec.Init(sys.Codecs, cfg.DenyCodecs...)
	encCfg := cfg.EncoderConfig(format)
	if !registry.Supports(encCfg.Output.Encoding, true) {
		return errors.Wrapf(media.ErrResourceUnavailable, "no %v encoder", encCfg.Output.Encoding)
	}
	output := encCfg.Output

	var sinks []sink.Sink
	if cfg.Record != "" {
		rec, err := sink.CreateRecorder(cfg.Record, output)
		if err != nil {
			return err
		}
		defer rec.Close()
		sinks = append(sinks, rec)
	}
	var viewers *sink.Broadcaster
	if cfg.Listen != "" {
		viewers = sink.NewBroadcaster(output)
		sinks = append(sinks, viewers)
	}
	if cfg.RTP != "" {
		sender, err := rtp.Dial(ctx, cfg.RTP, output, cfg.RTPOptions())
		if err != nil {
			return err
		}
		defer sender.Close()
		sinks = append(sinks, sender)
		if cfg.SDP != "" {
			desc := sender.Description()
			if err := ioutil.WriteFile(cfg.SDP, []byte(desc.String()), 0644); err != nil {
				return errors.Wrap(err, "write sdp")
			}
		}
	}
	if len(sinks) == 0 {
		log.Warn("no --record, --listen or --rtp given, encoded video is discarded")
	}

	p := pipeline.New(stream, pipeline.OpenEncoder(registry, encCfg), sinks, pipeline.Options{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return errors.Wrap(p.Run(gctx), "pipeline")
	})
	if viewers != nil {
		g.Go(func() error {
			return errors.Wrap(viewers.ListenAndServe(cfg.Listen), "live server")
		})
		g.Go(func() error {
			<-gctx.Done()
			return viewers.Close()
		})
	}
	return g.Wait()
}
