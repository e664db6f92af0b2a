package main

import (
	"Go2NetGuard/internal/api"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/dispatch"
	"Go2NetGuard/internal/engine/detector"
	"Go2NetGuard/internal/engine/guard"
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/engine/window"
	"Go2NetGuard/internal/health"
	"Go2NetGuard/internal/logging"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/query"
	"Go2NetGuard/internal/report"
	pcapfile "Go2NetGuard/pkg/pcap"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	pcapPath := flag.String("pcap", "", "Replay a pcap/pcapng file instead of capturing live (overrides capture.pcap_file).")
	iface := flag.String("iface", "", "Interface to capture from (overrides capture.iface).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *pcapPath != "" {
		cfg.Capture.PcapFile = *pcapPath
	}
	if *iface != "" {
		cfg.Capture.Iface = *iface
	}
	logOut := logging.SetupRotation(cfg.Log)
	log.SetOutput(logOut)
	log.Println("Starting ns-guard...")

	src, linkType, replay, closeSrc, err := openSource(cfg.Capture)
	if err != nil {
		log.Fatalf("Failed to open capture source: %v", err)
	}
	defer closeSrc()

	// Report writers: configured sinks plus the built-in metrics and health writers.
	writers, err := report.CreateWriters(cfg)
	if err != nil {
		log.Fatalf("Failed to create report writers: %v", err)
	}
	m := metrics.New()
	hs := health.NewServer()
	pipeline := report.NewPipeline(cfg.Report.QueueSize, writers)
	pipeline.Add(m, cfg.Report.QueueSize)
	pipeline.Add(hs, cfg.Report.QueueSize)
	pipeline.Start()

	sink := logging.NewSink(logOut, cfg.Engine.DebugLevel, cfg.Log.PacketLogRate)
	engine := guard.New(guard.Options{
		Limits:   detector.LimitsFromConfig(cfg.Engine),
		MaxLanes: cfg.Engine.MaxLanes,
		Link:     linkType,
		Sink:     sink,
		Reporter: pipeline,
	})
	limits := engine.Limits()
	log.Printf("Engine ready: window=%s cooldown=%s pps_limit=%d bps_limit=%d lanes=%d",
		limits.Window, limits.Cooldown, limits.PPSLimit, limits.BPSLimit, engine.Lanes())

	var fwd *dispatch.PcapForwarder
	if cfg.Capture.ForwardPcap != "" {
		fwd, err = dispatch.NewPcapForwarder(cfg.Capture.ForwardPcap, uint32(cfg.Capture.SnapLen), layersLinkType(linkType))
		if err != nil {
			log.Fatalf("Failed to open forward file: %v", err)
		}
	}

	clock := window.NewMonotonicClock()
	opts := dispatch.Options{
		Lanes:        cfg.Engine.MaxLanes,
		QueueSize:    cfg.Capture.LaneQueue,
		TickInterval: cfg.Capture.TickDuration(),
		Clock:        clock,
		CaptureTime:  replay,
	}
	if fwd != nil {
		opts.Forwarder = fwd
	}
	d := dispatch.New(engine, opts)
	d.Start()

	m.CounterFunc("nsguard_frames_total", "Frames handed to the engine.", func() float64 {
		return float64(d.Stats().Total.Frames)
	})
	m.CounterFunc("nsguard_frames_dropped_total", "Frames that received a DROP verdict.", func() float64 {
		return float64(d.Stats().Total.Dropped)
	})
	m.CounterFunc("nsguard_stray_lane_frames_total", "Frames submitted with a lane id outside the configured lanes.", func() float64 {
		return float64(engine.StrayFrames())
	})
	m.CounterFunc("nsguard_reports_dropped_total", "Window reports lost to full writer queues.", func() float64 {
		return float64(pipeline.Dropped())
	})
	m.CounterFunc("nsguard_log_packets_suppressed_total", "Per-packet log lines suppressed by the rate limit.", func() float64 {
		return float64(sink.Suppressed())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.API.Enabled {
		apiOpts := api.Options{
			Engine:    engine,
			Clock:     clock,
			Dispatch:  d,
			Reports:   pipeline,
			Metrics:   m.Handler(),
			JWTSecret: cfg.API.JWTSecret,
		}
		if cfg.ClickHouse.Host != "" {
			querier, err := query.NewClickHouseQuerier(cfg.ClickHouse)
			if err != nil {
				log.Printf("History API disabled: %v", err)
			} else {
				apiOpts.History = querier
			}
		}
		httpServer = &http.Server{
			Addr:              cfg.API.ListenAddr,
			Handler:           api.NewRouter(apiOpts),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Printf("API server listening on %s", cfg.API.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if cfg.Health.Enabled {
		g.Go(func() error {
			return hs.Serve(cfg.Health.ListenAddr)
		})
	}

	g.Go(func() error {
		err := d.Run(gctx, src)
		if replay && err == nil {
			log.Println("Replay finished. Press Ctrl+C to exit.")
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Shutdown waits for a signal or the first failing component.
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutdown signal received, stopping...")
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}
		if cfg.Health.Enabled {
			hs.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("ns-guard stopped with error: %v", err)
	}

	d.Stop()
	if fwd != nil {
		if err := fwd.Close(); err != nil {
			log.Printf("Failed to close forward file: %v", err)
		} else {
			log.Printf("Forwarded %d frames to %s", fwd.Count(), cfg.Capture.ForwardPcap)
		}
	}
	pipeline.Stop()

	total := d.Stats().Total
	log.Printf("Processed %d frames: %d passed, %d dropped, %d windows closed.",
		total.Frames, total.Passed, total.Dropped, engine.Aggregations())
	log.Println("Shutdown complete.")
}

// openSource opens the replay file when one is configured, otherwise a live
// capture handle. replay reports whether frame timestamps drive engine time.
func openSource(cfg config.CaptureConfig) (src gopacket.PacketDataSource, link protocol.LinkType, replay bool, closeFn func(), err error) {
	if cfg.PcapFile != "" {
		r, err := pcapfile.NewReader(cfg.PcapFile)
		if err != nil {
			return nil, 0, false, nil, err
		}
		log.Printf("Replaying frames from '%s' (link type %s)", cfg.PcapFile, r.LinkType())
		return r, protocol.FromLayersLinkType(r.LinkType()), true, func() { r.Close() }, nil
	}
	if cfg.Iface == "" {
		return nil, 0, false, nil, errors.New("either capture.iface or capture.pcap_file must be set")
	}

	handle, err := pcap.OpenLive(cfg.Iface, cfg.SnapLen, cfg.Promiscuous, 250*time.Millisecond)
	if err != nil {
		return nil, 0, false, nil, err
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, 0, false, nil, err
		}
	}
	log.Printf("Capturing on interface %s (link type %s)", cfg.Iface, handle.LinkType())
	return liveSource{handle}, protocol.FromLayersLinkType(handle.LinkType()), false, handle.Close, nil
}

// liveSource reports read timeouts in a form the dispatcher skips, so the
// capture loop regularly observes cancellation.
type liveSource struct {
	*pcap.Handle
}

type captureTimeout struct{}

func (captureTimeout) Error() string { return "capture read timeout" }
func (captureTimeout) Timeout() bool { return true }

func (s liveSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.Handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, captureTimeout{}
	}
	return data, ci, err
}

func layersLinkType(l protocol.LinkType) layers.LinkType {
	switch l {
	case protocol.LinkRaw:
		return layers.LinkTypeRaw
	case protocol.LinkIPv4:
		return layers.LinkTypeIPv4
	case protocol.LinkIPv6:
		return layers.LinkTypeIPv6
	default:
		return layers.LinkTypeEthernet
	}
}
