package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/dispatch"
	"Go2NetGuard/internal/engine/detector"
	"Go2NetGuard/internal/engine/guard"
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/logging"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/pkg/pcap"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// collector keeps every report in memory for the final summary.
type collector struct {
	mu      sync.Mutex
	reports []*model.WindowReport
}

func (c *collector) Enqueue(r *model.WindowReport) bool {
	c.mu.Lock()
	c.reports = append(c.reports, r)
	c.mu.Unlock()
	return true
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	lanes := flag.Int("lanes", 0, "Override engine.max_lanes.")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-analyzer [-config path] [-lanes n] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *lanes > 0 {
		cfg.Engine.MaxLanes = *lanes
	}

	pcapReader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer pcapReader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	reports := &collector{}
	engine := guard.New(guard.Options{
		Limits:   detector.LimitsFromConfig(cfg.Engine),
		MaxLanes: cfg.Engine.MaxLanes,
		Link:     protocol.FromLayersLinkType(pcapReader.LinkType()),
		Sink:     logging.NewSink(os.Stderr, cfg.Engine.DebugLevel, cfg.Log.PacketLogRate),
		Reporter: reports,
	})
	d := dispatch.New(engine, dispatch.Options{
		Lanes:       cfg.Engine.MaxLanes,
		QueueSize:   cfg.Capture.LaneQueue,
		CaptureTime: true,
	})
	d.Start()
	start := time.Now()
	if err := d.Run(context.Background(), pcapReader); err != nil {
		log.Printf("Replay stopped early: %v", err)
	}
	d.Stop()
	elapsed := time.Since(start)

	reports.mu.Lock()
	defer reports.mu.Unlock()
	fmt.Printf("Windows closed: %d\n", len(reports.reports))
	for _, r := range reports.reports {
		for _, c := range r.Transitions() {
			at := time.Unix(0, r.WindowEnd).UTC().Format("15:04:05.000")
			fmt.Printf("[%s] %-14s %-15s pps=%d bps=%d\n", at, c.Category, c.Transition, c.PPS, c.BPS)
		}
	}

	total := d.Stats().Total
	fmt.Printf("Frames: %d (passed %d, dropped %d) in %s\n", total.Frames, total.Passed, total.Dropped, elapsed.Round(time.Millisecond))
	fmt.Println("Final verdicts:")
	for _, e := range engine.States() {
		fmt.Printf("  %-14s %s\n", e.Category, e.Verdict)
	}
}
