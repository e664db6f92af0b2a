package main

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	natsURL := flag.String("nats", "", "NATS server URL (overrides nats.url).")
	attacksOnly := flag.Bool("attacks-only", false, "Print only windows in which a verdict changed.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *natsURL != "" {
		cfg.NATS.URL = *natsURL
	}

	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(r *model.WindowReport) {
		if *attacksOnly && len(r.Transitions()) == 0 {
			return
		}
		fmt.Print(formatReport(r))
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}

func formatReport(r *model.WindowReport) string {
	var sb strings.Builder
	window := time.Duration(r.WindowEnd - r.WindowStart)
	fmt.Fprintf(&sb, "%s report=%s window=%s leader=%d/%d\n",
		r.Time.Format(time.RFC3339), r.ID, window, r.Leader, r.Lanes)
	for _, c := range r.Categories {
		if c.Packets == 0 && c.Verdict == model.Pass && c.Transition == model.TransitionNone {
			continue
		}
		fmt.Fprintf(&sb, "  %-14s %-4s pps=%-8d bps=%-10d %s", c.Category, c.Verdict, c.PPS, c.BPS, c.Transition)
		if c.CooldownRemaining > 0 {
			fmt.Fprintf(&sb, " cooldown=%s", c.CooldownRemaining.Round(time.Millisecond))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
