package report

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/notification"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
)

func init() {
	RegisterWriter("email", func(cfg *config.Config, def config.WriterDef) (model.Writer, error) {
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("smtp host is not configured")
		}
		return NewEmailWriter(notification.NewEmailNotifier(cfg.SMTP)), nil
	})
}

// EmailWriter sends a notification whenever a category starts or stops
// being dropped. Other windows are ignored.
type EmailWriter struct {
	notifier model.Notifier
}

// NewEmailWriter creates an email writer on top of a notifier.
func NewEmailWriter(n model.Notifier) *EmailWriter {
	return &EmailWriter{notifier: n}
}

func (w *EmailWriter) Name() string { return "email" }

func (w *EmailWriter) Write(report *model.WindowReport) error {
	events := report.Transitions()
	if len(events) == 0 {
		return nil
	}

	var started, stopped []string
	for _, e := range events {
		if e.Transition == model.TransitionAttackStarted {
			started = append(started, e.Category.String())
		} else {
			stopped = append(stopped, e.Category.String())
		}
	}
	var parts []string
	if len(started) > 0 {
		parts = append(parts, "attack started: "+strings.Join(started, ", "))
	}
	if len(stopped) > 0 {
		parts = append(parts, "attack stopped: "+strings.Join(stopped, ", "))
	}
	subject := "[nsguard] " + strings.Join(parts, "; ")

	return w.notifier.Send(subject, renderEmail(report, events))
}

func renderEmail(report *model.WindowReport, events []model.CategoryReport) string {
	var md strings.Builder
	md.WriteString("# Flood mitigation update\n\n")
	fmt.Fprintf(&md, "Window closed at **%s** (report `%s`).\n\n", report.Time.Format("2006-01-02 15:04:05 MST"), report.ID)
	md.WriteString("| Category | Event | Packets/s | Bytes/s | Verdict |\n")
	md.WriteString("|---|---|---|---|---|\n")
	for _, e := range events {
		fmt.Fprintf(&md, "| %s | %s | %d | %d | %s |\n", e.Category, e.Transition, e.PPS, e.BPS, e.Verdict)
	}
	md.WriteString("\nDropped categories are re-enabled after a quiet cooldown.\n")

	p := parser.NewWithExtensions(parser.CommonExtensions)
	return string(markdown.ToHTML([]byte(md.String()), p, nil))
}
