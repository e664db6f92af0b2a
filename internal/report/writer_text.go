package report

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func init() {
	RegisterWriter("text", func(cfg *config.Config, def config.WriterDef) (model.Writer, error) {
		return NewTextWriter(def.Text.RootPath, def.Text.Verbose)
	})
}

// TextWriter appends human-readable window reports to one file per day.
type TextWriter struct {
	rootPath string
	verbose  bool
}

// NewTextWriter creates a text writer under rootPath.
func NewTextWriter(rootPath string, verbose bool) (*TextWriter, error) {
	if rootPath == "" {
		rootPath = "reports"
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &TextWriter{rootPath: rootPath, verbose: verbose}, nil
}

func (w *TextWriter) Name() string { return "text" }

// Path returns the file a report created at t is appended to.
func (w *TextWriter) Path(t time.Time) string {
	return filepath.Join(w.rootPath, fmt.Sprintf("reports-%s.log", t.Format("2006-01-02")))
}

func (w *TextWriter) Write(report *model.WindowReport) error {
	var b strings.Builder
	window := time.Duration(report.WindowEnd - report.WindowStart)
	fmt.Fprintf(&b, "%s window=%s id=%s leader=%d\n",
		report.Time.Format("2006-01-02 15:04:05.000"), window.Round(time.Millisecond), report.ID, report.Leader)

	lines := 0
	for _, c := range report.Categories {
		if !w.verbose && c.Packets == 0 && c.Transition == model.TransitionNone {
			continue
		}
		fmt.Fprintf(&b, "  %-14s packets=%d bytes=%d pps=%d bps=%d verdict=%s", c.Category, c.Packets, c.Bytes, c.PPS, c.BPS, c.Verdict)
		if c.Transition != model.TransitionNone {
			fmt.Fprintf(&b, " transition=%s", c.Transition)
		}
		if c.Transition == model.TransitionCooldown {
			fmt.Fprintf(&b, " cooldown_remaining=%s", c.CooldownRemaining)
		}
		b.WriteByte('\n')
		lines++
	}
	if lines == 0 {
		b.WriteString("  (no traffic)\n")
	}

	file, err := os.OpenFile(w.Path(report.Time), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
