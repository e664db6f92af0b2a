package model

// Writer defines a generic interface for persisting or forwarding window reports.
type Writer interface {
	// Write handles one report. Implementations must not retain the pointer.
	Write(report *WindowReport) error

	// Name identifies the writer in logs.
	Name() string
}

// Closer is implemented by writers holding connections or files.
type Closer interface {
	Close() error
}
