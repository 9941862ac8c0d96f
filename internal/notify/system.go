package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// SlogNotifier is a SystemNotifier that records device-level notifications
// as structured log lines. The real device channel lives in the mobile
// shell; server-side processes use this stand-in.
type SlogNotifier struct {
	log *slog.Logger
}

// NewSlogNotifier constructs a SlogNotifier writing through log.
func NewSlogNotifier(log *slog.Logger) *SlogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &SlogNotifier{log: log}
}

var _ SystemNotifier = (*SlogNotifier)(nil)

func (n *SlogNotifier) Notify(title, body string) error {
	n.log.Info("device notification", "title", title, "body", body)
	return nil
}

// WriterAlerter is an Alerter that writes the fallback alert synchronously
// to w, e.g. stderr.
type WriterAlerter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAlerter constructs a WriterAlerter writing to w.
func NewWriterAlerter(w io.Writer) *WriterAlerter {
	return &WriterAlerter{w: w}
}

var _ Alerter = (*WriterAlerter)(nil)

func (a *WriterAlerter) Alert(title, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.w, "ALERT: %s: %s\n", title, body)
}
