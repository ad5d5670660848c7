// File: cmd/progress.go
package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// progressPrinter renders orchestrator progress as one line per event. Repeated polling
// messages for the same attempt and status are collapsed.
type progressPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) Handle(ev schemas.Progress) {
	line := formatProgress(ev)
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.out, line)
}

func formatProgress(ev schemas.Progress) string {
	if ev.Step == schemas.StepPolling && ev.Polling != nil {
		st := ev.Polling
		line := fmt.Sprintf("  [%s %d/%d %s] %s", st.Status, st.Attempt, st.MaxAttempts, st.Timer, st.Message)
		if st.Error != "" {
			line += " (" + st.Error + ")"
		}
		return line
	}
	return fmt.Sprintf("[%s] %s", ev.Step, ev.Message)
}
