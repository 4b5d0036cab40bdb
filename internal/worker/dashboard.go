package worker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/matchpoint-io/matchpoint/internal/events"
)

// Dashboard renders worker status events. On a TTY it keeps one fixed row
// per worker and rewrites them in place with ANSI cursor movement; piped or
// redirected output gets one plain line per transition instead. It satisfies
// events.Emitter so it stacks with the JSONL and Kafka sinks.
type Dashboard struct {
	mu   sync.Mutex
	out  io.Writer
	live bool

	lines map[string]string
	order []string
	drawn int
}

var _ events.Emitter = (*Dashboard)(nil)

// NewDashboard builds a dashboard over the given file, probing it for
// TTY-ness.
func NewDashboard(out *os.File) *Dashboard {
	return &Dashboard{
		out:   out,
		live:  isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
		lines: make(map[string]string),
	}
}

// Emit implements events.Emitter.
func (d *Dashboard) Emit(event events.Event) {
	if event.WorkerID == "" {
		return
	}

	line := formatLine(event)
	if line == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.lines[event.WorkerID]; !known {
		d.order = append(d.order, event.WorkerID)
		sort.Strings(d.order)
	}

	d.lines[event.WorkerID] = line

	if d.live {
		d.redrawLocked()

		return
	}

	fmt.Fprintln(d.out, line)
}

// Close implements events.Emitter.
func (d *Dashboard) Close() error {
	return nil
}

// redrawLocked moves the cursor back over the previously drawn block and
// rewrites every worker row. \x1b[K clears to end of line so shorter lines
// do not leave residue.
func (d *Dashboard) redrawLocked() {
	if d.drawn > 0 {
		fmt.Fprintf(d.out, "\x1b[%dA", d.drawn)
	}

	for _, workerID := range d.order {
		fmt.Fprintf(d.out, "\r\x1b[K%s\n", d.lines[workerID])
	}

	d.drawn = len(d.order)
}

func formatLine(event events.Event) string {
	switch event.Type {
	case events.TaskStarted:
		return fmt.Sprintf("%-10s running  #%d %s %s",
			event.WorkerID, event.TaskID, event.TaskType, event.Tour)
	case events.TaskCompleted:
		return fmt.Sprintf("%-10s done     #%d %s %s",
			event.WorkerID, event.TaskID, event.TaskType, event.Tour)
	case events.TaskFailed:
		return fmt.Sprintf("%-10s failed   #%d %s %s: %s",
			event.WorkerID, event.TaskID, event.TaskType, event.Tour, event.Detail)
	case events.WorkerIdle:
		return fmt.Sprintf("%-10s idle", event.WorkerID)
	case events.WorkerStopped:
		return fmt.Sprintf("%-10s stopped", event.WorkerID)
	default:
		return ""
	}
}
