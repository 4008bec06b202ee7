package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/kbukum/dagflow/dag"
	"github.com/kbukum/dagflow/simulator"
)

var (
	green   = color.New(color.FgGreen).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func paintStatus(status string) string {
	switch dag.Status(strings.TrimSpace(status)) {
	case dag.StatusCompleted:
		return green(status)
	case dag.StatusFailed:
		return red(status)
	case dag.StatusSkipped:
		return yellow(status)
	case dag.StatusCancelled:
		return magenta(status)
	default:
		return faint(status)
	}
}

// table renders aligned columns. Cells are padded before painting so
// colour codes do not skew the widths.
type table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	widths  []int
	paint   map[int]func(string) string
}

func newTable(w io.Writer, headers ...string) *table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &table{w: w, headers: headers, widths: widths, paint: map[int]func(string) string{}}
}

func (t *table) row(cells ...string) {
	for i, cell := range cells {
		if i < len(t.widths) && len(cell) > t.widths[i] {
			t.widths[i] = len(cell)
		}
	}
	t.rows = append(t.rows, cells)
}

func (t *table) render() {
	header := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		header.Fprintf(t.w, "%-*s  ", t.widths[i], h)
	}
	fmt.Fprintln(t.w)
	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(t.widths) {
				break
			}
			padded := fmt.Sprintf("%-*s", t.widths[i], cell)
			if p, ok := t.paint[i]; ok {
				padded = p(padded)
			}
			fmt.Fprintf(t.w, "%s  ", padded)
		}
		fmt.Fprintln(t.w)
	}
}

func joinIDs(ids []dag.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

// printEvent renders one simulation event for playback.
func printEvent(w io.Writer, e simulator.Event) {
	switch e.Kind {
	case simulator.EventBatchStart:
		fmt.Fprintf(w, "%s %s\n", cyan(fmt.Sprintf("batch %d", e.Batch)), joinIDs(e.Nodes))
	case simulator.EventNodeStart:
		fmt.Fprintf(w, "  %s %s %s\n", faint("start"), e.Node, faint("("+string(e.NodeKind)+")"))
	case simulator.EventNodeComplete:
		fmt.Fprintf(w, "  %s %s\n", green("done "), e.Node)
	case simulator.EventNodeError:
		fmt.Fprintf(w, "  %s %s: %s\n", red("error"), e.Node, e.Error)
	case simulator.EventGateEvaluated:
		passed := e.Passed != nil && *e.Passed
		outcome := red("false")
		if passed {
			outcome = green("true")
		}
		fmt.Fprintf(w, "  %s %s -> %s\n", yellow("gate "), e.Node, outcome)
	case simulator.EventCollectWaiting:
		fmt.Fprintf(w, "  %s %s waiting for form %q\n", magenta("wait "), e.Node, e.FormID)
	case simulator.EventBatchComplete:
		fmt.Fprintf(w, "%s\n", faint(fmt.Sprintf("batch %d complete", e.Batch)))
	case simulator.EventSimulationComplete:
		fmt.Fprintf(w, "%s %d nodes completed\n", bold("simulation complete:"), len(e.Nodes))
	}
}

// lockedWriter serializes writes from concurrent scheduled runs.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
