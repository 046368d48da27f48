// Package report renders process tables and scan results for the
// terminal.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/ChrisB0-2/watch-sage/internal/core"
	"github.com/ChrisB0-2/watch-sage/internal/procwatch"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Printer renders report sections to a writer.
type Printer struct {
	w       io.Writer
	color   bool
	verbose bool
}

// NewPrinter creates a printer with colors enabled.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: true}
}

// DisableColor turns off ANSI escape sequences.
func (p *Printer) DisableColor() {
	p.color = false
}

// SetVerbose enables per-instance fdinfo paths in the process table.
func (p *Printer) SetVerbose(v bool) {
	p.verbose = v
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

// PrintLimits renders the kernel inotify limits. Unreadable limits are
// shown as "?".
func (p *Printer) PrintLimits(l procwatch.Limits) {
	fmt.Fprintln(p.w, p.paint(ansiBold+ansiYellow, "INotify Limits:"))
	fmt.Fprintf(p.w, "  max_queued_events  %s\n", limitString(l.MaxQueuedEvents))
	fmt.Fprintf(p.w, "  max_user_instances %s\n", limitString(l.MaxUserInstances))
	fmt.Fprintf(p.w, "  max_user_watches   %s\n", limitString(l.MaxUserWatches))
}

func limitString(n int) string {
	if n < 0 {
		return "?"
	}
	return humanize.Comma(int64(n))
}

// PrintProcesses renders the table of inotify-holding processes plus
// watch and instance totals. When the kernel exposes no per-watch
// fdinfo data the watch column is omitted.
func (p *Printer) PrintProcesses(procs []*procwatch.ProcInfo, kernelHasWatchInfo bool) {
	if len(procs) == 0 {
		fmt.Fprintln(p.w, "No inotify instances found.")
		return
	}

	pidW := len("Pid")
	uidW := len("Uid")
	appW := len("App")
	for _, proc := range procs {
		pidW = max(pidW, len(strconv.Itoa(proc.PID)))
		uidW = max(uidW, len(strconv.Itoa(proc.UID)))
		appW = max(appW, len(proc.AppName))
	}

	header := fmt.Sprintf("%*s %*s %-*s", pidW, "Pid", uidW, "Uid", appW, "App")
	if kernelHasWatchInfo {
		header += fmt.Sprintf(" %9s", "Watches")
	}
	header += fmt.Sprintf(" %9s", "Instances")
	fmt.Fprintln(p.w, p.paint(ansiBold+ansiYellow, header))

	for _, proc := range procs {
		line := fmt.Sprintf("%*d %*d %-*s", pidW, proc.PID, uidW, proc.UID, appW, proc.AppName)
		if kernelHasWatchInfo {
			line += fmt.Sprintf(" %9d", proc.Watches)
		}
		line += fmt.Sprintf(" %9d", proc.Instances)

		if proc.Selected {
			line = p.paint(ansiCyan, line)
		}
		fmt.Fprintln(p.w, line)

		if p.verbose {
			for _, fdinfo := range proc.FDInfoPaths {
				fmt.Fprintf(p.w, "    %s\n", fdinfo)
			}
		}
	}

	watches, instances := procwatch.Totals(procs)
	fmt.Fprintln(p.w)
	if kernelHasWatchInfo {
		fmt.Fprintf(p.w, "Total inotify Watches:   %s\n", humanize.Comma(int64(watches)))
	}
	fmt.Fprintf(p.w, "Total inotify Instances: %s\n", humanize.Comma(int64(instances)))
}

// PrintScanHeader announces the scan phase.
func (p *Printer) PrintScanHeader(root string, threads int) {
	fmt.Fprintf(p.w, "\nSearching %s for watched inodes... (%d threads)\n",
		p.paint(ansiBold, "'"+root+"'"), threads)
}

// PrintMatches renders found paths and the scan summary line. Matches
// arrive sorted; directories carry a trailing separator.
func (p *Printer) PrintMatches(res core.ScanResult) {
	for _, m := range res.Matches {
		fmt.Fprintf(p.w, "%9d [%s] %s\n", m.Inode, m.Dev, p.paint(ansiCyan, m.Path))
	}

	fmt.Fprintf(p.w, "Scanned %s dirs in %.2f seconds\n",
		humanize.Comma(int64(res.DirsScanned)), res.Elapsed.Seconds())
}
