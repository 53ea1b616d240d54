// Package report renders host usage statistics collected by the fetch
// registry.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"harvester/internal/fetch"
)

// HostUsage renders the registry snapshot as a table. Rows arrive sorted by
// attempts descending from the registry; percentages are of total attempts.
func HostUsage(w io.Writer, stats []fetch.HostStat) {
	var total int64
	for _, stat := range stats {
		total += stat.Attempts
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if styledWriter(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	tw.AppendHeader(table.Row{"host", "attempts", "share", "supported"})
	for _, stat := range stats {
		share := "0.0%"
		if total > 0 {
			share = fmt.Sprintf("%.1f%%", float64(stat.Attempts)/float64(total)*100)
		}
		supported := "yes"
		if !stat.Supported {
			supported = "no"
		}
		tw.AppendRow(table.Row{stat.Match, stat.Attempts, share, supported})
	}
	tw.AppendFooter(table.Row{"total", total, "", ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	tw.Render()
}

// Unsupported returns the match strings that saw attempts but have no
// registered fetcher, one per line, for quick allow-list triage.
func Unsupported(stats []fetch.HostStat) string {
	var sb strings.Builder
	for _, stat := range stats {
		if stat.Supported {
			continue
		}
		fmt.Fprintf(&sb, "%s (%d)\n", stat.Match, stat.Attempts)
	}
	return sb.String()
}

func styledWriter(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
