// Package observability provides formatted terminal output for timelines and application records.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/job-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow caps step details and documents in a listing
	maxItemsToShow = 5
	// timeLayout is used for entry timestamps
	timeLayout = "15:04:05"
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4), boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to width runes, marking the cut with "..."
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// EntryMarker returns the glyph shown in front of an entry
func EntryMarker(e types.TimelineEntry) string {
	switch e.Kind {
	case types.EntryError:
		return "✗"
	case types.EntryMessage:
		return "•"
	}
	switch e.Status {
	case types.StatusSuccess:
		return "✓"
	case types.StatusPending:
		return "…"
	}
	return "-"
}

// FormatEntry renders one entry as a single line
func FormatEntry(e types.TimelineEntry) string {
	line := fmt.Sprintf("[%s] %s %s", e.Timestamp.Format(timeLayout), EntryMarker(e), e.Content)
	if e.StepCount > 1 {
		line += fmt.Sprintf(" (%d steps)", e.StepCount)
	}
	return line
}

// PrintEntry writes one entry line outside of a box, for live output
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintEntry(e types.TimelineEntry) {
	fmt.Fprintln(p.out, FormatEntry(e))
}

// PrintTimeline outputs the whole log. Expanded entries also list their
// step details and metadata; the placeholder entry is marked as in progress.
func (p *Printer) PrintTimeline(entries []types.TimelineEntry, expanded map[string]bool, placeholderID string) {
	if len(entries) == 0 {
		p.printBox("TIMELINE", "(no activity yet)")
		return
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(FormatEntry(e))
		if e.ID == placeholderID {
			sb.WriteString(" ⏳")
		}
		sb.WriteString("\n")
		if !expanded[e.ID] {
			continue
		}
		count := min(len(e.StepDetails), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("    · %s\n", e.StepDetails[i]))
		}
		if len(e.StepDetails) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("    ... and %d more\n", len(e.StepDetails)-maxItemsToShow))
		}
		for _, key := range sortedKeys(e.Metadata) {
			sb.WriteString(fmt.Sprintf("    %s: %v\n", key, e.Metadata[key]))
		}
	}

	p.printBox(fmt.Sprintf("TIMELINE (%d entries)", len(entries)), sb.String())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrintRecord outputs a summary of a fetched application record.
func (p *Printer) PrintRecord(record *types.ApplicationRecord) {
	if record == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Application: %s\n", record.Identifier))
	if record.Status != "" {
		sb.WriteString(fmt.Sprintf("Status:      %s\n", record.Status))
	}
	if !record.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Created:     %s\n", record.CreatedAt.Format("2006-01-02 15:04")))
	}
	sb.WriteString(fmt.Sprintf("Events:      %d\n", len(record.Events)))

	if job := record.Job; !job.IsEmpty() {
		sb.WriteString("\n")
		if job.Title != "" {
			sb.WriteString(fmt.Sprintf("Role:     %s\n", job.Title))
		}
		if job.Company != "" {
			sb.WriteString(fmt.Sprintf("Company:  %s\n", job.Company))
		}
		if job.Location != "" {
			sb.WriteString(fmt.Sprintf("Location: %s\n", job.Location))
		}
	}

	if len(record.Documents) > 0 {
		sb.WriteString("\nDocuments:\n")
		count := min(len(record.Documents), maxItemsToShow)
		for i := 0; i < count; i++ {
			d := record.Documents[i]
			name := d.Name
			if name == "" {
				name = d.ID
			}
			sb.WriteString(fmt.Sprintf("  • %s (%s)\n", name, d.Type))
		}
		if len(record.Documents) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(record.Documents)-maxItemsToShow))
		}
	}

	if res := record.AutomationResult; res != nil {
		outcome := "failed"
		if res.Success {
			outcome = "succeeded"
		}
		sb.WriteString(fmt.Sprintf("\nAutomation %s\n", outcome))
	}

	p.printBox("APPLICATION", sb.String())
}
