package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// render prints v as YAML when --format yaml is set, otherwise calls text.
func render(v any, text func()) error {
	switch flagFormat {
	case "yaml":
		return writeYAML(os.Stdout, v)
	case "text", "":
		text()
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or yaml)", flagFormat)
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

func heading(s string) string { return headingStyle.Render(s) }

var taskStatusColors = map[models.TaskStatus]lipgloss.Color{
	models.TaskStatusPending:        lipgloss.Color("245"),
	models.TaskStatusReady:          lipgloss.Color("12"),
	models.TaskStatusBlocked:        lipgloss.Color("214"),
	models.TaskStatusInProgress:     lipgloss.Color("11"),
	models.TaskStatusReadyForReview: lipgloss.Color("13"),
	models.TaskStatusCompleted:      lipgloss.Color("10"),
	models.TaskStatusFailed:         lipgloss.Color("9"),
	models.TaskStatusCancelled:      lipgloss.Color("240"),
}

func statusText(s models.TaskStatus) string {
	c, ok := taskStatusColors[s]
	if !ok {
		return string(s)
	}
	return lipgloss.NewStyle().Foreground(c).Render(string(s))
}

// table renders rows in aligned columns. The first row is the header.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, c := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}
	var b strings.Builder
	for n, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			s := cellStyle.Width(widths[i] + 2).Render(c)
			if n == 0 {
				s = labelStyle.Render(s)
			}
			cells[i] = s
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:runeCut(s, n)]
	}
	return s[:runeCut(s, n-3)] + "..."
}

// runeCut backs n off to the start of the rune it falls in.
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
