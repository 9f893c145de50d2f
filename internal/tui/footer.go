package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// TaskCounts holds the count of watched tasks in each state.
type TaskCounts struct {
	Verifying int
	InReview  int
	Failed    int
}

// Footer renders the status bar and keyboard hints.
type Footer struct {
	message string
	isError bool
	width   int
	counts  TaskCounts

	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetMessage sets the status message.
func (f *Footer) SetMessage(message string, isError bool) {
	f.message = message
	f.isError = isError
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetTaskCounts updates the task counts for display.
func (f *Footer) SetTaskCounts(counts TaskCounts) {
	f.counts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	left := fmt.Sprintf("⏳%d", f.counts.Verifying)
	left += f.successStyle.Render(fmt.Sprintf(" ✓%d", f.counts.InReview))
	if f.counts.Failed > 0 {
		left += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.counts.Failed))
	}

	sep := f.separatorStyle.Render(" │ ")
	if f.message != "" {
		if f.isError {
			left += sep + f.errorStyle.Render(f.message)
		} else {
			left += sep + f.hintStyle.Render(f.message)
		}
	}
	return left + sep + f.hintStyle.Render("r refresh │ q quit")
}
