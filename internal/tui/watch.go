package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/hollon/internal/orchestrator"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

const maxLogLines = 8

// TaskLister lists persisted tasks.
type TaskLister interface {
	ListTasks(ctx context.Context, f state.TaskFilter) ([]*models.Task, error)
}

// Verifier advances verification of a task's change request.
type Verifier interface {
	CheckVerificationStatus(ctx context.Context, taskID string) (*orchestrator.Outcome, error)
}

// ConfigReloadedMsg carries settings that changed on disk.
type ConfigReloadedMsg struct {
	Interval time.Duration
}

// ErrorMsg reports a failure from outside the model, such as the config watcher.
type ErrorMsg struct {
	Err error
}

type tickMsg struct{}

type tasksMsg struct {
	tasks []*models.Task
	err   error
}

type checkedMsg struct {
	taskID  string
	outcome *orchestrator.Outcome
	err     error
}

// WatchOption configures a WatchModel.
type WatchOption func(*WatchModel)

// WithInterval sets the delay between refreshes.
func WithInterval(d time.Duration) WatchOption {
	return func(m *WatchModel) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WatchModel is the bubbletea model for the verification dashboard.
type WatchModel struct {
	ctx      context.Context
	tasks    TaskLister
	verifier Verifier
	interval time.Duration

	spinner spinner.Model
	table   table.Model
	footer  *Footer

	checking map[string]bool
	logs     []string
	failed   int
	width    int
}

var watchedStatuses = []models.TaskStatus{models.TaskStatusInProgress, models.TaskStatusReadyForReview}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	logStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// NewWatchModel creates the dashboard. ctx bounds every store and
// verification call the model issues.
func NewWatchModel(ctx context.Context, tasks TaskLister, verifier Verifier, opts ...WatchOption) *WatchModel {
	cols := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "STATUS", Width: 18},
		{Title: "PR", Width: 6},
		{Title: "WORKER", Width: 10},
		{Title: "TITLE", Width: 40},
	}
	m := &WatchModel{
		ctx:      ctx,
		tasks:    tasks,
		verifier: verifier,
		interval: 30 * time.Second,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		table:    table.New(table.WithColumns(cols), table.WithHeight(12), table.WithFocused(true)),
		footer:   NewFooter(),
		checking: make(map[string]bool),
		width:    80,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init starts the spinner and the first refresh.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh)
}

// Update handles messages.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.footer.SetMessage("refreshing", false)
			return m, m.refresh
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.footer.SetWidth(msg.Width)
		return m, nil

	case tickMsg:
		return m, m.refresh

	case tasksMsg:
		next := m.schedule()
		if msg.err != nil {
			m.footer.SetMessage(msg.err.Error(), true)
			return m, next
		}
		m.footer.SetMessage("", false)
		m.setRows(msg.tasks)
		cmds := []tea.Cmd{next}
		for _, t := range msg.tasks {
			if t.Status != models.TaskStatusInProgress || t.Metadata.PRNumber == 0 || m.checking[t.ID] {
				continue
			}
			m.checking[t.ID] = true
			cmds = append(cmds, m.check(t.ID))
		}
		return m, tea.Batch(cmds...)

	case checkedMsg:
		delete(m.checking, msg.taskID)
		m.logOutcome(msg)
		return m, m.refresh

	case ConfigReloadedMsg:
		if msg.Interval > 0 && msg.Interval != m.interval {
			m.interval = msg.Interval
			m.appendLog(fmt.Sprintf("poll interval now %s", msg.Interval))
		}
		return m, nil

	case ErrorMsg:
		m.footer.SetMessage(msg.Err.Error(), true)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m *WatchModel) View() string {
	header := titleStyle.Render("hollon watch")
	if len(m.checking) > 0 {
		header += " " + m.spinner.View() + logStyle.Render(fmt.Sprintf(" checking %d", len(m.checking)))
	}
	parts := []string{header, m.table.View()}
	for _, l := range m.logs {
		parts = append(parts, logStyle.Render(l))
	}
	parts = append(parts, "", m.footer.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Checking reports whether verification of taskID is in flight.
func (m *WatchModel) Checking(taskID string) bool { return m.checking[taskID] }

// Interval returns the current refresh interval.
func (m *WatchModel) Interval() time.Duration { return m.interval }

// Logs returns the recent activity lines, oldest first.
func (m *WatchModel) Logs() []string { return m.logs }

// Rows returns the rendered table rows.
func (m *WatchModel) Rows() []table.Row { return m.table.Rows() }

func (m *WatchModel) refresh() tea.Msg {
	tasks, err := m.tasks.ListTasks(m.ctx, state.TaskFilter{Statuses: watchedStatuses})
	return tasksMsg{tasks: tasks, err: err}
}

func (m *WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *WatchModel) check(taskID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.verifier.CheckVerificationStatus(m.ctx, taskID)
		return checkedMsg{taskID: taskID, outcome: out, err: err}
	}
}

func (m *WatchModel) setRows(tasks []*models.Task) {
	rows := make([]table.Row, 0, len(tasks))
	counts := TaskCounts{Failed: m.failed}
	for _, t := range tasks {
		pr := ""
		if t.Metadata.PRNumber > 0 {
			pr = fmt.Sprintf("#%d", t.Metadata.PRNumber)
		}
		switch t.Status {
		case models.TaskStatusInProgress:
			counts.Verifying++
		case models.TaskStatusReadyForReview:
			counts.InReview++
		}
		rows = append(rows, table.Row{
			models.ShortID(t.ID), string(t.Status), pr, models.ShortID(t.AssignedWorkerID), t.Title,
		})
	}
	m.table.SetRows(rows)
	m.footer.SetTaskCounts(counts)
}

func (m *WatchModel) logOutcome(msg checkedMsg) {
	id := models.ShortID(msg.taskID)
	switch {
	case errors.Is(msg.err, orchestrator.ErrVerificationTimeout):
		m.appendLog(id + ": checks still running")
	case msg.err != nil:
		m.appendLog(id + ": " + msg.err.Error())
	case msg.outcome == nil:
	case msg.outcome.Kind == orchestrator.OutcomeSuccess:
		m.appendLog(id + ": ready for review")
	case msg.outcome.Kind == orchestrator.OutcomeRetry:
		m.appendLog(id + ": checks failed, feedback recorded for the next attempt")
	case msg.outcome.Kind == orchestrator.OutcomeTerminal:
		m.failed++
		m.appendLog(id + ": failed: " + msg.outcome.Reason)
	}
}

func (m *WatchModel) appendLog(line string) {
	m.logs = append(m.logs, time.Now().Format("15:04:05")+" "+line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}
