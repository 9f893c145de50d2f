package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/orchestrator"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

type fakeVerifier struct {
	mu      sync.Mutex
	calls   []string
	outcome *orchestrator.Outcome
	err     error
}

func (f *fakeVerifier) CheckVerificationStatus(_ context.Context, taskID string) (*orchestrator.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, taskID)
	return f.outcome, f.err
}

func watchedTasks() []*models.Task {
	return []*models.Task{
		{ID: "t1", Title: "Add login", Status: models.TaskStatusInProgress, Metadata: models.TaskMetadata{PRNumber: 17}, AssignedWorkerID: "w1"},
		{ID: "t2", Title: "Fix docs", Status: models.TaskStatusReadyForReview, Metadata: models.TaskMetadata{PRNumber: 18}, AssignedWorkerID: "w2"},
		{ID: "t3", Title: "Pending push", Status: models.TaskStatusInProgress},
	}
}

func newModel(t *testing.T, v *fakeVerifier) (*WatchModel, *state.Memory) {
	t.Helper()
	store := state.NewMemory()
	for _, task := range watchedTasks() {
		require.NoError(t, store.CreateTask(context.Background(), task))
	}
	return NewWatchModel(context.Background(), store, v, WithInterval(time.Hour)), store
}

func TestWatch_RefreshListsWatchedTasks(t *testing.T) {
	m, store := newModel(t, &fakeVerifier{})
	require.NoError(t, store.CreateTask(context.Background(), &models.Task{ID: "t4", Title: "done", Status: models.TaskStatusCompleted}))

	msg := m.refresh()
	tm, ok := msg.(tasksMsg)
	require.True(t, ok)
	require.NoError(t, tm.err)
	assert.Len(t, tm.tasks, 3)
}

func TestWatch_ChecksOnlyOpenChangeRequests(t *testing.T) {
	m, _ := newModel(t, &fakeVerifier{})

	_, cmd := m.Update(tasksMsg{tasks: watchedTasks()})
	require.NotNil(t, cmd)

	assert.True(t, m.Checking("t1"))
	assert.False(t, m.Checking("t2"), "tasks in review are not re-checked")
	assert.False(t, m.Checking("t3"), "tasks without a change request are skipped")
	assert.Len(t, m.Rows(), 3)
	assert.Equal(t, "#17", m.Rows()[0][2])

	_, _ = m.Update(tasksMsg{tasks: watchedTasks()})
	assert.True(t, m.Checking("t1"), "in-flight check is not duplicated")
}

func TestWatch_CheckCommand(t *testing.T) {
	v := &fakeVerifier{outcome: &orchestrator.Outcome{Kind: orchestrator.OutcomeSuccess}}
	m, _ := newModel(t, v)

	msg := m.check("t1")()
	cm, ok := msg.(checkedMsg)
	require.True(t, ok)
	assert.Equal(t, "t1", cm.taskID)
	assert.Equal(t, []string{"t1"}, v.calls)
}

func TestWatch_LogsOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome *orchestrator.Outcome
		err     error
		want    string
	}{
		{"success", &orchestrator.Outcome{Kind: orchestrator.OutcomeSuccess}, nil, "ready for review"},
		{"retry", &orchestrator.Outcome{Kind: orchestrator.OutcomeRetry}, nil, "checks failed"},
		{"terminal", &orchestrator.Outcome{Kind: orchestrator.OutcomeTerminal, Reason: "budget spent"}, nil, "failed: budget spent"},
		{"timeout", nil, orchestrator.ErrVerificationTimeout, "still running"},
		{"error", nil, errors.New("gh exploded"), "gh exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newModel(t, &fakeVerifier{})
			m.checking["t1"] = true

			_, cmd := m.Update(checkedMsg{taskID: "t1", outcome: tt.outcome, err: tt.err})
			require.NotNil(t, cmd, "a finished check triggers a refresh")

			assert.False(t, m.Checking("t1"))
			require.Len(t, m.Logs(), 1)
			assert.Contains(t, m.Logs()[0], tt.want)
		})
	}
}

func TestWatch_ConfigReload(t *testing.T) {
	m, _ := newModel(t, &fakeVerifier{})

	m.Update(ConfigReloadedMsg{Interval: 5 * time.Second})
	assert.Equal(t, 5*time.Second, m.Interval())
	require.Len(t, m.Logs(), 1)

	m.Update(ConfigReloadedMsg{})
	assert.Equal(t, 5*time.Second, m.Interval(), "zero interval is ignored")
}

func TestWatch_LogIsBounded(t *testing.T) {
	m, _ := newModel(t, &fakeVerifier{})
	for i := 0; i < maxLogLines+5; i++ {
		m.appendLog("line")
	}
	assert.Len(t, m.Logs(), maxLogLines)
}

func TestWatch_Quit(t *testing.T) {
	m, _ := newModel(t, &fakeVerifier{})

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	}
}

func TestWatch_ViewShowsFooter(t *testing.T) {
	m, _ := newModel(t, &fakeVerifier{})
	m.Update(tasksMsg{tasks: watchedTasks()})

	view := m.View()
	assert.Contains(t, view, "hollon watch")
	assert.Contains(t, view, "q quit")
	assert.Contains(t, view, "Add login")
}
