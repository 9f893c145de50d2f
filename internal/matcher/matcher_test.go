package matcher

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

type fakeWorkload map[string]int

func (f fakeWorkload) ActiveTasks(_ context.Context, id string) (int, error) {
	return f[id], nil
}

type fakeKnowledge struct{ tags map[string]bool }

func (f fakeKnowledge) HasKnowledge(_ context.Context, tags []string) (bool, error) {
	for _, t := range tags {
		if f.tags[t] {
			return true, nil
		}
	}
	return false, nil
}

func TestComputeScore(t *testing.T) {
	backend := &models.Role{ID: "r", Capabilities: []string{"Go", "SQL"}, Tier: models.TierSenior}
	principal := &models.Role{ID: "p", Capabilities: []string{"go", "sql"}, Tier: models.TierPrincipal}

	tests := []struct {
		name string
		task *models.Task
		sig  Signals
		want Breakdown
	}{
		{
			name: "no required skills",
			task: &models.Task{},
			sig:  Signals{Role: backend, Status: models.WorkerStatusIdle},
			want: Breakdown{Skills: 25, Experience: 6, Workload: 10, Status: 10, Total: 51},
		},
		{
			name: "perfect match",
			task: &models.Task{RequiredSkills: []string{"go", "sql"}},
			sig:  Signals{Role: principal, Status: models.WorkerStatusIdle, HasKnowledge: true},
			want: Breakdown{Skills: 50, Knowledge: 20, Experience: 10, Workload: 10, Status: 10, Total: 100},
		},
		{
			name: "half the skills while working",
			task: &models.Task{RequiredSkills: []string{"go", "react"}},
			sig:  Signals{Role: backend, Status: models.WorkerStatusWorking, ActiveTasks: 3},
			want: Breakdown{Skills: 25, Experience: 6, Workload: 7, Status: 5, Total: 43},
		},
		{
			name: "overloaded paused worker",
			task: &models.Task{RequiredSkills: []string{"go"}},
			sig:  Signals{Role: backend, Status: models.WorkerStatusPaused, ActiveTasks: 14},
			want: Breakdown{Skills: 50, Experience: 6, Workload: 0, Status: 2, Total: 58},
		},
		{
			name: "missing role",
			task: &models.Task{RequiredSkills: []string{"go"}},
			sig:  Signals{Status: models.WorkerStatusError},
			want: Breakdown{Workload: 10, Total: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeScore(tt.task, tt.sig))
		})
	}
}

func TestComputeScore_AlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	skills := []string{"go", "sql", "react", "k8s", "rust"}
	tiers := []models.Tier{models.TierJunior, models.TierMid, models.TierSenior, models.TierLead, models.TierPrincipal, "unknown"}
	statuses := []models.WorkerStatus{models.WorkerStatusIdle, models.WorkerStatusWorking, models.WorkerStatusPaused, models.WorkerStatusError, "?"}

	pick := func() []string {
		var out []string
		for _, s := range skills {
			if rng.Intn(2) == 0 {
				out = append(out, s)
			}
		}
		return out
	}

	for i := 0; i < 500; i++ {
		task := &models.Task{RequiredSkills: pick()}
		sig := Signals{
			Role:         &models.Role{Capabilities: pick(), Tier: tiers[rng.Intn(len(tiers))]},
			Status:       statuses[rng.Intn(len(statuses))],
			ActiveTasks:  rng.Intn(30) - 5,
			HasKnowledge: rng.Intn(2) == 0,
		}
		got := ComputeScore(task, sig).Total
		if got < 0 || got > MaxScore {
			t.Fatalf("score %v out of range for %+v", got, sig)
		}
	}
}

func seedRoles(t *testing.T, store *state.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRole(ctx, &models.Role{ID: "backend", Capabilities: []string{"go", "sql"}, Tier: models.TierSenior}))
	require.NoError(t, store.CreateRole(ctx, &models.Role{ID: "frontend", Capabilities: []string{"ts", "react"}, Tier: models.TierMid}))
}

func TestScore_UsesStores(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	seedRoles(t, store)
	require.NoError(t, store.CreateDocument(ctx, &models.Document{
		ID: "d1", Title: "sql notes", Type: models.DocumentKnowledge, Tags: []string{"SQL"},
	}))
	require.NoError(t, store.CreateTask(ctx, &models.Task{
		ID: "busy", Status: models.TaskStatusInProgress, AssignedWorkerID: "w1",
	}))
	require.NoError(t, store.CreateTask(ctx, &models.Task{
		ID: "old", Status: models.TaskStatusCompleted, AssignedWorkerID: "w1",
	}))

	m := New(store, store, WithKnowledgeIndex(StoreKnowledge{Documents: store}))
	w := &models.Worker{ID: "w1", RoleID: "backend", Status: models.WorkerStatusWorking}

	got, err := m.Score(ctx, &models.Task{ID: "t", RequiredSkills: []string{"sql"}}, w)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{Skills: 50, Knowledge: 20, Experience: 6, Workload: 9, Status: 5, Total: 90}, got)
}

func TestRecommendWorker(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	seedRoles(t, store)

	pool := []*models.Worker{
		{ID: "w-z", RoleID: "backend", Status: models.WorkerStatusIdle, Lifecycle: models.LifecyclePermanent},
		{ID: "w-y", RoleID: "backend", Status: models.WorkerStatusIdle, Lifecycle: models.LifecyclePermanent},
		{ID: "w-x", RoleID: "backend", Status: models.WorkerStatusIdle, Lifecycle: models.LifecyclePermanent},
		{ID: "w-front", RoleID: "frontend", Status: models.WorkerStatusIdle, Lifecycle: models.LifecyclePermanent},
		{ID: "w-front2", RoleID: "frontend", Status: models.WorkerStatusWorking, Lifecycle: models.LifecyclePermanent},
		{ID: "w-eph", RoleID: "backend", Status: models.WorkerStatusIdle, Lifecycle: models.LifecycleEphemeral},
		{ID: "w-paused", RoleID: "backend", Status: models.WorkerStatusPaused, Lifecycle: models.LifecyclePermanent},
	}
	// w-z and w-y both hit the workload floor, so their scores tie.
	load := fakeWorkload{"w-z": 10, "w-y": 11, "w-x": 12}
	m := New(store, store, WithWorkloadCounter(load))

	rec, err := m.RecommendWorker(ctx, &models.Task{ID: "t", RequiredSkills: []string{"go"}}, pool)
	require.NoError(t, err)

	assert.Equal(t, "w-z", rec.Best.Worker.ID)
	require.Len(t, rec.Alternatives, 3)
	assert.Equal(t, "w-y", rec.Alternatives[0].Worker.ID)
	assert.Equal(t, "w-x", rec.Alternatives[1].Worker.ID)
	for _, alt := range rec.Alternatives {
		assert.NotEqual(t, "w-eph", alt.Worker.ID)
		assert.NotEqual(t, "w-paused", alt.Worker.ID)
	}
}

func TestRecommendWorker_NoCandidates(t *testing.T) {
	store := state.NewMemory()
	m := New(store, store)
	pool := []*models.Worker{{ID: "w", Status: models.WorkerStatusError}}

	_, err := m.RecommendWorker(context.Background(), &models.Task{ID: "t"}, pool)
	assert.True(t, errors.Is(err, ErrNoCandidates), "got %v", err)
}

func TestAssignProject(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	seedRoles(t, store)

	workers := []*models.Worker{
		{ID: "w1", Name: "bea", RoleID: "backend", Status: models.WorkerStatusIdle},
		{ID: "w2", Name: "fay", RoleID: "frontend", Status: models.WorkerStatusIdle},
	}
	tasks := []*models.Task{
		{ID: "t1", Priority: models.PriorityHigh, Status: models.TaskStatusReady, RequiredSkills: []string{"go"}},
		{ID: "t2", Priority: models.PriorityCritical, Status: models.TaskStatusReady, RequiredSkills: []string{"react"}},
		{ID: "t3", Status: models.TaskStatusInProgress, AssignedWorkerID: "w1"},
	}
	for _, task := range tasks {
		require.NoError(t, store.CreateTask(ctx, task))
	}

	m := New(store, store)
	report, err := m.AssignProject(ctx, tasks, workers)
	require.NoError(t, err)

	assert.Equal(t, []Assignment{
		{TaskID: "t2", WorkerID: "w2", Score: 74},
		{TaskID: "t1", WorkerID: "w1", Score: 75},
	}, report.Assignments)
	assert.InDelta(t, 74.5, report.AverageQuality, 0.001)
	assert.Empty(t, report.Warnings)

	stored, err := store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "w1", stored.AssignedWorkerID)
	assert.Empty(t, stored.AssignedTeamID)
}

func TestAssignProject_Warnings(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	seedRoles(t, store)

	workers := []*models.Worker{{ID: "w1", Name: "bea", RoleID: "backend", Status: models.WorkerStatusWorking}}
	task := &models.Task{ID: "t1", Status: models.TaskStatusReady, RequiredSkills: []string{"rust"}}
	require.NoError(t, store.CreateTask(ctx, task))

	m := New(store, store, WithWorkloadCounter(fakeWorkload{"w1": 9}))
	report, err := m.AssignProject(ctx, []*models.Task{task}, workers)
	require.NoError(t, err)

	require.Len(t, report.Assignments, 1)
	assert.Len(t, report.Warnings, 2, "expected low-quality and overload warnings: %v", report.Warnings)
	assert.Contains(t, report.Warnings[0], "low match score")
	assert.Contains(t, report.Warnings[1], "overloaded with 10 active tasks")
}

func TestAssignProject_NoWorkers(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	task := &models.Task{ID: "t1", Status: models.TaskStatusReady}
	require.NoError(t, store.CreateTask(ctx, task))

	report, err := New(store, store).AssignProject(ctx, []*models.Task{task}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, report.Unassigned)
	assert.Zero(t, report.AverageQuality)
}

func TestRebalanceWorkload(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	seedRoles(t, store)

	workers := []*models.Worker{
		{ID: "w1", Name: "bea", RoleID: "backend", Status: models.WorkerStatusIdle},
		{ID: "w2", Name: "fay", RoleID: "frontend", Status: models.WorkerStatusIdle},
	}
	// Everything piled onto w1, including a react task.
	for _, task := range []*models.Task{
		{ID: "go-1", Status: models.TaskStatusReady, AssignedWorkerID: "w1", RequiredSkills: []string{"go"}},
		{ID: "ui-1", Status: models.TaskStatusPending, AssignedWorkerID: "w1", RequiredSkills: []string{"react"}},
		{ID: "running", Status: models.TaskStatusInProgress, AssignedWorkerID: "w1"},
	} {
		require.NoError(t, store.CreateTask(ctx, task))
	}

	report, err := New(store, store).RebalanceWorkload(ctx, workers)
	require.NoError(t, err)
	assert.Len(t, report.Assignments, 2)

	ui, err := store.GetTask(ctx, "ui-1")
	require.NoError(t, err)
	assert.Equal(t, "w2", ui.AssignedWorkerID)

	running, err := store.GetTask(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, "w1", running.AssignedWorkerID, "in-progress work must not move")
}
