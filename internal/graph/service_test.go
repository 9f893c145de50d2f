package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

func seed(t *testing.T, tasks ...*models.Task) *state.Memory {
	t.Helper()
	store := state.NewMemory()
	for _, task := range tasks {
		require.NoError(t, store.CreateTask(context.Background(), task))
	}
	return store
}

func TestService_AddDependency(t *testing.T) {
	ctx := context.Background()
	store := seed(t,
		&models.Task{ID: "a", Status: models.TaskStatusInProgress},
		&models.Task{ID: "b", Status: models.TaskStatusReady},
	)
	svc := NewService(store, nil)

	require.NoError(t, svc.AddDependency(ctx, "b", "a"))

	b, err := store.GetTask(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, b.DependsOn)
	assert.Equal(t, models.TaskStatusBlocked, b.Status)

	err = svc.AddDependency(ctx, "a", "b")
	assert.True(t, errors.Is(err, ErrCycleDetected), "got %v", err)

	a, err := store.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, a.DependsOn, "rejected edge must not be persisted")
}

func TestService_AddDependency_NotFound(t *testing.T) {
	svc := NewService(seed(t, &models.Task{ID: "a"}), nil)
	err := svc.AddDependency(context.Background(), "a", "ghost")
	assert.True(t, errors.Is(err, state.ErrNotFound), "got %v", err)
}

func TestService_RemoveDependencyUnblocks(t *testing.T) {
	ctx := context.Background()
	store := seed(t,
		&models.Task{ID: "a", Status: models.TaskStatusInProgress},
		&models.Task{ID: "b", Status: models.TaskStatusBlocked, DependsOn: []string{"a"}},
	)
	svc := NewService(store, nil)

	require.NoError(t, svc.RemoveDependency(ctx, "b", "a"))
	b, err := store.GetTask(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusReady, b.Status)
	assert.Empty(t, b.DependsOn)
}

func TestService_UnblockDependents(t *testing.T) {
	ctx := context.Background()
	store := seed(t,
		&models.Task{ID: "a", Status: models.TaskStatusCompleted},
		&models.Task{ID: "b", Status: models.TaskStatusInProgress},
		&models.Task{ID: "c", Status: models.TaskStatusBlocked, DependsOn: []string{"a"}},
		&models.Task{ID: "d", Status: models.TaskStatusBlocked, DependsOn: []string{"a", "b"}},
	)
	svc := NewService(store, nil)

	promoted, err := svc.UnblockDependents(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(promoted))

	d, err := store.GetTask(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, d.Status)
}

func TestService_LoadAndReady(t *testing.T) {
	ctx := context.Background()
	store := seed(t,
		&models.Task{ID: "a", Status: models.TaskStatusCompleted},
		&models.Task{ID: "b", Status: models.TaskStatusBlocked, DependsOn: []string{"a", "deleted"}},
		&models.Task{ID: "c", Status: models.TaskStatusReady, DependsOn: []string{"a"}},
		&models.Task{ID: "agg", Type: models.TaskTypeAggregate, Status: models.TaskStatusBlocked},
	)
	svc := NewService(store, nil)

	g, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Size())
	assert.Equal(t, []string{"a"}, g.GetDependencies("b"))

	ready, err := svc.ReadyTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(ready))
}
