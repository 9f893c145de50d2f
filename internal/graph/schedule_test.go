package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/pkg/models"
)

func TestGroupForParallelExecution_DisjointFilesShareGroup(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", AffectedFiles: []string{"src/a.ts"}},
		{ID: "b", AffectedFiles: []string{"src/b.ts"}},
	}
	groups := GroupForParallelExecution(tasks)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestGroupForParallelExecution_SharedFileSplits(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", AffectedFiles: []string{"src/a.ts"}},
		{ID: "b", AffectedFiles: []string{"src/a.ts"}},
	}
	groups := GroupForParallelExecution(tasks)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0][0].ID)
	assert.Equal(t, "b", groups[1][0].ID)
}

func TestGroupForParallelExecution_PriorityOrder(t *testing.T) {
	tasks := []*models.Task{
		{ID: "low", Priority: models.PriorityLow, AffectedFiles: []string{"x"}},
		{ID: "crit", Priority: models.PriorityCritical, AffectedFiles: []string{"x"}},
		{ID: "high", Priority: models.PriorityHigh, AffectedFiles: []string{"y"}},
	}
	groups := GroupForParallelExecution(tasks)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"crit", "high"}, ids(groups[0]))
	assert.Equal(t, []string{"low"}, ids(groups[1]))
}

func TestGroupForParallelExecution_NoOverlapWithinGroups(t *testing.T) {
	files := []string{"a", "b", "c", "d"}
	var tasks []*models.Task
	for i := 0; i < 16; i++ {
		tasks = append(tasks, &models.Task{
			ID:            string(rune('A' + i)),
			AffectedFiles: []string{files[i%4], files[(i/4)%4]},
		})
	}

	total := 0
	for _, group := range GroupForParallelExecution(tasks) {
		seen := make(map[string]string)
		for _, task := range group {
			for _, f := range task.AffectedFiles {
				if owner, ok := seen[f]; ok && owner != task.ID {
					t.Fatalf("tasks %s and %s share %s in one group", owner, task.ID, f)
				}
				seen[f] = task.ID
			}
			total++
		}
	}
	assert.Equal(t, len(tasks), total, "every task placed exactly once")
}

func TestGroupForParallelExecution_Empty(t *testing.T) {
	assert.Empty(t, GroupForParallelExecution(nil))
}

func TestDetectFileConflicts(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t2", AffectedFiles: []string{"src/a.ts", "src/c.ts"}},
		{ID: "t1", AffectedFiles: []string{"src/a.ts"}},
		{ID: "t3", AffectedFiles: []string{"src/b.ts", "src/c.ts", "src/c.ts"}},
	}
	got := DetectFileConflicts(tasks)
	want := []FileConflict{
		{File: "src/a.ts", TaskIDs: []string{"t1", "t2"}},
		{File: "src/c.ts", TaskIDs: []string{"t2", "t3"}},
	}
	assert.Equal(t, want, got)
}

func TestComputeReadySet(t *testing.T) {
	all := []*models.Task{
		{ID: "done", Status: models.TaskStatusCompleted},
		{ID: "running", Status: models.TaskStatusInProgress},
		{ID: "a", DependsOn: []string{"done"}},
		{ID: "b", DependsOn: []string{"done", "running"}},
		{ID: "c"},
		{ID: "d", DependsOn: []string{"missing"}},
	}
	ready := ComputeReadySet(all[2:], LookupFromTasks(all))
	assert.Equal(t, []string{"a", "c"}, ids(ready))
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
