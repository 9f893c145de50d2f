package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// runStoreConformance exercises the behaviour every Store backend must share.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("task round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := &models.Task{
			ID:                 "task-1",
			Title:              "Add login",
			Description:        "Implement the login endpoint",
			AcceptanceCriteria: []string{"returns 200"},
			Type:               models.TaskTypeImplementation,
			Status:             models.TaskStatusReady,
			Priority:           models.PriorityHigh,
			DependsOn:          []string{"task-0"},
			AssignedWorkerID:   "w1",
			Depth:              1,
			RequiredSkills:     []string{"go"},
			AffectedFiles:      []string{"auth/login.go"},
			Tags:               []string{"auth"},
			Metadata:           models.TaskMetadata{CIRetryCount: 1, LastCIFeedback: "lint failed"},
		}
		require.NoError(t, s.CreateTask(ctx, task))
		assert.Equal(t, 1, task.Version)

		got, err := s.GetTask(ctx, "task-1")
		require.NoError(t, err)
		opts := cmpopts.EquateApproxTime(time.Millisecond)
		if diff := cmp.Diff(task, got, opts); diff != "" {
			t.Errorf("GetTask mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("get missing task", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTask(context.Background(), "nope")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("update advances version and rejects stale copies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t", Title: "x", Status: models.TaskStatusPending}))

		a, err := s.GetTask(ctx, "t")
		require.NoError(t, err)
		b, err := s.GetTask(ctx, "t")
		require.NoError(t, err)

		a.Status = models.TaskStatusInProgress
		require.NoError(t, s.UpdateTask(ctx, a))
		assert.Equal(t, 2, a.Version)

		b.Status = models.TaskStatusCancelled
		err = s.UpdateTask(ctx, b)
		assert.True(t, errors.Is(err, ErrVersionConflict), "got %v", err)

		got, err := s.GetTask(ctx, "t")
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusInProgress, got.Status)
	})

	t.Run("update missing task", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateTask(context.Background(), &models.Task{ID: "ghost", Version: 1})
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("assignment conflict rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.CreateTask(context.Background(), &models.Task{ID: "t", AssignedWorkerID: "w", AssignedTeamID: "team"})
		assert.True(t, errors.Is(err, models.ErrAssignmentConflict), "got %v", err)
	})

	t.Run("list tasks by filter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tasks := []*models.Task{
			{ID: "a", Status: models.TaskStatusReady, AssignedWorkerID: "w1", ParentID: "p"},
			{ID: "b", Status: models.TaskStatusPending, AssignedTeamID: "team1", ParentID: "p"},
			{ID: "c", Status: models.TaskStatusCompleted, AssignedWorkerID: "w1"},
			{ID: "d", Status: models.TaskStatusPending},
		}
		for _, task := range tasks {
			task.Title = task.ID
			task.Type = models.TaskTypeImplementation
			require.NoError(t, s.CreateTask(ctx, task))
		}

		tests := []struct {
			name   string
			filter TaskFilter
			want   []string
		}{
			{"all", TaskFilter{}, []string{"a", "b", "c", "d"}},
			{"by worker", TaskFilter{AssignedWorkerID: "w1"}, []string{"a", "c"}},
			{"by team", TaskFilter{AssignedTeamID: "team1"}, []string{"b"}},
			{"by parent", TaskFilter{ParentID: "p"}, []string{"a", "b"}},
			{"by statuses", TaskFilter{Statuses: []models.TaskStatus{models.TaskStatusPending, models.TaskStatusReady}}, []string{"a", "b", "d"}},
			{"unassigned", TaskFilter{Unassigned: true}, []string{"d"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ListTasks(ctx, tt.filter)
				require.NoError(t, err)
				assert.ElementsMatch(t, tt.want, taskIDs(got))
			})
		}
	})

	t.Run("delete task", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t", Title: "x"}))
		require.NoError(t, s.DeleteTask(ctx, "t"))
		assert.True(t, errors.Is(s.DeleteTask(ctx, "t"), ErrNotFound))
	})

	t.Run("workers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		workers := []*models.Worker{
			{ID: "w1", Name: "alice", Lifecycle: models.LifecyclePermanent, Status: models.WorkerStatusIdle, TeamID: "t1"},
			{ID: "w2", Name: "bob", Lifecycle: models.LifecycleEphemeral, Status: models.WorkerStatusWorking, TeamID: "t1", Depth: 1, ParentWorkerID: "w1"},
			{ID: "w3", Name: "carol", Lifecycle: models.LifecyclePermanent, Status: models.WorkerStatusPaused, TeamID: "t2"},
		}
		for _, w := range workers {
			require.NoError(t, s.CreateWorker(ctx, w))
		}

		got, err := s.ListWorkers(ctx, WorkerFilter{TeamID: "t1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"w1", "w2"}, workerIDs(got))

		got, err = s.ListWorkers(ctx, WorkerFilter{Lifecycle: models.LifecyclePermanent, Statuses: []models.WorkerStatus{models.WorkerStatusIdle}})
		require.NoError(t, err)
		assert.Equal(t, []string{"w1"}, workerIDs(got))

		w, err := s.GetWorker(ctx, "w2")
		require.NoError(t, err)
		assert.Equal(t, "w1", w.ParentWorkerID)
		w.Status = models.WorkerStatusIdle
		require.NoError(t, s.UpdateWorker(ctx, w))

		require.NoError(t, s.DeleteWorker(ctx, "w2"))
		_, err = s.GetWorker(ctx, "w2")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("roles teams organizations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateRole(ctx, &models.Role{ID: "r1", Name: "backend", Capabilities: []string{"go", "sql"}, Tier: models.TierSenior, Specialization: models.SpecializationImplementation}))
		r, err := s.GetRole(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "sql"}, r.Capabilities)
		assert.Equal(t, models.TierSenior, r.Tier)

		require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "root", Name: "eng"}))
		require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "child-b", Name: "b", ParentTeamID: "root"}))
		require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "child-a", Name: "a", ParentTeamID: "root"}))
		children, err := s.ListChildTeams(ctx, "root")
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "child-a", children[0].ID)

		org := &models.Organization{ID: "o1", Name: "acme"}
		require.NoError(t, s.CreateOrganization(ctx, org))
		got, err := s.GetOrganization(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, "main", got.BaseBranch)
	})

	t.Run("documents by tag", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateDocument(ctx, &models.Document{ID: "d1", Title: "Go tips", Type: models.DocumentKnowledge, Tags: []string{"Go"}}))
		require.NoError(t, s.CreateDocument(ctx, &models.Document{ID: "d2", Title: "Result", Type: models.DocumentTaskResult, TaskID: "t1"}))

		got, err := s.ListDocuments(ctx, DocumentFilter{AnyTags: []string{"go", "rust"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d1", got[0].ID)

		got, err = s.ListDocuments(ctx, DocumentFilter{TaskID: "t1", Type: models.DocumentTaskResult})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d2", got[0].ID)
	})

	t.Run("pull requests", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		pr := &models.PullRequest{ID: "pr1", TaskID: "t1", Number: 42, URL: "https://example.com/pr/42", Branch: "feature/a/task-1"}
		require.NoError(t, s.CreatePullRequest(ctx, pr))
		assert.Equal(t, models.PullRequestOpen, pr.Status)

		pr.Status = models.PullRequestReviewRequested
		require.NoError(t, s.UpdatePullRequest(ctx, pr))

		prs, err := s.ListPullRequests(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, prs, 1)
		assert.Equal(t, models.PullRequestReviewRequested, prs[0].Status)
		assert.Equal(t, 42, prs[0].Number)
	})
}

func taskIDs(tasks []*models.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func workerIDs(workers []*models.Worker) []string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	return ids
}
