package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/internal/exec/exectest"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

func newClient(fake *exectest.Runner, opts ...Option) *Client {
	return NewClient(fake, append([]Option{WithRateLimit(0, 0)}, opts...)...)
}

func TestParsePullRequestURL(t *testing.T) {
	n, err := ParsePullRequestURL("https://github.com/acme/app/pull/42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ParsePullRequestURL("https://github.com/acme/app")
	assert.Error(t, err)
}

func TestCreatePullRequest(t *testing.T) {
	fake := exectest.New().Respond("gh pr create", "Creating pull request...\nhttps://github.com/acme/app/pull/17\n", nil)
	c := newClient(fake, WithRepository("acme/app"))

	info, err := c.CreatePullRequest(context.Background(), "/ws", PullRequestRequest{
		Title: "Add login", Body: "body", Head: "feature/bea/task-ab12cd34", Base: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, &PullRequestInfo{Number: 17, URL: "https://github.com/acme/app/pull/17"}, info)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/ws", calls[0].Dir)
	assert.Equal(t, []string{
		"pr", "create", "--title", "Add login", "--body", "body",
		"--head", "feature/bea/task-ab12cd34", "--base", "main", "--repo", "acme/app",
	}, calls[0].Args)
}

func TestFindPullRequest(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		err     error
		want    *PullRequestInfo
		wantErr error
	}{
		{
			name: "open",
			out:  `{"number":9,"url":"https://github.com/acme/app/pull/9","state":"OPEN"}`,
			want: &PullRequestInfo{Number: 9, URL: "https://github.com/acme/app/pull/9"},
		},
		{
			name:    "merged",
			out:     `{"number":9,"url":"https://github.com/acme/app/pull/9","state":"MERGED"}`,
			wantErr: ErrNoPullRequest,
		},
		{
			name:    "none",
			out:     `no pull requests found for branch "feature/bea/task-1"`,
			err:     errors.New("exit status 1"),
			wantErr: ErrNoPullRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := exectest.New().Respond("gh pr view feature/bea/task-1", tt.out, tt.err)
			info, err := newClient(fake).FindPullRequest(context.Background(), "/repo", "feature/bea/task-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, info)
		})
	}

	fake := exectest.New().Respond("gh pr view", "", errors.New("gh: not logged in"))
	_, err := newClient(fake).FindPullRequest(context.Background(), "/repo", "b")
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestChecks_DecodesDespiteExitCode(t *testing.T) {
	out := `[{"name":"build","state":"SUCCESS","bucket":"pass","link":"https://github.com/acme/app/actions/runs/11/job/1"},
{"name":"test","state":"FAILURE","bucket":"fail","link":"https://github.com/acme/app/actions/runs/12/job/2"},
{"name":"lint","state":"IN_PROGRESS","bucket":"pending","link":""}]`
	fake := exectest.New().Respond("gh pr checks 5", out, errors.New("exit status 8"))
	c := newClient(fake)

	checks, err := c.Checks(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, checks, 3)

	s := Summarize(checks)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Pending)
	assert.False(t, s.Complete())
	assert.Equal(t, "test", s.Failing[0].Name)
}

func TestChecks_NoneReported(t *testing.T) {
	fake := exectest.New().Respond("gh pr checks", "no checks reported on the 'x' branch", errors.New("exit status 1"))
	_, err := newClient(fake).Checks(context.Background(), "", 5)
	assert.ErrorIs(t, err, ErrNoChecks)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		checks    []Check
		complete  bool
		succeeded bool
	}{
		{"empty", nil, false, false},
		{"all passed", []Check{{Bucket: BucketPass}, {Bucket: BucketSkipping}}, true, true},
		{"one failed", []Check{{Bucket: BucketPass}, {Bucket: BucketFail}}, true, false},
		{"cancelled counts as failed", []Check{{Bucket: BucketCancel}}, true, false},
		{"still running", []Check{{Bucket: BucketPass}, {Bucket: BucketPending}}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.checks)
			assert.Equal(t, tt.complete, s.Complete())
			assert.Equal(t, tt.succeeded, s.Succeeded())
		})
	}
}

func TestFailedCheckLogs(t *testing.T) {
	fake := exectest.New().
		Respond("gh run view 12", "test failed: expected 1 got 2\n", nil).
		Respond("gh run view 13", strings.Repeat("x\n", maxLogBytes), nil)
	c := newClient(fake)

	failed := []Check{
		{Name: "unit", State: "FAILURE", Link: "https://github.com/acme/app/actions/runs/12/job/1"},
		{Name: "race", State: "FAILURE", Link: "https://github.com/acme/app/actions/runs/12/job/2"},
		{Name: "e2e", State: "FAILURE", Link: "https://github.com/acme/app/actions/runs/13/job/3"},
		{Name: "external", State: "FAILURE", Link: "https://ci.example.com/build/9"},
	}
	logs, err := c.FailedCheckLogs(context.Background(), "", failed)
	require.NoError(t, err)
	require.Len(t, logs, 4)

	assert.Contains(t, logs[0].Log, "expected 1 got 2")
	assert.Contains(t, logs[1].Log, "expected 1 got 2")
	assert.LessOrEqual(t, len(logs[2].Log), maxLogBytes+4)
	assert.True(t, strings.HasPrefix(logs[2].Log, "...\n"))
	assert.Empty(t, logs[3].Log)

	feedback := FormatFeedback(logs)
	assert.Contains(t, feedback, "### unit (FAILURE)")
	assert.Contains(t, feedback, "https://ci.example.com/build/9")
}

func TestFailedCheckLogs_Error(t *testing.T) {
	fake := exectest.New().Respond("gh run view", "", errors.New("HTTP 404"))
	_, err := newClient(fake).FailedCheckLogs(context.Background(), "", []Check{
		{Name: "unit", Link: "https://github.com/acme/app/actions/runs/12/job/1"},
	})
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestRequestReview(t *testing.T) {
	fake := exectest.New().Respond("gh pr ready", "! Pull request #3 is already \"ready for review\"", errors.New("exit status 1"))
	c := newClient(fake)

	require.NoError(t, c.RequestReview(context.Background(), "", 3, []string{"alice", "bob"}))
	assert.True(t, fake.Ran("gh pr edit 3 --add-reviewer alice,bob"))
}

func TestReviewService(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	fake := exectest.New()
	svc := NewReviewService(store, newClient(fake), "/repo", WithReviewers("alice"))

	pr, err := svc.CreatePullRequest(ctx, "task-1", 9, "https://github.com/acme/app/pull/9", "acme/app", "feature/bea/task-1", "w1")
	require.NoError(t, err)
	assert.Equal(t, models.PullRequestOpen, pr.Status)

	require.NoError(t, svc.RequestReview(ctx, pr.ID))
	stored, err := store.GetPullRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PullRequestReviewRequested, stored.Status)
	assert.True(t, fake.Ran("gh pr ready 9"))

	latest, err := svc.Latest(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, pr.ID, latest.ID)

	_, err = svc.Latest(ctx, "task-2")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	assert.Equal(t, "...\nlast line", tail("first line\nlast line", 12))

	got := tail("xé"+strings.Repeat("b", 9), 10)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "...\n"+strings.Repeat("b", 9), got)
}
