// Package vcs talks to the change-request host through the gh CLI and keeps
// change-request records for tasks.
package vcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ShayCichocki/hollon/internal/exec"
)

// maxLogBytes bounds each failed-check log kept as feedback.
const maxLogBytes = 6000

var (
	// ErrNoChecks is returned when a change request has no checks reported yet.
	ErrNoChecks = errors.New("no checks reported")
	// ErrNoPullRequest is returned when a branch has no open change request.
	ErrNoPullRequest = errors.New("no open pull request")
)

// CommandError is a failed gh invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("gh %s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// PullRequestRequest describes a change request to open.
type PullRequestRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

// PullRequestInfo identifies an opened change request.
type PullRequestInfo struct {
	Number int
	URL    string
}

// Bucket values reported by `gh pr checks`.
const (
	BucketPass     = "pass"
	BucketFail     = "fail"
	BucketPending  = "pending"
	BucketSkipping = "skipping"
	BucketCancel   = "cancel"
)

// Check is one verification check on a change request.
type Check struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Bucket string `json:"bucket"`
	Link   string `json:"link"`
}

// CheckLog is the failure output of one check.
type CheckLog struct {
	Check Check
	Log   string
}

// Client wraps the gh CLI.
type Client struct {
	cmd     exec.CommandRunner
	bin     string
	repo    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the gh executable.
func WithBinary(bin string) Option {
	return func(c *Client) {
		if bin != "" {
			c.bin = bin
		}
	}
}

// WithRepository targets OWNER/REPO instead of the repository in the working directory.
func WithRepository(repo string) Option {
	return func(c *Client) { c.repo = repo }
}

// WithRateLimit throttles gh invocations. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a gh client.
func NewClient(cmd exec.CommandRunner, opts ...Option) *Client {
	c := &Client{
		cmd:     cmd,
		bin:     "gh",
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.repo != "" {
		args = append(args, "--repo", c.repo)
	}
	out, err := c.cmd.Run(ctx, dir, c.bin, args...)
	if err != nil {
		return out, &CommandError{Args: args, Output: string(out), Err: err}
	}
	return out, nil
}

var prNumberRe = regexp.MustCompile(`/pull/(\d+)`)

// ParsePullRequestURL extracts the number from a change request URL.
func ParsePullRequestURL(url string) (int, error) {
	m := prNumberRe.FindStringSubmatch(url)
	if m == nil {
		return 0, fmt.Errorf("no pull request number in %q", url)
	}
	return strconv.Atoi(m[1])
}

// CreatePullRequest opens a change request from req.Head into req.Base.
func (c *Client) CreatePullRequest(ctx context.Context, dir string, req PullRequestRequest) (*PullRequestInfo, error) {
	args := []string{"pr", "create", "--title", req.Title, "--body", req.Body, "--head", req.Head, "--base", req.Base}
	if req.Draft {
		args = append(args, "--draft")
	}
	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	var url string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "http") {
			url = strings.TrimSpace(line)
		}
	}
	num, err := ParsePullRequestURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse gh pr create output: %w", err)
	}
	c.logger.Info("pull request created", zap.Int("number", num), zap.String("url", url), zap.String("head", req.Head))
	return &PullRequestInfo{Number: num, URL: url}, nil
}

// FindPullRequest returns the open change request whose head is branch.
func (c *Client) FindPullRequest(ctx context.Context, dir, branch string) (*PullRequestInfo, error) {
	out, runErr := c.run(ctx, dir, "pr", "view", branch, "--json", "number,url,state")
	var view struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(out, &view); err != nil {
		if runErr != nil {
			if strings.Contains(string(out), "no pull requests found") {
				return nil, fmt.Errorf("branch %s: %w", branch, ErrNoPullRequest)
			}
			return nil, runErr
		}
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	if !strings.EqualFold(view.State, "OPEN") {
		return nil, fmt.Errorf("branch %s (#%d is %s): %w", branch, view.Number, strings.ToLower(view.State), ErrNoPullRequest)
	}
	return &PullRequestInfo{Number: view.Number, URL: view.URL}, nil
}

// Checks returns the verification checks of a change request. gh exits
// non-zero while checks are pending or failing, so output that decodes is
// used regardless of the exit status.
func (c *Client) Checks(ctx context.Context, dir string, number int) ([]Check, error) {
	out, runErr := c.run(ctx, dir, "pr", "checks", strconv.Itoa(number), "--json", "name,state,bucket,link")
	var checks []Check
	if err := json.Unmarshal(out, &checks); err != nil {
		if runErr != nil {
			if strings.Contains(string(out), "no checks reported") {
				return nil, ErrNoChecks
			}
			return nil, runErr
		}
		return nil, fmt.Errorf("decode checks: %w", err)
	}
	return checks, nil
}

var runIDRe = regexp.MustCompile(`/actions/runs/(\d+)`)

// RunID extracts the workflow run ID from a check link.
func RunID(link string) (string, bool) {
	m := runIDRe.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FailedCheckLogs fetches the failure logs of each failed check concurrently.
// Checks without a workflow run link get an empty log. Logs are truncated to
// their tail.
func (c *Client) FailedCheckLogs(ctx context.Context, dir string, failed []Check) ([]CheckLog, error) {
	logs := make([]CheckLog, len(failed))
	fetched := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chk := range failed {
		logs[i].Check = chk
		runID, ok := RunID(chk.Link)
		if !ok {
			continue
		}
		g.Go(func() error {
			mu.Lock()
			cached, seen := fetched[runID]
			mu.Unlock()
			if seen {
				logs[i].Log = cached
				return nil
			}

			out, err := c.run(gctx, dir, "run", "view", runID, "--log-failed")
			if err != nil {
				return fmt.Errorf("fetch log for %s: %w", chk.Name, err)
			}
			log := tail(string(out), maxLogBytes)
			mu.Lock()
			fetched[runID] = log
			mu.Unlock()
			logs[i].Log = log
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return logs, nil
}

// RequestReview marks a change request ready and adds reviewers.
func (c *Client) RequestReview(ctx context.Context, dir string, number int, reviewers []string) error {
	n := strconv.Itoa(number)
	if _, err := c.run(ctx, dir, "pr", "ready", n); err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) || !strings.Contains(cmdErr.Output, "already") {
			return err
		}
	}
	if len(reviewers) == 0 {
		return nil
	}
	_, err := c.run(ctx, dir, "pr", "edit", n, "--add-reviewer", strings.Join(reviewers, ","))
	return err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	cut := s[start:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return "...\n" + cut
}
