package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Reviewer asks the host to review a change request.
type Reviewer interface {
	RequestReview(ctx context.Context, dir string, number int, reviewers []string) error
}

// ReviewService records change requests for tasks and hands them off for review.
type ReviewService struct {
	prs       state.PullRequestStore
	host      Reviewer
	dir       string
	reviewers []string
	logger    *zap.Logger
}

// ReviewOption configures a ReviewService.
type ReviewOption func(*ReviewService)

// WithReviewers sets the reviewers added on handoff.
func WithReviewers(reviewers ...string) ReviewOption {
	return func(s *ReviewService) { s.reviewers = reviewers }
}

// WithReviewLogger sets the logger.
func WithReviewLogger(l *zap.Logger) ReviewOption {
	return func(s *ReviewService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewReviewService creates a ReviewService. dir is the working directory
// host commands run in. host may be nil to only record state.
func NewReviewService(prs state.PullRequestStore, host Reviewer, dir string, opts ...ReviewOption) *ReviewService {
	s := &ReviewService{prs: prs, host: host, dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePullRequest records an opened change request for a task.
func (s *ReviewService) CreatePullRequest(ctx context.Context, taskID string, number int, url, repository, branch, authorWorkerID string) (*models.PullRequest, error) {
	pr := &models.PullRequest{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		Number:         number,
		URL:            url,
		Repository:     repository,
		Branch:         branch,
		AuthorWorkerID: authorWorkerID,
		Status:         models.PullRequestOpen,
		CreatedAt:      time.Now(),
	}
	if err := s.prs.CreatePullRequest(ctx, pr); err != nil {
		return nil, fmt.Errorf("record pull request #%d for task %s: %w", number, taskID, err)
	}
	return pr, nil
}

// RequestReview hands the change request to reviewers and marks it review_requested.
func (s *ReviewService) RequestReview(ctx context.Context, prID string) error {
	pr, err := s.prs.GetPullRequest(ctx, prID)
	if err != nil {
		return fmt.Errorf("get pull request %s: %w", prID, err)
	}
	if s.host != nil {
		if err := s.host.RequestReview(ctx, s.dir, pr.Number, s.reviewers); err != nil {
			return fmt.Errorf("request review for #%d: %w", pr.Number, err)
		}
	}
	pr.Status = models.PullRequestReviewRequested
	if err := s.prs.UpdatePullRequest(ctx, pr); err != nil {
		return fmt.Errorf("update pull request %s: %w", prID, err)
	}
	s.logger.Info("review requested", zap.String("task_id", pr.TaskID), zap.Int("number", pr.Number))
	return nil
}

// Latest returns the most recently created change request for a task.
func (s *ReviewService) Latest(ctx context.Context, taskID string) (*models.PullRequest, error) {
	prs, err := s.prs.ListPullRequests(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, fmt.Errorf("pull request for task %s: %w", taskID, state.ErrNotFound)
	}
	latest := prs[0]
	for _, pr := range prs[1:] {
		if pr.CreatedAt.After(latest.CreatedAt) {
			latest = pr
		}
	}
	return latest, nil
}
