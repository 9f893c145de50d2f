package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/hollon/internal/brain"
	"github.com/ShayCichocki/hollon/internal/decompose"
	iexec "github.com/ShayCichocki/hollon/internal/exec"
	"github.com/ShayCichocki/hollon/internal/gates"
	"github.com/ShayCichocki/hollon/internal/repolock"
	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/internal/vcs"
	"github.com/ShayCichocki/hollon/internal/workspace"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// cleanupTimeout bounds best-effort cleanup that runs after ctx may be done.
const cleanupTimeout = time.Minute

// Orchestrator executes tasks in isolated workspaces and drives their change
// requests through verification and review.
type Orchestrator struct {
	store  state.Store
	brain  brain.Brain
	cmd    iexec.CommandRunner
	cfg    Config
	logger *zap.Logger

	locks      *repolock.Locker
	workspaces Workspaces
	host       Host
	gate       gates.Gate
	engine     *decompose.Engine
	planner    *decompose.Planner
	events     *EventEmitter

	tasks *keyedMutex
}

// New creates an Orchestrator. Collaborators not supplied through options
// are built from the required ones: a gh client and the default gate chain
// over req.Runner, and a workspace manager sharing the repository gate.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Store == nil || req.Brain == nil || req.Runner == nil {
		return nil, errors.New("orchestrator: store, brain and runner are required")
	}

	o := &orchestratorOptions{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := o.cfg.withDefaults()

	locks := o.locks
	if locks == nil {
		locks = repolock.New(repolock.WithLogger(logger))
	}
	workspaces := o.workspaces
	if workspaces == nil {
		workspaces = workspace.New(req.Runner, locks,
			workspace.WithConfig(workspace.Config{
				DirName:    cfg.WorkspaceDirName,
				Remote:     cfg.Remote,
				BaseBranch: cfg.BaseBranch,
			}),
			workspace.WithLogger(logger))
	}
	host := o.host
	if host == nil {
		host = vcs.NewClient(req.Runner, vcs.WithLogger(logger))
	}
	gate := o.gate
	if gate == nil {
		gate = gates.Default(cfg.Gates, req.Runner, logger)
	}

	dcfg := decompose.Config{MaxDepth: cfg.MaxDepth, MaxSubtasks: cfg.MaxSubtasks}
	return &Orchestrator{
		store:      req.Store,
		brain:      req.Brain,
		cmd:        req.Runner,
		cfg:        cfg,
		logger:     logger,
		locks:      locks,
		workspaces: workspaces,
		host:       host,
		gate:       gate,
		engine:     decompose.New(req.Store, decompose.WithConfig(dcfg), decompose.WithLogger(logger)),
		planner:    decompose.NewPlanner(req.Brain, dcfg, logger),
		events:     o.events,
		tasks:      newKeyedMutex(),
	}, nil
}

// Config returns the effective execution settings.
func (o *Orchestrator) Config() Config { return o.cfg }

// Engine returns the decomposition engine the orchestrator routes to.
func (o *Orchestrator) Engine() *decompose.Engine { return o.engine }

// ExecuteTask runs one attempt of a task. Aggregate tasks are planned and
// delegated to their team. Leaf tasks run in their workspace (provisioned
// on first execution), pass the quality gate, open or update a change
// request and wait for its checks. Retry and terminal results are returned
// as an Outcome; errors are reserved for failures the caller cannot act on.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID, workerID string) (*Outcome, error) {
	unlock := o.tasks.Lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	switch task.Status {
	case models.TaskStatusPending, models.TaskStatusReady, models.TaskStatusInProgress:
	default:
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrNotExecutable)
	}

	worker, err := o.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("load worker %s: %w", workerID, err)
	}
	if task.Type == models.TaskTypeAggregate {
		return o.delegate(ctx, task, worker)
	}
	return o.execute(ctx, task, worker)
}

// delegate plans an aggregate task on behalf of worker, usually the
// manager of the team it is assigned to.
func (o *Orchestrator) delegate(ctx context.Context, task *models.Task, worker *models.Worker) (*Outcome, error) {
	o.logger.Info("delegating aggregate task",
		zap.String("task_id", task.ID),
		zap.String("worker_id", worker.ID),
		zap.String("team_id", task.AssignedTeamID))
	plan, err := o.planner.Plan(ctx, task)
	if err != nil {
		return nil, err
	}
	res, err := o.engine.DecomposeAggregate(ctx, task, plan.Items)
	if err != nil {
		return nil, fmt.Errorf("delegate %s: %w", task.ID, err)
	}

	created := res.Created()
	o.emit(Event{
		Type:      EventTaskDelegated,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		WorkerID:  worker.ID,
		Message:   fmt.Sprintf("%d subtasks", len(created)),
		CostCents: plan.Cost.TotalCostCents,
	})
	return &Outcome{Kind: OutcomeDelegated, Task: res.Parent, Subtasks: created, Cost: plan.Cost}, nil
}

func (o *Orchestrator) execute(ctx context.Context, task *models.Task, worker *models.Worker) (out *Outcome, err error) {
	repo, base, err := o.target(ctx, worker)
	if err != nil {
		return nil, err
	}

	prev := task.Status
	var provisioned string
	if task.WorkingDirectory == "" {
		ws, err := o.workspaces.Provision(ctx, workspace.Request{
			RepoPath:   repo,
			WorkerID:   worker.ID,
			WorkerName: worker.Name,
			TaskID:     task.ID,
			BaseBranch: base,
		})
		if err != nil {
			return nil, fmt.Errorf("provision workspace for %s: %w", task.ID, err)
		}
		provisioned = ws.Path
		task.WorkingDirectory = ws.Path
		task.Metadata.BranchName = ws.Branch
	}

	published := false
	defer func() {
		if err == nil || published {
			return
		}
		if task.Metadata.PRNumber > 0 {
			// A change request is open on this workspace; keep it for the next attempt.
			provisioned = ""
		}
		o.abandon(ctx, task, prev, repo, provisioned, err)
	}()

	task.AssignWorker(worker.ID)
	task.Status = models.TaskStatusInProgress
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("start task %s: %w", task.ID, err)
	}
	o.setWorkerStatus(ctx, worker.ID, models.WorkerStatusWorking)
	defer o.setWorkerStatus(context.WithoutCancel(ctx), worker.ID, models.WorkerStatusIdle)

	o.logger.Info("executing task",
		zap.String("task_id", task.ID),
		zap.String("worker_id", worker.ID),
		zap.String("workspace", task.WorkingDirectory))
	o.emit(Event{Type: EventTaskStarted, TaskID: task.ID, TaskTitle: task.Title, WorkerID: worker.ID})

	resp, err := o.brain.Execute(ctx, brain.Request{
		Prompt:       buildPrompt(task, task.Depth < o.cfg.MaxDepth, o.cfg.MaxCIRetries),
		SystemPrompt: decompose.WorkerSystemPrompt(),
		WorkDir:      task.WorkingDirectory,
		Context: map[string]string{
			"task_id": task.ID,
			"branch":  task.Metadata.BranchName,
			"worker":  worker.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("execute task %s: %w", task.ID, err)
	}
	task.Metadata.DurationMs = resp.Duration.Milliseconds()
	task.Metadata.CostCents += resp.Cost.TotalCostCents

	switch r := brain.ParseResult(resp.Output).(type) {
	case brain.Decompose:
		return o.decompose(ctx, task, worker, r, resp.Cost)
	case brain.SelfCorrect:
		out, err := o.retry(ctx, task, r.Reason, resp.Cost)
		if out != nil {
			out.Cause = r.Err
		}
		return out, err
	case brain.Direct:
		if !resp.Success {
			return o.retry(ctx, task, "inference stopped before the task was finished", resp.Cost)
		}
		out, pr, err := o.publish(ctx, task, worker, repo, base, r.Output, resp.Cost)
		if err != nil || out != nil {
			return out, err
		}
		published = true
		out, err = o.awaitVerification(ctx, task, pr, repo)
		if out != nil {
			out.Cost = resp.Cost
		}
		return out, err
	default:
		return nil, fmt.Errorf("task %s: unexpected inference result %T", task.ID, r)
	}
}

// abandon undoes an attempt that failed before verification started: the
// workspace it provisioned is removed unless a change request was opened on
// it, and the task returns to its previous status. Failures are logged so they never mask cause.
func (o *Orchestrator) abandon(ctx context.Context, task *models.Task, prev models.TaskStatus, repo, provisioned string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if provisioned != "" {
		if err := o.workspaces.Remove(ctx, repo, provisioned); err != nil {
			o.logger.Warn("workspace cleanup failed", zap.String("task_id", task.ID), zap.String("path", provisioned), zap.Error(err))
		}
		task.WorkingDirectory = ""
		task.Metadata.BranchName = ""
	}

	task.Status = prev
	task.Metadata.LastError = cause.Error()
	if err := o.store.UpdateTask(ctx, task); err != nil {
		o.logger.Warn("restore task failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	o.logger.Error("task attempt failed", zap.String("task_id", task.ID), zap.Error(cause))
	o.emit(Event{Type: EventTaskFailed, TaskID: task.ID, TaskTitle: task.Title, Error: cause})
}

func (o *Orchestrator) decompose(ctx context.Context, task *models.Task, worker *models.Worker, r brain.Decompose, cost brain.Cost) (*Outcome, error) {
	if v := decompose.ValidateItems(r.Subtasks, o.cfg.MaxSubtasks); !v.Valid {
		return o.retry(ctx, task, "decomposition rejected: "+strings.Join(v.Errors, "; "), cost)
	}

	res, err := o.engine.DecomposeInFlight(ctx, task, worker, r.Reason, r.Subtasks)
	switch {
	case errors.Is(err, decompose.ErrDepthExceeded), errors.Is(err, decompose.ErrFanOutExceeded):
		return o.retry(ctx, task, fmt.Sprintf("decomposition not allowed (%v); implement the task directly", err), cost)
	case err != nil:
		return nil, fmt.Errorf("decompose %s: %w", task.ID, err)
	}

	o.emit(Event{
		Type:      EventTaskDecomposed,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		WorkerID:  worker.ID,
		Message:   fmt.Sprintf("%d subtasks: %s", len(res.Leaves), r.Reason),
		CostCents: cost.TotalCostCents,
	})
	return &Outcome{Kind: OutcomeDecomposed, Task: res.Parent, Reason: r.Reason, Subtasks: res.Leaves, Cost: cost}, nil
}

// retry returns the task to READY with feedback for the next attempt. The
// workspace is kept so the next attempt continues from it.
func (o *Orchestrator) retry(ctx context.Context, task *models.Task, feedback string, cost brain.Cost) (*Outcome, error) {
	task.RetryCount++
	task.Status = models.TaskStatusReady
	task.Metadata.LastError = feedback
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("record retry for %s: %w", task.ID, err)
	}

	o.logger.Info("task needs another attempt",
		zap.String("task_id", task.ID),
		zap.Int("retry_count", task.RetryCount),
		zap.String("feedback", feedback))
	o.emit(Event{Type: EventTaskRetry, TaskID: task.ID, TaskTitle: task.Title, Message: feedback, CostCents: cost.TotalCostCents})
	return &Outcome{Kind: OutcomeRetry, Task: task, Feedback: feedback, Cost: cost}, nil
}

// terminal fails the task and releases the workspace it owns.
func (o *Orchestrator) terminal(ctx context.Context, task *models.Task, repo, reason string, cause error, cost brain.Cost) (*Outcome, error) {
	task.Status = models.TaskStatusFailed
	task.Metadata.LastError = reason
	if err := o.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	o.releaseWorkspace(ctx, task, repo)

	o.logger.Warn("task failed", zap.String("task_id", task.ID), zap.String("reason", reason))
	o.emit(Event{Type: EventTaskFailed, TaskID: task.ID, TaskTitle: task.Title, Message: reason, Error: cause})
	return &Outcome{Kind: OutcomeTerminal, Task: task, Reason: reason, Cause: cause, Cost: cost}, nil
}

// publish gates the output, records it, pushes the workspace and opens or
// reuses the change request. A non-nil Outcome means the gate decided the
// attempt.
func (o *Orchestrator) publish(ctx context.Context, task *models.Task, worker *models.Worker, repo, base, output string, cost brain.Cost) (*Outcome, *models.PullRequest, error) {
	err := o.gate.Evaluate(ctx, gates.Input{Task: task, Output: output, Cost: cost, WorkDir: task.WorkingDirectory})
	if err != nil {
		f, ok := gates.AsFailure(err)
		if !ok {
			return nil, nil, fmt.Errorf("quality gate for %s: %w", task.ID, err)
		}
		if f.Retryable {
			out, err := o.retry(ctx, task, f.Error(), cost)
			return out, nil, err
		}
		out, err := o.terminal(ctx, task, repo, f.Error(), f, cost)
		return out, nil, err
	}

	doc := &models.Document{
		ID:        uuid.NewString(),
		Title:     "Result: " + task.Title,
		Content:   output,
		Type:      models.DocumentTaskResult,
		TaskID:    task.ID,
		WorkerID:  worker.ID,
		Tags:      task.Tags,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("record result of %s: %w", task.ID, err)
	}

	head, err := o.pushWork(ctx, task, repo)
	if err != nil {
		return nil, nil, err
	}
	pr, err := o.openPullRequest(ctx, task, worker, repo, base, head, output)
	if err != nil {
		return nil, nil, err
	}
	return nil, pr, nil
}

// setWorkerStatus updates a worker's status. Failures are logged.
func (o *Orchestrator) setWorkerStatus(ctx context.Context, workerID string, status models.WorkerStatus) {
	w, err := o.store.GetWorker(ctx, workerID)
	if err != nil {
		o.logger.Debug("worker status not updated", zap.String("worker_id", workerID), zap.Error(err))
		return
	}
	if w.Status == status {
		return
	}
	w.Status = status
	if err := o.store.UpdateWorker(ctx, w); err != nil {
		o.logger.Warn("update worker status failed", zap.String("worker_id", workerID), zap.Error(err))
	}
}

// target resolves the repository and base branch a worker works against:
// the organization of the nearest team that has one, else the configured
// defaults.
func (o *Orchestrator) target(ctx context.Context, worker *models.Worker) (repo, base string, err error) {
	repo, base = o.cfg.RepoPath, o.cfg.BaseBranch

	seen := make(map[string]bool)
	for teamID := worker.TeamID; teamID != "" && !seen[teamID]; {
		seen[teamID] = true
		team, err := o.store.GetTeam(ctx, teamID)
		if errors.Is(err, state.ErrNotFound) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("load team %s: %w", teamID, err)
		}
		if team.OrganizationID == "" {
			teamID = team.ParentTeamID
			continue
		}

		org, err := o.store.GetOrganization(ctx, team.OrganizationID)
		if errors.Is(err, state.ErrNotFound) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("load organization %s: %w", team.OrganizationID, err)
		}
		if org.RepositoryPath != "" {
			repo = org.RepositoryPath
		}
		if org.BaseBranch != "" {
			base = org.BaseBranch
		}
		break
	}

	if repo == "" {
		return "", "", fmt.Errorf("worker %s: %w", worker.ID, ErrNoRepository)
	}
	return repo, base, nil
}

// repoFor resolves the repository of a task through its assigned worker.
func (o *Orchestrator) repoFor(ctx context.Context, task *models.Task) (string, error) {
	if task.AssignedWorkerID != "" {
		w, err := o.store.GetWorker(ctx, task.AssignedWorkerID)
		if err == nil {
			repo, _, err := o.target(ctx, w)
			return repo, err
		}
		if !errors.Is(err, state.ErrNotFound) {
			return "", fmt.Errorf("load worker %s: %w", task.AssignedWorkerID, err)
		}
	}
	if o.cfg.RepoPath == "" {
		return "", fmt.Errorf("task %s: %w", task.ID, ErrNoRepository)
	}
	return o.cfg.RepoPath, nil
}

func (o *Orchestrator) emit(e Event) {
	if o.events != nil {
		o.events.Emit(e)
	}
}
