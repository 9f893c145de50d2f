// Package orchestrator runs tasks end to end.
//
// A leaf task moves through:
//
//	PENDING/READY -> IN_PROGRESS -> READY_FOR_REVIEW | BLOCKED (decomposed) | FAILED
//
// ExecuteTask provisions (or reuses) the task's git worktree, asks the Brain
// to do the work, applies the quality gate, pushes the branch and opens a
// change request, then polls the change request's checks. Check failures
// spend a bounded retry budget; the feedback is stored on the task and the
// caller re-executes it. Aggregate tasks are planned and delegated to
// their team through the decompose package instead.
//
// Every git mutation against a repository goes through a repolock gate keyed
// by the repository path. Operations on one task are serialized in process;
// across processes the store's version check rejects stale writes.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Store:  store,
//		Brain:  b,
//		Runner: exec.NewRunner(),
//	}, orchestrator.WithConfig(orchestrator.FromConfig(cfg, repoPath)))
//	out, err := orch.ExecuteTask(ctx, taskID, workerID)
//	if out.Retryable() {
//		// run it again later
//	}
package orchestrator
