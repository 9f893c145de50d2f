package matcher

import (
	"context"

	"github.com/ShayCichocki/hollon/internal/state"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// StoreWorkload counts active tasks from a TaskStore.
type StoreWorkload struct {
	Tasks state.TaskStore
}

// ActiveTasks returns the number of non-terminal tasks assigned to workerID.
func (s StoreWorkload) ActiveTasks(ctx context.Context, workerID string) (int, error) {
	tasks, err := s.Tasks.ListTasks(ctx, state.TaskFilter{AssignedWorkerID: workerID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if t.Status.Active() {
			n++
		}
	}
	return n, nil
}

// StoreKnowledge looks up knowledge documents in a DocumentStore.
type StoreKnowledge struct {
	Documents state.DocumentStore
}

// HasKnowledge reports whether any knowledge document carries one of tags.
func (s StoreKnowledge) HasKnowledge(ctx context.Context, tags []string) (bool, error) {
	if len(tags) == 0 {
		return false, nil
	}
	docs, err := s.Documents.ListDocuments(ctx, state.DocumentFilter{
		Type:    models.DocumentKnowledge,
		AnyTags: tags,
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}
